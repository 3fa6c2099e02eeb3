// Package xtables holds the match and target extensions that turn the opaque
// parameter blobs of a rule back into iptables-save options.
//
// Extensions follow the libxtables contract: Save prints the options of one
// match or target to standard output. Callers that need the text run Save
// inside Capture, which owns the process standard output for the duration of
// the call.
package xtables
