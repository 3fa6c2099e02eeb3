//go:build !linux

package xtables

import "errors"

// Capture is not supported off linux.
func Capture(limit int, fn func()) ([]byte, error) {
	return nil, &CaptureError{Op: "dup", Err: errors.ErrUnsupported}
}
