// Package render turns kernel rule tables into iptables-save text.
//
// A Renderer formats single rules; a Walker reads a whole table through the
// kernel handle and emits the save block: header, chain declarations, rules,
// COMMIT and trailer. All chain declarations precede all rules.
package render
