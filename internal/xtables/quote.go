package xtables

import (
	"fmt"
	"strings"
)

const bareChars = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// saveString prints a space and value, quoted and escaped unless it consists
// only of letters, digits, '-' and '_'.
func saveString(value string) {
	fmt.Print(" " + quote(value))
}

func quote(value string) string {
	if value != "" && strings.Trim(value, bareChars) == "" {
		return value
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range []byte(value) {
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// cString returns the NUL-terminated string at the start of b.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func invert(inverted bool) {
	if inverted {
		fmt.Print(" !")
	}
}
