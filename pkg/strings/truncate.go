// Package strings holds helpers for putting untrusted text, such as provider
// error bodies, into log lines and error messages.
package strings

import (
	"strings"
)

// MaxErrorBodyLen bounds provider response text quoted in errors.
const MaxErrorBodyLen = 512

// MinTruncateLen is the smallest maxLen Truncate honours; it leaves room for
// one character plus "...".
const MinTruncateLen = 4

// SingleLine collapses every run of whitespace, newlines included, into one
// space and trims the ends.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns s on a single line, cut to at most maxLen runes with a
// trailing "..." when shortened. maxLen is clamped to MinTruncateLen.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = SingleLine(s)
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
