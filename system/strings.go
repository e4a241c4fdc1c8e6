package system

import (
	"strings"
	"unicode"
)

// SanitizeHostname turns free-form text into a DNS label: it is lowercased,
// whitespace becomes "-" and anything outside [a-z0-9-] is dropped. An empty
// result means no usable hostname could be derived.
func SanitizeHostname(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
