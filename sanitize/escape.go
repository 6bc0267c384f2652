// Package sanitize implements context-aware output escaping and input scrubbing.
// Every function in this package is idempotent: applying it to its own output
// returns the output unchanged.
package sanitize

import (
	"strings"
)

// entities that are left untouched when found after '&', so escaping never doubles up
var knownEntities = []string{"amp;", "lt;", "gt;", "quot;", "#x27;", "#x2F;"}

func isKnownEntity(s string) bool {
	for _, e := range knownEntities {
		if strings.HasPrefix(s, e) {
			return true
		}
	}
	return false
}

func escape(input string, escapeSlash bool) string {
	var b strings.Builder
	b.Grow(len(input))
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch c {
		case '&':
			if isKnownEntity(input[i+1:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		case '/':
			if escapeSlash {
				b.WriteString("&#x2F;")
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeHTML escapes & < > " ' and / for use in an HTML text node
func EscapeHTML(input string) string {
	return escape(input, true)
}

// EscapeAttribute escapes input for use inside a quoted HTML attribute value.
// Slashes are escaped unless allowSlash is set
func EscapeAttribute(input string, allowSlash bool) string {
	return escape(input, !allowSlash)
}
