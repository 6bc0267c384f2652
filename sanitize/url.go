package sanitize

import (
	"net/url"
	"strings"
)

var blockedSchemes = map[string]struct{}{
	"javascript": {},
	"data":       {},
	"vbscript":   {},
}

// characters kept verbatim when re-encoding a URL
const uriSafe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789;,/?:@&=+$-_.!~*'()#[]"

// SanitizeURL returns a re-encoded copy of input, or "" if input is not a
// parseable URL, is protocol-relative, or uses a javascript:, data: or vbscript: scheme
func SanitizeURL(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	// browsers treat backslashes as slashes
	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, `\\`) ||
		strings.HasPrefix(trimmed, `/\`) || strings.HasPrefix(trimmed, `\/`) {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if _, blocked := blockedSchemes[strings.ToLower(u.Scheme)]; blocked {
		return ""
	}
	return encodeURI(trimmed)
}

// URLScheme returns the lowercase scheme of a sanitized URL, or "" for relative URLs
func URLScheme(input string) string {
	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// encodeURI percent-encodes everything outside uriSafe; existing %XX escapes are preserved
func encodeURI(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case strings.IndexByte(uriSafe, c) >= 0:
			b.WriteByte(c)
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0F])
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
