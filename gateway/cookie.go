package gateway

import (
	"strconv"
	"strings"
)

type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	HttpOnly bool
	SameSite SameSite
	MaxAge   int // omitted when <= 0
}

// BuildSetCookie formats a Set-Cookie header value
func BuildSetCookie(name, value string, opts CookieOptions) string {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	parts := []string{name + "=" + value, "Path=" + path}
	if opts.Domain != "" {
		parts = append(parts, "Domain="+opts.Domain)
	}
	if opts.Secure {
		parts = append(parts, "Secure")
	}
	if opts.HttpOnly {
		parts = append(parts, "HttpOnly")
	}
	if opts.SameSite != "" {
		parts = append(parts, "SameSite="+string(opts.SameSite))
	}
	if opts.MaxAge > 0 {
		parts = append(parts, "Max-Age="+strconv.Itoa(opts.MaxAge))
	}
	return strings.Join(parts, "; ")
}

// ParseCookies parses a Cookie header into a name/value map; pairs without '=' are skipped
// and later duplicates win
func ParseCookies(header string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(header, ";") {
		pair = strings.TrimSpace(pair)
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			continue
		}
		k := strings.TrimSpace(pair[:idx])
		if k != "" {
			result[k] = strings.TrimSpace(pair[idx+1:])
		}
	}
	return result
}
