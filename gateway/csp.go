package gateway

import (
	"regexp"
	"strings"
)

// CSPOptions controls DefaultCSP
type CSPOptions struct {
	Dev             bool     `json:"dev"`             // adds 'unsafe-inline' styles and localhost connect sources
	ExtraConnectSrc []string `json:"extraConnectSrc"` // additional connect-src origins
	Nonce           string   `json:"-"`
}

func NewCSPOptions() *CSPOptions {
	return &CSPOptions{
		ExtraConnectSrc: []string{},
	}
}

// CSP is an ordered set of Content-Security-Policy directives.
// Directives without values are serialized as flags
type CSP struct {
	names  []string
	values map[string][]string
}

func NewCSP() *CSP {
	return &CSP{
		names:  make([]string, 0),
		values: make(map[string][]string),
	}
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

// Set replaces the values of a directive, keeping its position if already present
func (c *CSP) Set(name string, values ...string) *CSP {
	if _, ok := c.values[name]; !ok {
		c.names = append(c.names, name)
	}
	c.values[name] = appendUnique(make([]string, 0, len(values)), values...)
	return c
}

// Add appends values to a directive, creating it if needed
func (c *CSP) Add(name string, values ...string) *CSP {
	if _, ok := c.values[name]; !ok {
		return c.Set(name, values...)
	}
	c.values[name] = appendUnique(c.values[name], values...)
	return c
}

// Flag adds a directive without values, such as upgrade-insecure-requests
func (c *CSP) Flag(name string) *CSP {
	return c.Set(name)
}

// Get returns the values of a directive
func (c *CSP) Get(name string) ([]string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Directives lists directive names in insertion order
func (c *CSP) Directives() []string {
	return append([]string(nil), c.names...)
}

func (c *CSP) Clone() *CSP {
	result := NewCSP()
	for _, name := range c.names {
		result.Set(name, c.values[name]...)
	}
	return result
}

// WithNonce returns a copy with 'nonce-<nonce>' added to script-src and style-src
func (c *CSP) WithNonce(nonce string) *CSP {
	result := c.Clone()
	if nonce == "" {
		return result
	}
	source := "'nonce-" + nonce + "'"
	for _, name := range []string{"script-src", "style-src"} {
		if _, ok := result.values[name]; ok {
			result.Add(name, source)
		}
	}
	return result
}

// Serialize renders the policy as "key v1 v2; key2 v3; flag"
func (c *CSP) Serialize() string {
	parts := make([]string, 0, len(c.names))
	for _, name := range c.names {
		values := c.values[name]
		if len(values) == 0 {
			parts = append(parts, name)
			continue
		}
		parts = append(parts, name+" "+strings.Join(values, " "))
	}
	return strings.Join(parts, "; ")
}

func (c *CSP) String() string {
	return c.Serialize()
}

var (
	cspSpaceRe     = regexp.MustCompile(`\s+`)
	cspSeparatorRe = regexp.MustCompile(`;\s*`)
)

// NormalizeCSP canonicalizes whitespace and case so two headers can be compared
func NormalizeCSP(header string) string {
	h := strings.TrimSpace(header)
	h = cspSpaceRe.ReplaceAllString(h, " ")
	h = cspSeparatorRe.ReplaceAllString(h, "; ")
	return strings.ToLower(h)
}

// DefaultCSP builds the production policy; opts.Dev relaxes style and connect sources
func DefaultCSP(opts CSPOptions) *CSP {
	csp := NewCSP().
		Set("default-src", "'self'").
		Set("script-src", "'self'", "'wasm-unsafe-eval'", "https://telegram.org").
		Set("script-src-attr", "'none'").
		Set("style-src", "'self'").
		Set("style-src-attr", "'none'").
		Set("img-src",
			"'self'",
			"data:",
			"blob:",
			"https://*.ipfs.io",
			"https://*.ipfs.dweb.link",
			"https://ipfs.io",
			"https://gateway.pinata.cloud",
			"https://cloudflare-ipfs.com",
			"https://*.normaldance.com",
		).
		Set("connect-src",
			"'self'",
			"https://api.mainnet-beta.solana.com",
			"wss://api.mainnet-beta.solana.com",
			"https://ton.org",
			"https://tonapi.io",
		).
		Set("font-src", "'self'", "data:", "https://fonts.gstatic.com").
		Set("object-src", "'none'").
		Set("base-uri", "'self'").
		Set("form-action", "'self'").
		Set("frame-ancestors", "'none'").
		Flag("upgrade-insecure-requests")

	if opts.Dev {
		csp.Add("style-src", "'unsafe-inline'")
		csp.Add("connect-src",
			"http://127.0.0.1:*",
			"http://localhost:*",
			"ws://127.0.0.1:*",
			"ws://localhost:*",
		)
	}
	csp.Add("connect-src", opts.ExtraConnectSrc...)

	if opts.Nonce != "" {
		return csp.WithNonce(opts.Nonce)
	}
	return csp
}
