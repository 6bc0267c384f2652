// Package gateway implements the browser-facing trust boundary: stateless
// double-submit csrf tokens, content security policy generation and typed
// input validation on top of the sanitize package
package gateway

import (
	"github.com/oddbit-project/walletguard/sanitize"
)

type Config struct {
	CSRF              *CsrfConfig `json:"csrf"`
	CSP               *CSPOptions `json:"csp"`
	MaxTextLength     int         `json:"maxTextLength"`
	MaxAmountDecimals int32       `json:"maxAmountDecimals"`
}

func NewConfig() *Config {
	return &Config{
		CSRF:              NewCsrfConfig(),
		CSP:               NewCSPOptions(),
		MaxTextLength:     1000,
		MaxAmountDecimals: 9,
	}
}

func (c *Config) Validate() error {
	if c.CSRF == nil {
		return ErrMissingSecret
	}
	if err := c.CSRF.Validate(); err != nil {
		return err
	}
	if c.MaxTextLength <= 0 {
		return ErrInvalidMaxLength
	}
	if c.MaxAmountDecimals <= 0 {
		return ErrInvalidMaxDecimals
	}
	return nil
}

// Gateway bundles the csrf issuer, the base content security policy and
// the validator table for one deployment
type Gateway struct {
	csrf       *CSRF
	csp        *CSP
	validators map[ValidatorKind]ValidatorFunc
}

func New(cfg *Config) (*Gateway, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	csrf, err := NewCSRF(cfg.CSRF)
	if err != nil {
		return nil, err
	}
	cspOpts := CSPOptions{}
	if cfg.CSP != nil {
		cspOpts = *cfg.CSP
	}
	cspOpts.Nonce = ""
	return &Gateway{
		csrf:       csrf,
		csp:        DefaultCSP(cspOpts),
		validators: newValidators(cfg),
	}, nil
}

func (g *Gateway) CSRF() *CSRF {
	return g.csrf
}

// CSP returns a copy of the base policy, with nonce added when not empty
func (g *Gateway) CSP(nonce string) *CSP {
	return g.csp.WithNonce(nonce)
}

// Validate runs the validator registered for kind
func (g *Gateway) Validate(kind ValidatorKind, input string) error {
	fn, ok := g.validators[kind]
	if !ok {
		return ErrUnknownValidator
	}
	return fn(input)
}

// Sanitize escapes input for the given output context
func (g *Gateway) Sanitize(input string, ctx sanitize.Context) string {
	return sanitize.SanitizeString(input, ctx)
}

// Close releases the csrf secret
func (g *Gateway) Close() {
	g.csrf.Close()
}
