package security

import (
	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/crypt/token"
	"github.com/oddbit-project/walletguard/gateway"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
)

const (
	ContextCSPNonce = "csp-nonce"

	HeaderCSP  = "Content-Security-Policy"
	HeaderHSTS = "Strict-Transport-Security"

	nonceBytes = 16
)

// PolicySource returns the content security policy for a response, with nonce added when not empty;
// *gateway.Gateway implements it
type PolicySource interface {
	CSP(nonce string) *gateway.CSP
}

// SecurityConfig contains configuration for security headers
type SecurityConfig struct {
	ContentTypeOptions string `json:"contentTypeOptions"`
	ReferrerPolicy     string `json:"referrerPolicy"`
	HSTS               string `json:"hsts"`
	FrameOptions       string `json:"frameOptions"`
	PermissionsPolicy  string `json:"permissionsPolicy"`
	CacheControl       string `json:"cacheControl"`
	// UseCSPNonce generates a fresh script/style nonce per request
	UseCSPNonce bool `json:"useCspNonce"`
	// TrustForwardedProto sends HSTS when a proxy reports X-Forwarded-Proto: https
	TrustForwardedProto bool `json:"trustForwardedProto"`
}

// NewSecurityConfig returns security configuration with sane defaults
func NewSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		ContentTypeOptions: "nosniff",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		HSTS:               "max-age=31536000; includeSubDomains",
		FrameOptions:       "DENY",
		PermissionsPolicy:  "camera=(), microphone=(), geolocation=()",
		CacheControl:       "no-store",
		UseCSPNonce:        true,
	}
}

func (c *SecurityConfig) isHTTPS(ctx *gin.Context) bool {
	if ctx.Request.TLS != nil {
		return true
	}
	return c.TrustForwardedProto && ctx.GetHeader("X-Forwarded-Proto") == "https"
}

// Headers adds security headers and the content security policy to each response
func Headers(cfg *SecurityConfig, policy PolicySource) gin.HandlerFunc {
	if cfg == nil {
		cfg = NewSecurityConfig()
	}
	return func(c *gin.Context) {
		if cfg.ContentTypeOptions != "" {
			c.Header("X-Content-Type-Options", cfg.ContentTypeOptions)
		}
		if cfg.FrameOptions != "" {
			c.Header("X-Frame-Options", cfg.FrameOptions)
		}
		if cfg.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", cfg.ReferrerPolicy)
		}
		if cfg.PermissionsPolicy != "" {
			c.Header("Permissions-Policy", cfg.PermissionsPolicy)
		}
		if cfg.CacheControl != "" {
			c.Header("Cache-Control", cfg.CacheControl)
		}
		if cfg.HSTS != "" && cfg.isHTTPS(c) {
			c.Header(HeaderHSTS, cfg.HSTS)
		}

		if policy != nil {
			nonce := ""
			if cfg.UseCSPNonce {
				var err error
				if nonce, err = token.GenerateSecureBase64Token(nonceBytes); err != nil {
					response.Http500(c, err)
					return
				}
				c.Set(ContextCSPNonce, nonce)
			}
			c.Header(HeaderCSP, policy.CSP(nonce).Serialize())
		}
		c.Next()
	}
}

// GetNonce returns the csp nonce generated for the current request
func GetNonce(c *gin.Context) string {
	return c.GetString(ContextCSPNonce)
}
