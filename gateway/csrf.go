package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/crypt/signing"
	"github.com/oddbit-project/walletguard/crypt/token"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrMissingSecret     = utils.Error("csrf secret is not configured")
	ErrWeakSecret        = utils.Error("csrf secret must be at least 32 bytes")
	ErrInvalidTTL        = utils.Error("csrf ttl cannot be negative")
	ErrInvalidSameSite   = utils.Error("invalid SameSite value; must be one of Strict, Lax, None")
	ErrInsecureSameSite  = utils.Error("SameSite=None requires Secure cookies")
	ErrMissingCookieName = utils.Error("csrf cookie name is empty")
	ErrMissingHeaderName = utils.Error("csrf header name is empty")

	TokenVersion = "v1"

	DefaultCookieName = "nd_csrf"
	DefaultHeaderName = "x-csrf-token"
	DefaultFormField  = "_csrf"
	DefaultTTLSeconds = 3600

	MinSecretLength = 32
	nonceBytes      = 16
)

// Status is the outcome of a csrf verification
type Status string

const (
	StatusOK              Status = "OK"
	StatusTokenMissing    Status = "TOKEN_MISSING"
	StatusCookieMissing   Status = "COOKIE_MISSING"
	StatusMismatch        Status = "MISMATCH"
	StatusExpired         Status = "EXPIRED"
	StatusInvalid         Status = "INVALID"
	StatusAlgoUnsupported Status = "ALGO_UNSUPPORTED"
)

type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

type CsrfConfig struct {
	Secret       secure.CredentialConfig `json:"secret"`
	CookieName   string                  `json:"cookieName"`
	HeaderName   string                  `json:"headerName"`
	FormField    string                  `json:"formField"`
	TTLSeconds   int                     `json:"ttlSeconds"` // 0 issues tokens without expiry
	CookiePath   string                  `json:"cookiePath"`
	CookieDomain string                  `json:"cookieDomain"`
	Secure       bool                    `json:"secure"`
	// HttpOnly must stay false for double-submit; the client script reads the cookie
	HttpOnly     bool     `json:"httpOnly"`
	SameSite     SameSite `json:"sameSite"`
	CookieMaxAge int      `json:"cookieMaxAge"` // 0 uses TTLSeconds
}

// NewCsrfConfig returns the default csrf configuration; a secret must still be provided
func NewCsrfConfig() *CsrfConfig {
	return &CsrfConfig{
		CookieName: DefaultCookieName,
		HeaderName: DefaultHeaderName,
		FormField:  DefaultFormField,
		TTLSeconds: DefaultTTLSeconds,
		CookiePath: "/",
		Secure:     true,
		HttpOnly:   false,
		SameSite:   SameSiteLax,
	}
}

func (c *CsrfConfig) Validate() error {
	if c.Secret.IsEmpty() {
		return ErrMissingSecret
	}
	if c.TTLSeconds < 0 || c.CookieMaxAge < 0 {
		return ErrInvalidTTL
	}
	if c.CookieName == "" {
		return ErrMissingCookieName
	}
	if c.HeaderName == "" {
		return ErrMissingHeaderName
	}
	switch c.SameSite {
	case SameSiteStrict, SameSiteLax:
	case SameSiteNone:
		if !c.Secure {
			return ErrInsecureSameSite
		}
	default:
		return ErrInvalidSameSite
	}
	return nil
}

// MaxAge returns the cookie Max-Age in seconds
func (c *CsrfConfig) MaxAge() int {
	if c.CookieMaxAge > 0 {
		return c.CookieMaxAge
	}
	return c.TTLSeconds
}

// Payload is the signed content of a csrf token
type Payload struct {
	SessionID string `json:"sessionId,omitempty"`
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt *int64 `json:"exp,omitempty"`
}

// IssuedToken holds a new token and the artifacts needed to deliver it
type IssuedToken struct {
	Token        string `json:"token"`
	CookieName   string `json:"cookieName"`
	SetCookie    string `json:"-"`
	HeaderName   string `json:"headerName"`
	HeaderValue  string `json:"-"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	SessionBound bool   `json:"sessionBound"`
}

// Result of a csrf verification
type Result struct {
	Status  Status
	Payload *Payload
	Details string
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

// CSRF issues and verifies stateless double-submit tokens
type CSRF struct {
	cfg    *CsrfConfig
	secret *secure.Credential
	now    func() time.Time
}

// NewCSRF validates cfg and loads the signing secret
func NewCSRF(cfg *CsrfConfig) (*CSRF, error) {
	if cfg == nil {
		cfg = NewCsrfConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	secret, err := secure.NewCredentialFromConfig(cfg.Secret, false)
	if err != nil {
		return nil, err
	}
	raw, err := secret.GetBytes()
	if err != nil {
		secret.Clear()
		return nil, err
	}
	defer utils.Zero(raw)
	if len(raw) < MinSecretLength {
		secret.Clear()
		return nil, ErrWeakSecret
	}
	return &CSRF{
		cfg:    cfg,
		secret: secret,
		now:    time.Now,
	}, nil
}

// Config returns the active configuration
func (c *CSRF) Config() *CsrfConfig {
	return c.cfg
}

// Close wipes the signing secret from memory
func (c *CSRF) Close() {
	c.secret.Clear()
}

func (c *CSRF) sign(encodedPayload string) ([]byte, error) {
	key, err := c.secret.GetBytes()
	if err != nil {
		return nil, err
	}
	defer utils.Zero(key)
	return signing.HMACSHA256(key, []byte(encodedPayload)), nil
}

// Generate issues a new token, optionally bound to sessionID
func (c *CSRF) Generate(sessionID string) (*IssuedToken, error) {
	nonce, err := token.GenerateHexToken(nonceBytes)
	if err != nil {
		return nil, err
	}
	iat := c.now().Unix()
	payload := Payload{
		SessionID: sessionID,
		Nonce:     nonce,
		IssuedAt:  iat,
	}
	if c.cfg.TTLSeconds > 0 {
		exp := iat + int64(c.cfg.TTLSeconds)
		payload.ExpiresAt = &exp
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	encoded := signing.EncodeSegment(raw)
	sig, err := c.sign(encoded)
	if err != nil {
		return nil, err
	}
	tok := signing.EncodeToken(TokenVersion, sig, encoded)

	result := &IssuedToken{
		Token:        tok,
		CookieName:   c.cfg.CookieName,
		SetCookie:    c.SetCookie(tok),
		HeaderName:   c.cfg.HeaderName,
		HeaderValue:  tok,
		SessionBound: sessionID != "",
	}
	if payload.ExpiresAt != nil {
		result.ExpiresAt = *payload.ExpiresAt
	}
	return result, nil
}

// Verify checks signature, version and expiry of a single token
func (c *CSRF) Verify(tok string) Result {
	if tok == "" {
		return Result{Status: StatusTokenMissing, Details: "token not provided"}
	}
	decoded, err := signing.DecodeToken(tok)
	if err != nil {
		return Result{Status: StatusInvalid, Details: err.Error()}
	}
	if decoded.Version != TokenVersion {
		return Result{Status: StatusAlgoUnsupported, Details: "unsupported token version " + decoded.Version}
	}

	expected, err := c.sign(decoded.EncodedPayload)
	if err != nil {
		return Result{Status: StatusInvalid, Details: err.Error()}
	}
	if !signing.Equal(expected, decoded.Signature) {
		return Result{Status: StatusInvalid, Details: "signature mismatch"}
	}

	payload := &Payload{}
	if err = json.Unmarshal(decoded.Payload, payload); err != nil || payload.Nonce == "" {
		return Result{Status: StatusInvalid, Details: "malformed payload"}
	}
	if payload.ExpiresAt != nil && *payload.ExpiresAt < c.now().Unix() {
		return Result{Status: StatusExpired, Payload: payload, Details: "token expired"}
	}
	return Result{Status: StatusOK, Payload: payload}
}

// VerifyDoubleSubmit requires the header and cookie tokens to be present and identical,
// then verifies the token itself
func (c *CSRF) VerifyDoubleSubmit(headerToken, cookieToken string) Result {
	if cookieToken == "" {
		return Result{Status: StatusCookieMissing, Details: "csrf cookie missing"}
	}
	if headerToken == "" {
		return Result{Status: StatusTokenMissing, Details: "csrf header missing"}
	}
	if !signing.EqualString(headerToken, cookieToken) {
		return Result{Status: StatusMismatch, Details: "header/cookie token mismatch"}
	}
	return c.Verify(headerToken)
}

// SetCookie builds the Set-Cookie header value carrying tok
func (c *CSRF) SetCookie(tok string) string {
	return BuildSetCookie(c.cfg.CookieName, tok, CookieOptions{
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		Secure:   c.cfg.Secure,
		HttpOnly: c.cfg.HttpOnly,
		SameSite: c.cfg.SameSite,
		MaxAge:   c.cfg.MaxAge(),
	})
}

// ExtractToken reads the submitted token (header, then form field) and the cookie token
func (c *CSRF) ExtractToken(r *http.Request) (headerToken string, cookieToken string) {
	headerToken = strings.TrimSpace(r.Header.Get(c.cfg.HeaderName))
	if headerToken == "" && c.cfg.FormField != "" && r.Method != http.MethodGet {
		headerToken = strings.TrimSpace(r.PostFormValue(c.cfg.FormField))
	}
	cookies := ParseCookies(strings.Join(r.Header.Values("Cookie"), "; "))
	return headerToken, cookies[c.cfg.CookieName]
}

// IsSafeMethod returns true for methods exempt from csrf enforcement
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
