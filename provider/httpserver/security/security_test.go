package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "csrf-test-secret-0123456789abcdef"

func newGateway(t *testing.T) *gateway.Gateway {
	cfg := gateway.NewConfig()
	cfg.CSRF.Secret = secure.CredentialConfig{Password: testSecret}
	gw, err := gateway.New(cfg)
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	return gw
}

func TestHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gw := newGateway(t)
	router := gin.New()
	router.Use(Headers(nil, gw))

	var nonce string
	router.GET("/", func(c *gin.Context) {
		nonce = GetNonce(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, nonce)

	csp := w.Header().Get(HeaderCSP)
	assert.Contains(t, csp, "'nonce-"+nonce+"'")
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get(HeaderHSTS))

	// nonce is per request
	w2 := httptest.NewRecorder()
	first := nonce
	router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEqual(t, first, nonce)
}

func TestHeadersHSTS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := NewSecurityConfig()
	cfg.UseCSPNonce = false
	router := gin.New()
	router.Use(Headers(cfg, newGateway(t)))
	router.GET("/", func(c *gin.Context) {
		assert.Empty(t, GetNonce(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, cfg.HSTS, w.Header().Get(HeaderHSTS))
	assert.NotContains(t, w.Header().Get(HeaderCSP), "nonce-")

	// forwarded proto is ignored unless trusted
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get(HeaderHSTS))
}

func csrfRouter(t *testing.T, session string) (*gin.Engine, *gateway.CSRF) {
	gin.SetMode(gin.TestMode)
	csrf := newGateway(t).CSRF()
	router := gin.New()
	router.Use(CSRF(csrf, func(*gin.Context) string { return session }))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router, csrf
}

func post(router *gin.Engine, header, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Accept", "application/json")
	if header != "" {
		req.Header.Set(gateway.DefaultHeaderName, header)
	}
	if cookie != "" {
		req.Header.Set("Cookie", gateway.DefaultCookieName+"="+cookie)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCSRFIssuesOnSafeMethods(t *testing.T) {
	router, csrf := csrfRouter(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	tok := w.Header().Get(gateway.DefaultHeaderName)
	require.NotEmpty(t, tok)
	assert.True(t, csrf.Verify(tok).OK())
	assert.True(t, strings.HasPrefix(w.Header().Get("Set-Cookie"), gateway.DefaultCookieName+"="+tok))

	// a valid cookie is not replaced
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", gateway.DefaultCookieName+"="+tok)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

func TestCSRFEnforcesUnsafeMethods(t *testing.T) {
	router, csrf := csrfRouter(t, "")
	issued, err := csrf.Generate("")
	require.NoError(t, err)
	other, err := csrf.Generate("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		cookie  string
		status  int
		message string
	}{
		{"valid", issued.Token, issued.Token, http.StatusOK, ""},
		{"no cookie", issued.Token, "", http.StatusForbidden, "csrf validation failed: cookie_missing"},
		{"no header", "", issued.Token, http.StatusForbidden, "csrf validation failed: token_missing"},
		{"mismatch", issued.Token, other.Token, http.StatusForbidden, "csrf validation failed: mismatch"},
		{"forged", "v1.AAAA.BBBB", "v1.AAAA.BBBB", http.StatusForbidden, "csrf validation failed: invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, tt.header, tt.cookie)
			require.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.Contains(t, w.Body.String(), tt.message)
			}
		})
	}
}

func TestCSRFSessionBinding(t *testing.T) {
	router, csrf := csrfRouter(t, "42")

	bound, err := csrf.Generate("42")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, post(router, bound.Token, bound.Token).Code)

	foreign, err := csrf.Generate("7")
	require.NoError(t, err)
	w := post(router, foreign.Token, foreign.Token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "session_mismatch")

	// unbound tokens remain valid for any session
	unbound, err := csrf.Generate("")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, post(router, unbound.Token, unbound.Token).Code)
}

type stubLimiter struct {
	allowed map[string]int
}

func (s *stubLimiter) Allow(key string) bool {
	if s.allowed[key] <= 0 {
		return false
	}
	s.allowed[key]--
	return true
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &stubLimiter{allowed: map[string]int{"ip:192.0.2.1": 2}}
	var limited []string

	router := gin.New()
	router.Use(RateLimit(limiter, nil, func(c *gin.Context, key string) {
		limited = append(limited, key)
	}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, []string{"ip:192.0.2.1"}, limited)
}
