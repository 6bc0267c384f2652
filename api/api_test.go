package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/gateway"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
	"github.com/oddbit-project/walletguard/provider/kv"
	"github.com/oddbit-project/walletguard/provider/ratelimiter"
	"github.com/oddbit-project/walletguard/recovery"
	"github.com/oddbit-project/walletguard/security"
	"github.com/oddbit-project/walletguard/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBotToken     = "123456:api-test-bot-token"
	testCSRFSecret   = "api-csrf-secret-0123456789abcdef0"
	testRecoverySeed = "api-recovery-secret-0123456789abcdef"
	testUserID       = "42"
	testAdminID      = "1"
	testWallet       = "0x52908400098527886E0F7030069857D2E4169EE7"
)

type codeMessenger struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *codeMessenger) DeliverShare(context.Context, string, recovery.Contact, *recovery.VerificationRequest) error {
	return nil
}

func (m *codeMessenger) DeliverCode(_ context.Context, _ string, contact recovery.Contact, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[contact.ID] = code
	return nil
}

func (m *codeMessenger) code(contactID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[contactID]
}

type apiEnv struct {
	router    *gin.Engine
	security  *security.Manager
	recovery  *recovery.Manager
	messenger *codeMessenger
}

func newAPIEnv(t *testing.T, burst int) *apiEnv {
	gin.SetMode(gin.TestMode)
	backend := kv.NewMemoryKV()

	gwCfg := gateway.NewConfig()
	gwCfg.CSRF.Secret = secure.CredentialConfig{Password: testCSRFSecret}
	gw, err := gateway.New(gwCfg)
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	secCfg := security.NewConfig()
	secCfg.SweepIntervalSeconds = 0
	sec, err := security.NewManager(secCfg, backend)
	require.NoError(t, err)

	messenger := &codeMessenger{codes: map[string]string{}}
	recCfg := recovery.NewConfig()
	recCfg.Secret = secure.CredentialConfig{Password: testRecoverySeed}
	recCfg.SweepIntervalSeconds = 0
	directory := recovery.NewContactDirectory(backend)
	rec, err := recovery.NewManager(recCfg, backend,
		recovery.WithContactSource(directory),
		recovery.WithMessenger(messenger),
		recovery.WithAuditor(sec),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = rec.Shutdown(context.Background())
	})

	tgCfg := telegram.NewConfig()
	tgCfg.BotToken = secure.CredentialConfig{Password: testBotToken}
	validator, err := telegram.NewValidator(tgCfg)
	require.NoError(t, err)
	t.Cleanup(validator.Close)

	limiter, err := ratelimiter.NewRateLimiter(&ratelimiter.Config{RateLimit: 0.001, Burst: burst, TTL: 60, CleanupInterval: 60})
	require.NoError(t, err)

	cfg := NewConfig()
	cfg.AdminUserIDs = []string{testAdminID}
	handler, err := New(cfg, Services{
		Gateway:   gw,
		Security:  sec,
		Recovery:  rec,
		Contacts:  directory,
		Validator: validator,
		Limiter:   limiter,
	})
	require.NoError(t, err)

	router := gin.New()
	handler.Register(router)
	return &apiEnv{router: router, security: sec, recovery: rec, messenger: messenger}
}

func initData(userID string) string {
	return telegram.SignInitData(map[string]string{
		telegram.FieldAuthDate: strconv.FormatInt(time.Now().Unix(), 10),
		telegram.FieldUser:     `{"id":` + userID + `,"first_name":"Test","username":"tester"}`,
	}, testBotToken)
}

// client is an authenticated caller that replays its csrf token
type client struct {
	t      *testing.T
	env    *apiEnv
	userID string
	token  string
}

func (e *apiEnv) client(t *testing.T, userID string) *client {
	c := &client{t: t, env: e, userID: userID}
	w := c.do(http.MethodGet, "/api/csrf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data csrfResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Token)
	c.token = body.Data.Token
	return c
}

func (c *client) do(method, path string, payload interface{}) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		require.NoError(c.t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(telegram.HeaderInitData, initData(c.userID))
	if c.token != "" {
		req.Header.Set(gateway.DefaultHeaderName, c.token)
		req.Header.Set("Cookie", gateway.DefaultCookieName+"="+c.token)
	}
	w := httptest.NewRecorder()
	c.env.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	var body struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	require.True(t, body.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(body.Data, dest))
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	var body response.JSONResponseError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	assert.False(t, body.Success)
	return body.Error.Message
}

func TestNew(t *testing.T) {
	_, err := New(nil, Services{})
	assert.ErrorIs(t, err, ErrNilConfig)

	cfg := NewConfig()
	cfg.MaxBodyBytes = 0
	_, err = New(cfg, Services{})
	assert.ErrorIs(t, err, ErrInvalidBodyLimit)

	_, err = New(NewConfig(), Services{})
	assert.ErrorIs(t, err, ErrMissingService)
}

func TestAuthentication(t *testing.T) {
	env := newAPIEnv(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/csrf", nil)
	req.Header.Set(telegram.HeaderInitData, telegram.SignInitData(map[string]string{
		telegram.FieldAuthDate: strconv.FormatInt(time.Now().Unix(), 10),
		telegram.FieldUser:     `{"id":42}`,
	}, "999:forged"))
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionAndCSRF(t *testing.T) {
	env := newAPIEnv(t, 100)
	c := env.client(t, testUserID)

	w := c.do(http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var session sessionResponse
	decodeData(t, w, &session)
	assert.Equal(t, testUserID, session.UserID)
	assert.Equal(t, "tester", session.Username)
	assert.NotEmpty(t, session.CSRF.Token)
	assert.Equal(t, gateway.DefaultHeaderName, session.CSRF.HeaderName)

	events := env.security.Events(context.Background(), security.EventFilter{UserID: testUserID, Type: security.EventLoginSuccess})
	assert.Len(t, events, 1)

	// unsafe request without the token pair
	anonymous := &client{t: t, env: env, userID: testUserID}
	w = anonymous.do(http.MethodPost, "/api/phishing/check", phishingRequest{URL: "https://t.me/wallet"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, errorMessage(t, w), "cookie_missing")

	// tokens are bound to the telegram user
	other := &client{t: t, env: env, userID: "7", token: c.token}
	w = other.do(http.MethodPost, "/api/phishing/check", phishingRequest{URL: "https://t.me/wallet"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, errorMessage(t, w), "session_mismatch")

	w = c.do(http.MethodPost, "/api/phishing/check", phishingRequest{URL: "https://t.me/wallet"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidateTransaction(t *testing.T) {
	env := newAPIEnv(t, 100)
	c := env.client(t, testUserID)

	tests := []struct {
		name    string
		request transactionRequest
		status  int
		allowed bool
	}{
		{"allowed", transactionRequest{ID: "tx-1", To: testWallet, Amount: "1.5"}, http.StatusOK, true},
		{"over ceiling", transactionRequest{ID: "tx-2", To: testWallet, Amount: "1000"}, http.StatusOK, false},
		{"bad address", transactionRequest{ID: "tx-3", To: "not-a-wallet", Amount: "1"}, http.StatusBadRequest, false},
		{"negative amount", transactionRequest{ID: "tx-4", To: testWallet, Amount: "-1"}, http.StatusBadRequest, false},
		{"missing id", transactionRequest{To: testWallet, Amount: "1"}, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := c.do(http.MethodPost, "/api/tx/validate", tt.request)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var result transactionResponse
			decodeData(t, w, &result)
			assert.Equal(t, tt.request.ID, result.TransactionID)
			assert.Equal(t, tt.allowed, result.Allowed)
		})
	}

	events := env.security.Events(context.Background(), security.EventFilter{UserID: testUserID, Type: security.EventTransactionCreated})
	assert.Len(t, events, 1)
}

func TestPhishingAndFeeds(t *testing.T) {
	env := newAPIEnv(t, 100)
	c := env.client(t, testUserID)

	w := c.do(http.MethodPost, "/api/phishing/check", phishingRequest{URL: "http://bit.ly/free-airdrop"})
	require.Equal(t, http.StatusOK, w.Code)
	var result security.PhishingResult
	decodeData(t, w, &result)
	assert.True(t, result.IsPhishing)
	assert.Contains(t, result.Signals, security.SignalShortener)

	w = c.do(http.MethodGet, "/api/security/events?type=phishing_attempt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []security.Event
	decodeData(t, w, &events)
	require.Len(t, events, 1)
	assert.Equal(t, testUserID, events[0].UserID)

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/api/security/events?type=bogus", nil).Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/api/security/events?limit=0", nil).Code)

	// alerts are for administrators only
	assert.Equal(t, http.StatusForbidden, c.do(http.MethodGet, "/api/security/alerts", nil).Code)
	denied := env.security.Events(context.Background(), security.EventFilter{UserID: testUserID, Type: security.EventUnauthorizedAccess})
	assert.Len(t, denied, 1)

	admin := env.client(t, testAdminID)
	w = admin.do(http.MethodGet, "/api/security/alerts?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var alerts []security.Alert
	decodeData(t, w, &alerts)
	require.NotEmpty(t, alerts)
	var found bool
	for _, a := range alerts {
		found = found || a.Type == security.AlertPhishingAttempt
	}
	assert.True(t, found)
}

func TestRecoveryFlow(t *testing.T) {
	env := newAPIEnv(t, 100)
	c := env.client(t, testUserID)
	ctx := context.Background()

	contacts := contactsRequest{Contacts: []recovery.Contact{
		{ID: "tg:1", FirstName: "Alice", Username: "alice_w", TrustLevel: 0.9, IsVerified: true},
		{ID: "tg:2", FirstName: "Bob", TrustLevel: 0.6},
	}}
	w := c.do(http.MethodPut, "/api/recovery/contacts", contacts)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var groups recovery.ContactGroups
	decodeData(t, w, &groups)
	assert.Len(t, groups.Pending, 2)
	assert.Empty(t, groups.Trusted)

	// code issue and verification
	w = c.do(http.MethodPost, "/api/recovery/contacts/tg:1/code", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	code := env.messenger.code("tg:1")
	require.NotEmpty(t, code)

	w = c.do(http.MethodPost, "/api/recovery/contacts/tg:1/verify", codeRequest{Code: "000-000"})
	if code != "000-000" {
		require.Equal(t, http.StatusForbidden, w.Code)
	}
	w = c.do(http.MethodPost, "/api/recovery/contacts/tg:1/verify", codeRequest{Code: code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var md recovery.ContactMetadata
	decodeData(t, w, &md)
	assert.Equal(t, recovery.StatusVerified, md.VerificationStatus)

	w = c.do(http.MethodPut, "/api/recovery/contacts/tg:2/trust", map[string]float64{"trustLevel": 0.75})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &md)
	assert.Equal(t, 0.75, md.TrustLevel)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPut, "/api/recovery/contacts/tg:2/trust", map[string]float64{"trustLevel": 1.5}).Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/api/recovery/contacts/tg:9/code", nil).Code)

	// share handshake
	secret := []byte("share-bytes")
	w = c.do(http.MethodPost, "/api/recovery/shares", shareRequest{ContactID: "tg:1", ShareData: secret, Message: "keep this safe"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sent shareResponse
	decodeData(t, w, &sent)
	assert.Equal(t, recovery.RequestPending, sent.Status)

	receivePath := "/api/recovery/requests/" + sent.RequestID + "/receive"
	w = c.do(http.MethodPost, receivePath, receiveRequest{ContactID: "tg:1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, env.recovery.AcceptRequest(ctx, sent.RequestID, "tg:1"))

	w = c.do(http.MethodPost, receivePath, receiveRequest{ContactID: "tg:2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.do(http.MethodPost, receivePath, receiveRequest{ContactID: "tg:1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var share recovery.RecoveryShare
	decodeData(t, w, &share)
	assert.Equal(t, secret, share.ShareData)
	assert.False(t, share.Encrypted)

	// other owners cannot see the request
	stranger := env.client(t, "7")
	require.Equal(t, http.StatusOK, stranger.do(http.MethodPut, "/api/recovery/contacts", contacts).Code)
	assert.Equal(t, http.StatusNotFound, stranger.do(http.MethodPost, receivePath, receiveRequest{ContactID: "tg:1"}).Code)

	audit := env.security.Events(ctx, security.EventFilter{UserID: testUserID})
	types := map[security.EventType]bool{}
	for _, e := range audit {
		types[e.Type] = true
	}
	assert.True(t, types[security.EventContactVerified])
	assert.True(t, types[security.EventRecoveryShareSent])
	assert.True(t, types[security.EventRecoveryShareReceived])
}

func TestContactSelection(t *testing.T) {
	env := newAPIEnv(t, 100)
	c := env.client(t, testUserID)

	w := c.do(http.MethodPut, "/api/recovery/contacts", contactsRequest{Contacts: []recovery.Contact{
		{ID: "tg:1", FirstName: "Alice", TrustLevel: 0.9},
		{ID: "tg:2", FirstName: "Bob", TrustLevel: 0.6},
		{ID: "tg:3", FirstName: "Carol", TrustLevel: 0.3},
		{ID: testUserID, FirstName: "Self", TrustLevel: 1},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ids := func(path string) []string {
		w := c.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var selected []recovery.Contact
		decodeData(t, w, &selected)
		result := make([]string, 0, len(selected))
		for _, ct := range selected {
			result = append(result, ct.ID)
		}
		return result
	}

	tests := []struct {
		name     string
		path     string
		expected []string
	}{
		{"configured threshold", "/api/recovery/contacts/selection", []string{"tg:1", "tg:2"}},
		{"lower threshold", "/api/recovery/contacts/selection?minTrust=0.2", []string{"tg:1", "tg:2", "tg:3"}},
		{"strict threshold", "/api/recovery/contacts/selection?minTrust=0.95", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ids(tt.path))
		})
	}

	for _, bad := range []string{"1.5", "-0.1", "NaN", "high"} {
		w = c.do(http.MethodGet, "/api/recovery/contacts/selection?minTrust="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	// rejected contacts are never selected
	w = c.do(http.MethodPost, "/api/recovery/contacts/tg:2/code", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	for i := 0; i < recovery.DefaultMaxVerificationAttempts; i++ {
		c.do(http.MethodPost, "/api/recovery/contacts/tg:2/verify", codeRequest{Code: "not-a-code"})
	}
	w = c.do(http.MethodPost, "/api/recovery/contacts/tg:2/verify", codeRequest{Code: env.messenger.code("tg:2")})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []string{"tg:1"}, ids("/api/recovery/contacts/selection"))
}

func TestResolveEvent(t *testing.T) {
	env := newAPIEnv(t, 100)
	ctx := context.Background()
	event, err := env.security.RecordEvent(ctx, security.EventPhishingAttempt, testUserID, map[string]interface{}{
		"url": "http://bit.ly/airdrop",
	}, security.SeverityHigh)
	require.NoError(t, err)
	path := "/api/security/events/" + event.ID + "/resolve"

	user := env.client(t, testUserID)
	assert.Equal(t, http.StatusForbidden, user.do(http.MethodPost, path, nil).Code)
	denied := env.security.Events(ctx, security.EventFilter{UserID: testUserID, Type: security.EventUnauthorizedAccess})
	require.Len(t, denied, 1)
	assert.Equal(t, http.MethodPost, denied[0].Details["method"])

	admin := env.client(t, testAdminID)
	assert.Equal(t, http.StatusNotFound, admin.do(http.MethodPost, "/api/security/events/missing/resolve", nil).Code)

	w := admin.do(http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resolved resolveResponse
	decodeData(t, w, &resolved)
	assert.Equal(t, resolveResponse{ID: event.ID, Resolved: true}, resolved)

	events := env.security.Events(ctx, security.EventFilter{UserID: testUserID, Type: security.EventPhishingAttempt})
	require.Len(t, events, 1)
	assert.True(t, events[0].Resolved)
}

func TestReplaceContactsValidation(t *testing.T) {
	env := newAPIEnv(t, 100)
	c := env.client(t, testUserID)

	w := c.do(http.MethodPut, "/api/recovery/contacts", contactsRequest{Contacts: []recovery.Contact{
		{ID: "tg:1", FirstName: "<script>alert(1)</script>"},
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request validation failed", errorMessage(t, w))

	w = c.do(http.MethodPut, "/api/recovery/contacts", contactsRequest{Contacts: []recovery.Contact{
		{ID: "tg:1", FirstName: "Alice", TrustLevel: 3},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	env := newAPIEnv(t, 2)
	c := env.client(t, testUserID)

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/security/events", nil).Code)
	w := c.do(http.MethodGet, "/api/security/events", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	events := env.security.Events(context.Background(), security.EventFilter{UserID: testUserID, Type: security.EventRateLimitExceeded})
	require.Len(t, events, 1)
	assert.Equal(t, "user:"+testUserID, events[0].Details["key"])
}
