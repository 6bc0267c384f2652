package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	httplog "github.com/oddbit-project/walletguard/provider/httpserver/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig(t *testing.T) {
	cfg := NewServerConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Port = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPort)

	_, err := NewServer(nil, nil)
	assert.ErrorIs(t, err, ErrNilConfig)
	_, err = NewServer(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidPort)

	cfg = NewServerConfig()
	cfg.TrustedProxies = []string{"not-an-ip"}
	_, err = NewServer(cfg, nil)
	assert.Error(t, err)
}

func TestServerRouting(t *testing.T) {
	cfg := NewServerConfig()
	cfg.Debug = true
	server, err := NewServer(cfg, nil)
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)

	var order []string
	server.AddMiddleware(func(c *gin.Context) {
		order = append(order, "middleware")
		c.Next()
	})
	api := server.Group("/api")
	api.GET("/ping", func(c *gin.Context) {
		order = append(order, "handler")
		c.String(http.StatusOK, "pong")
	})
	api.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	server.Route().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, []string{"middleware", "handler"}, order)
	assert.NotEmpty(t, w.Header().Get(httplog.HeaderTraceID))

	req := httptest.NewRequest(http.MethodGet, "/api/panic", nil)
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	server.Route().ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")

	req = httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	server.Route().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":{"message":"Not Found"}}`, w.Body.String())
}

func TestServerStartShutdown(t *testing.T) {
	cfg := NewServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 38517
	server, err := NewServer(cfg, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- server.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	assert.NoError(t, <-done)
}
