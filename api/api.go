// Package api exposes the wallet security services over HTTP.
//
// Every route requires Telegram initData authentication. Unsafe methods also
// require a csrf double-submit token, and every authenticated caller is
// throttled per user.
package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/gateway"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/provider/httpserver/auth"
	"github.com/oddbit-project/walletguard/provider/httpserver/request"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
	httpsecurity "github.com/oddbit-project/walletguard/provider/httpserver/security"
	"github.com/oddbit-project/walletguard/recovery"
	"github.com/oddbit-project/walletguard/security"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrNilConfig      = utils.Error("api config is nil")
	ErrMissingService = utils.Error("api service dependency is missing")

	HeaderDeviceID = "X-Device-ID"
)

// ContactStore holds the contact list of each owner; *recovery.ContactDirectory implements it
type ContactStore interface {
	recovery.ContactSource
	SetContacts(ctx context.Context, ownerID string, contacts []recovery.Contact) error
}

// Services are the collaborators the handlers delegate to
type Services struct {
	Gateway   *gateway.Gateway
	Security  *security.Manager
	Recovery  *recovery.Manager
	Contacts  ContactStore
	Validator auth.RequestValidator
	Limiter   httpsecurity.Limiter
}

func (s Services) validate() error {
	if s.Gateway == nil || s.Security == nil || s.Recovery == nil ||
		s.Contacts == nil || s.Validator == nil || s.Limiter == nil {
		return ErrMissingService
	}
	return nil
}

type Handler struct {
	cfg      *Config
	services Services
	logger   *log.Logger
}

type Option func(*Handler)

func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(cfg *Config, services Services, opts ...Option) (*Handler, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := services.validate(); err != nil {
		return nil, err
	}
	h := &Handler{
		cfg:      cfg,
		services: services,
		logger:   log.NewWithComponent("api", "handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the API under /api
func (h *Handler) Register(router gin.IRouter) {
	api := router.Group("/api",
		h.limitBody,
		auth.TelegramAuth(h.services.Validator),
		h.requestInfo,
		httpsecurity.RateLimit(h.services.Limiter, userKey, h.rateLimited),
		httpsecurity.CSRF(h.services.Gateway.CSRF(), auth.UserID),
	)

	api.GET("/session", h.session)
	api.GET("/csrf", h.issueCSRF)

	api.POST("/tx/validate", h.validateTransaction)
	api.POST("/phishing/check", h.checkPhishing)
	api.GET("/security/events", h.events)
	api.GET("/security/alerts", h.alerts)
	api.POST("/security/events/:id/resolve", h.resolveEvent)

	rec := api.Group("/recovery")
	rec.GET("/contacts", h.listContacts)
	rec.GET("/contacts/selection", h.selectContacts)
	rec.PUT("/contacts", h.replaceContacts)
	rec.POST("/contacts/:id/code", h.issueCode)
	rec.POST("/contacts/:id/verify", h.verifyContact)
	rec.PUT("/contacts/:id/trust", h.updateTrust)
	rec.POST("/shares", h.sendShare)
	rec.POST("/requests/:id/receive", h.receiveShare)
}

func userKey(c *gin.Context) string {
	return request.ClientKey(c, auth.UserID(c))
}

func (h *Handler) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxBodyBytes)
	c.Next()
}

// requestInfo copies the client description onto the request context so recorded events carry it
func (h *Handler) requestInfo(c *gin.Context) {
	ctx := security.WithRequestInfo(c.Request.Context(), security.RequestInfo{
		DeviceID:  c.GetHeader(HeaderDeviceID),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func (h *Handler) rateLimited(c *gin.Context, key string) {
	_, err := h.services.Security.RecordEvent(c.Request.Context(), security.EventRateLimitExceeded, auth.UserID(c), map[string]interface{}{
		"key":    key,
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}, security.SeverityMedium)
	if err != nil {
		h.logger.Error(err, "failed to record rate limit event", log.KV{"key": key})
	}
}

func (h *Handler) isAdmin(userID string) bool {
	return userID != "" && slices.Contains(h.cfg.AdminUserIDs, userID)
}

// requireAdmin writes a 403 and records the attempt unless the caller is an administrator
func (h *Handler) requireAdmin(c *gin.Context) bool {
	userID := auth.UserID(c)
	if h.isAdmin(userID) {
		return true
	}
	_, err := h.services.Security.RecordEvent(c.Request.Context(), security.EventUnauthorizedAccess, userID, map[string]interface{}{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}, security.SeverityMedium)
	if err != nil {
		h.logger.Error(err, "failed to record unauthorized access", log.KV{"user_id": userID})
	}
	response.Http403(c)
	return false
}

// bind decodes the JSON body into dest, writing a 400 on failure
func bind(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.ValidationError(c, err.Error())
		return false
	}
	return true
}
