package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/gateway"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/provider/httpserver/auth"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
	httpsecurity "github.com/oddbit-project/walletguard/provider/httpserver/security"
	"github.com/oddbit-project/walletguard/security"
	"github.com/shopspring/decimal"
)

type csrfResponse struct {
	Token      string `json:"token"`
	HeaderName string `json:"headerName"`
	CookieName string `json:"cookieName"`
	ExpiresAt  int64  `json:"expiresAt,omitempty"`
}

type sessionResponse struct {
	UserID   string       `json:"userId"`
	Username string       `json:"username,omitempty"`
	AuthDate time.Time    `json:"authDate"`
	CSRF     csrfResponse `json:"csrf"`
}

type transactionRequest struct {
	ID     string `json:"id" binding:"required,max=128"`
	From   string `json:"from"`
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type transactionResponse struct {
	TransactionID string `json:"transactionId"`
	Allowed       bool   `json:"allowed"`
}

type resolveResponse struct {
	ID       string `json:"id"`
	Resolved bool   `json:"resolved"`
}

type phishingRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *Handler) issueToken(c *gin.Context) (*csrfResponse, bool) {
	issued, err := httpsecurity.IssueCSRFToken(c, h.services.Gateway.CSRF(), auth.UserID(c))
	if err != nil {
		response.Http500(c, err)
		return nil, false
	}
	return &csrfResponse{
		Token:      issued.Token,
		HeaderName: issued.HeaderName,
		CookieName: issued.CookieName,
		ExpiresAt:  issued.ExpiresAt,
	}, true
}

// session records the login of the authenticated user and hands out a csrf token bound to it
func (h *Handler) session(c *gin.Context) {
	identity, _ := auth.GetIdentity(c)
	if !h.services.Security.RecordLogin(c.Request.Context(), identity.UserID, true) {
		response.Http403(c)
		return
	}
	tok, ok := h.issueToken(c)
	if !ok {
		return
	}
	response.Success(c, sessionResponse{
		UserID:   identity.UserID,
		Username: identity.Username,
		AuthDate: time.Unix(identity.AuthDate, 0).UTC(),
		CSRF:     *tok,
	})
}

func (h *Handler) issueCSRF(c *gin.Context) {
	tok, ok := h.issueToken(c)
	if !ok {
		return
	}
	response.Success(c, tok)
}

func (h *Handler) validateTransaction(c *gin.Context) {
	req := &transactionRequest{}
	if !bind(c, req) {
		return
	}
	problems := map[string]string{}
	if err := h.services.Gateway.Validate(gateway.WalletAddress, req.To); err != nil {
		problems["to"] = err.Error()
	}
	if req.From != "" {
		if err := h.services.Gateway.Validate(gateway.WalletAddress, req.From); err != nil {
			problems["from"] = err.Error()
		}
	}
	if err := h.services.Gateway.Validate(gateway.Amount, req.Amount); err != nil {
		problems["amount"] = err.Error()
	}
	if len(problems) > 0 {
		response.ValidationError(c, problems)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ValidationError(c, map[string]string{"amount": err.Error()})
		return
	}

	tx := security.Transaction{
		ID:     req.ID,
		From:   req.From,
		To:     req.To,
		Amount: amount,
	}
	response.Success(c, transactionResponse{
		TransactionID: tx.ID,
		Allowed:       h.services.Security.ValidateTransaction(c.Request.Context(), tx, auth.UserID(c)),
	})
}

func (h *Handler) checkPhishing(c *gin.Context) {
	req := &phishingRequest{}
	if !bind(c, req) {
		return
	}
	if err := h.services.Gateway.Validate(gateway.Text, req.URL); err != nil {
		response.ValidationError(c, map[string]string{"url": err.Error()})
		return
	}

	ctx := c.Request.Context()
	result := h.services.Security.CheckPhishing(ctx, req.URL)
	if result.IsPhishing {
		_, err := h.services.Security.RecordEvent(ctx, security.EventPhishingAttempt, auth.UserID(c), map[string]interface{}{
			"url":     req.URL,
			"signals": result.Signals,
		}, security.SeverityHigh)
		if err != nil {
			h.logger.Error(err, "failed to record phishing event")
		}
	}
	response.Success(c, result)
}

// feedLimit parses the limit query parameter; absent means the manager default
func (h *Handler) feedLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > h.cfg.MaxFeedLimit {
		response.Http400(c, "limit must be between 1 and "+strconv.Itoa(h.cfg.MaxFeedLimit))
		return 0, false
	}
	return limit, true
}

// events lists the caller's own security events
func (h *Handler) events(c *gin.Context) {
	limit, ok := h.feedLimit(c)
	if !ok {
		return
	}
	filter := security.EventFilter{
		UserID: auth.UserID(c),
		Type:   security.EventType(c.Query("type")),
		Limit:  limit,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		response.Http400(c, "unknown event type")
		return
	}
	response.Success(c, h.services.Security.Events(c.Request.Context(), filter))
}

// alerts lists the global alert feed; restricted to administrators
func (h *Handler) alerts(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	limit, ok := h.feedLimit(c)
	if !ok {
		return
	}
	if limit == 0 {
		limit = security.DefaultAlertLimit
	}
	response.Success(c, h.services.Security.Alerts(c.Request.Context(), limit))
}

// resolveEvent marks an event of any user as handled; restricted to administrators
func (h *Handler) resolveEvent(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	id := c.Param("id")
	if err := h.services.Security.ResolveEvent(c.Request.Context(), id); err != nil {
		if errors.Is(err, security.ErrEventNotFound) {
			response.Http404(c)
			return
		}
		response.Http500(c, err)
		return
	}
	h.logger.Info("security event resolved", log.KV{
		"event_id": id,
		"user_id":  auth.UserID(c),
	})
	response.Success(c, resolveResponse{ID: id, Resolved: true})
}
