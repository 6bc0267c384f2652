// Package auth authenticates API callers from Telegram Mini App initData
package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/log"
	httplog "github.com/oddbit-project/walletguard/provider/httpserver/log"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
	"github.com/oddbit-project/walletguard/telegram"
)

const ContextIdentity = "telegram-identity"

// RequestValidator validates the initData carried by a request; *telegram.Validator implements it
type RequestValidator interface {
	ValidateRequest(r *http.Request) *telegram.Result
}

// TelegramAuth rejects requests without valid initData and stores the verified identity
func TelegramAuth(validator RequestValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := validator.ValidateRequest(c.Request)
		if result == nil || !result.Valid || result.UserID == "" {
			reason := "missing identity"
			if result != nil && result.Error != "" {
				reason = result.Error
			}
			httplog.RequestWarn(c, "telegram authentication failed", log.KV{"reason": reason})
			response.Http401(c)
			return
		}

		c.Set(ContextIdentity, result)
		logger := httplog.GetRequestLogger(c).WithField("user_id", result.UserID)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// GetIdentity returns the identity stored by TelegramAuth
func GetIdentity(c *gin.Context) (*telegram.Result, bool) {
	v, exists := c.Get(ContextIdentity)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*telegram.Result)
	return identity, ok && identity != nil
}

// UserID returns the authenticated telegram user id, or an empty string
func UserID(c *gin.Context) string {
	if identity, ok := GetIdentity(c); ok {
		return identity.UserID
	}
	return ""
}
