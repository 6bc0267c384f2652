package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/gateway"
	"github.com/oddbit-project/walletguard/log"
	httplog "github.com/oddbit-project/walletguard/provider/httpserver/log"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
)

const (
	ContextCSRFToken = "csrf-token"

	StatusSessionMismatch gateway.Status = "SESSION_MISMATCH"
)

// SessionFunc returns the identity csrf tokens are bound to; empty means unbound
type SessionFunc func(c *gin.Context) string

// CSRF enforces double-submit tokens on unsafe methods. Safe requests without a valid
// cookie get a fresh token, both as cookie and response header.
// Tokens carrying a session id are only accepted for that session
func CSRF(csrf *gateway.CSRF, session SessionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := ""
		if session != nil {
			sessionID = session(c)
		}
		headerToken, cookieToken := csrf.ExtractToken(c.Request)

		if gateway.IsSafeMethod(c.Request.Method) {
			if cookieToken == "" || !csrf.Verify(cookieToken).OK() {
				if _, err := IssueCSRFToken(c, csrf, sessionID); err != nil {
					response.Http500(c, err)
					return
				}
			}
			c.Next()
			return
		}

		result := csrf.VerifyDoubleSubmit(headerToken, cookieToken)
		if result.OK() && result.Payload.SessionID != "" && result.Payload.SessionID != sessionID {
			result = gateway.Result{Status: StatusSessionMismatch, Details: "token bound to another session"}
		}
		if !result.OK() {
			httplog.RequestWarn(c, "csrf validation failed", log.KV{
				"status":  string(result.Status),
				"details": result.Details,
			})
			response.Error(c, http.StatusForbidden, "csrf validation failed: "+strings.ToLower(string(result.Status)))
			return
		}
		c.Next()
	}
}

// IssueCSRFToken generates a token and attaches it to the response as cookie and header
func IssueCSRFToken(c *gin.Context, csrf *gateway.CSRF, sessionID string) (*gateway.IssuedToken, error) {
	issued, err := csrf.Generate(sessionID)
	if err != nil {
		return nil, err
	}
	c.Writer.Header().Add("Set-Cookie", issued.SetCookie)
	c.Header(issued.HeaderName, issued.HeaderValue)
	c.Set(ContextCSRFToken, issued.Token)
	return issued, nil
}
