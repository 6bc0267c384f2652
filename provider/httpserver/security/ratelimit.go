package security

import (
	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/provider/httpserver/request"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
)

// Limiter admits or rejects a request for key; *ratelimiter.RateLimiter implements it
type Limiter interface {
	Allow(key string) bool
}

// KeyFunc identifies the client a request is throttled as
type KeyFunc func(c *gin.Context) string

// LimitedFunc is invoked before a throttled request is rejected
type LimitedFunc func(c *gin.Context, key string)

// ClientIPKey throttles by client ip
func ClientIPKey(c *gin.Context) string {
	return request.ClientKey(c, "")
}

// RateLimit rejects requests with 429 once the client's bucket is empty
func RateLimit(limiter Limiter, key KeyFunc, onLimited LimitedFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIPKey
	}
	return func(c *gin.Context) {
		k := key(c)
		if !limiter.Allow(k) {
			if onLimited != nil {
				onLimited(c, k)
			}
			response.Http429(c)
			return
		}
		c.Next()
	}
}
