package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/log"
)

const (
	// HTTP request tracing headers
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	ContextTraceID   = "trace_id"
	ContextRequestID = "request_id"

	maxIDLength = 128
)

// sanitizeID drops client supplied ids that are too long or carry control characters
func sanitizeID(id string) string {
	if len(id) == 0 || len(id) > maxIDLength {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] == 0x7f {
			return ""
		}
	}
	return id
}

// HTTPLogMiddleware attaches a request scoped logger to every request and logs its completion;
// if base is nil, a logger for module "http" is used
func HTTPLogMiddleware(base *log.Logger) gin.HandlerFunc {
	if base == nil {
		base = log.New("http")
	}
	return func(c *gin.Context) {
		requestID := sanitizeID(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = log.NewTraceID()
		}
		c.Header(HeaderRequestID, requestID)

		traceID := sanitizeID(c.GetHeader(HeaderTraceID))
		if traceID == "" {
			traceID = log.NewTraceID()
		}
		c.Header(HeaderTraceID, traceID)

		logger := base.WithTraceID(traceID).
			WithField("request_id", requestID).
			WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("client_ip", c.ClientIP())

		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Set(ContextTraceID, traceID)
		c.Set(ContextRequestID, requestID)

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		statusCode := c.Writer.Status()
		fields := log.KV{
			"status":     statusCode,
			"latency_ms": latency.Milliseconds(),
			"bytes":      c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		msg := c.Request.Method + " " + c.Request.URL.Path
		switch {
		case len(c.Errors) > 0:
			logger.Error(c.Errors.Last().Err, msg, fields)
		case statusCode >= 500:
			logger.Error(nil, msg, fields)
		case statusCode >= 400:
			logger.Warn(msg, fields)
		default:
			logger.Info(msg, fields)
		}
	}
}

// GetRequestLogger retrieves the logger from the gin.Context
func GetRequestLogger(c *gin.Context) *log.Logger {
	if c == nil || c.Request == nil {
		return log.New("http")
	}
	return log.FromContext(c.Request.Context())
}

// GetRequestTraceID retrieves the trace ID from the gin.Context
func GetRequestTraceID(c *gin.Context) string {
	return c.GetString(ContextTraceID)
}

// GetRequestID retrieves the request ID from the gin.Context
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}

// RequestDebug logs a debug message for the current request
func RequestDebug(c *gin.Context, msg string, fields ...log.KV) {
	GetRequestLogger(c).Debug(msg, fields...)
}

// RequestInfo logs an info message for the current request
func RequestInfo(c *gin.Context, msg string, fields ...log.KV) {
	GetRequestLogger(c).Info(msg, fields...)
}

// RequestWarn logs a warning message for the current request
func RequestWarn(c *gin.Context, msg string, fields ...log.KV) {
	GetRequestLogger(c).Warn(msg, fields...)
}

// RequestError logs an error message for the current request
func RequestError(c *gin.Context, err error, msg string, fields ...log.KV) {
	GetRequestLogger(c).Error(err, msg, fields...)
}
