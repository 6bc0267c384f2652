package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/log"
	httplog "github.com/oddbit-project/walletguard/provider/httpserver/log"
	"github.com/oddbit-project/walletguard/provider/httpserver/request"
)

// abort stops the handler chain; JSON clients receive the error envelope, everyone else the bare status
func abort(ctx *gin.Context, status int, detail ErrorDetail) {
	if request.IsJSONRequest(ctx) {
		detail.TraceID = httplog.GetRequestTraceID(ctx)
		ctx.AbortWithStatusJSON(status, JSONResponseError{
			Success: false,
			Error:   detail,
		})
		return
	}
	ctx.AbortWithStatus(status)
}

// Success writes data in the success envelope
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, JSONResponse{
		Success: true,
		Data:    data,
	})
}

// Created writes data in the success envelope with status 201
func Created(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusCreated, JSONResponse{
		Success: true,
		Data:    data,
	})
}

// Error aborts with status and a client safe message
func Error(ctx *gin.Context, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	httplog.RequestWarn(ctx, "request failed", log.KV{
		"status":  status,
		"message": message,
	})
	abort(ctx, status, ErrorDetail{Message: message})
}

// Http401 generates a error 401 response with logging
func Http401(ctx *gin.Context) {
	httplog.RequestWarn(ctx, "Unauthorized access attempt", log.KV{
		"status": http.StatusUnauthorized,
	})
	abort(ctx, http.StatusUnauthorized, ErrorDetail{Message: http.StatusText(http.StatusUnauthorized)})
}

// Http403 generates a 403 Forbidden response with logging
func Http403(ctx *gin.Context) {
	httplog.RequestWarn(ctx, "Forbidden access attempt", log.KV{
		"status": http.StatusForbidden,
	})
	abort(ctx, http.StatusForbidden, ErrorDetail{Message: http.StatusText(http.StatusForbidden)})
}

// Http404 generates a 404 Not Found response with logging
func Http404(ctx *gin.Context) {
	httplog.RequestInfo(ctx, "Resource not found", log.KV{
		"status": http.StatusNotFound,
	})
	abort(ctx, http.StatusNotFound, ErrorDetail{Message: http.StatusText(http.StatusNotFound)})
}

// Http400 generates a 400 Bad Request response with logging
func Http400(ctx *gin.Context, message string) {
	if message == "" {
		message = http.StatusText(http.StatusBadRequest)
	}
	httplog.RequestWarn(ctx, "Bad request", log.KV{
		"status":  http.StatusBadRequest,
		"message": message,
	})
	abort(ctx, http.StatusBadRequest, ErrorDetail{Message: message})
}

// Http429 generates a 429 Too Many Requests response with logging
func Http429(ctx *gin.Context) {
	httplog.RequestWarn(ctx, "Rate limit exceeded", log.KV{
		"status": http.StatusTooManyRequests,
	})
	abort(ctx, http.StatusTooManyRequests, ErrorDetail{Message: http.StatusText(http.StatusTooManyRequests)})
}

// Http500 generates a 500 Internal Server Error response with logging; err is never sent to the client
func Http500(ctx *gin.Context, err error) {
	httplog.RequestError(ctx, err, "Internal server error", log.KV{
		"status": http.StatusInternalServerError,
	})
	abort(ctx, http.StatusInternalServerError, ErrorDetail{Message: http.StatusText(http.StatusInternalServerError)})
}

// ValidationError generates a 400 Bad Request response with validation failed details
func ValidationError(ctx *gin.Context, errors interface{}) {
	message := "request validation failed"
	httplog.RequestWarn(ctx, "validation failed", log.KV{
		"status": http.StatusBadRequest,
	})
	abort(ctx, http.StatusBadRequest, ErrorDetail{
		Message:      message,
		RequestError: errors,
	})
}
