package request

import (
	"mime"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAccept      = "Accept"
	HeaderContentType = "Content-Type"

	ContentTypeHtml = "text/html"
	ContentTypeJson = "application/json"
)

// hasMediaType reports whether any entry of a comma separated header value is mediaType;
// parameters such as charset or q are ignored
func hasMediaType(header, mediaType string) bool {
	for _, part := range strings.Split(header, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == mediaType {
			return true
		}
	}
	return false
}

// IsJSONRequest returns true if the request sends or accepts JSON
func IsJSONRequest(ctx *gin.Context) bool {
	return hasMediaType(ctx.Request.Header.Get(HeaderAccept), ContentTypeJson) ||
		hasMediaType(ctx.Request.Header.Get(HeaderContentType), ContentTypeJson)
}

// ClientKey identifies the caller for throttling; the authenticated user wins over the client ip
func ClientKey(ctx *gin.Context, userID string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + ctx.ClientIP()
}
