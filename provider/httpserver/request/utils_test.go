package request

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func testContext(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.0.2.10:4242"
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	c.Request = req
	return c
}

func TestIsJSONRequest(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected bool
	}{
		{"accept json", map[string]string{HeaderAccept: ContentTypeJson}, true},
		{"content type json", map[string]string{HeaderContentType: ContentTypeJson}, true},
		{"content type with charset", map[string]string{HeaderContentType: "application/json; charset=utf-8"}, true},
		{"accept list", map[string]string{HeaderAccept: "text/html, application/json;q=0.9"}, true},
		{"html only", map[string]string{HeaderAccept: ContentTypeHtml}, false},
		{"similar type", map[string]string{HeaderAccept: "application/jsonp"}, false},
		{"no headers", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsJSONRequest(testContext(tt.headers)))
		})
	}
}

func TestClientKey(t *testing.T) {
	c := testContext(nil)
	assert.Equal(t, "user:42", ClientKey(c, "42"))
	assert.Equal(t, "ip:192.0.2.10", ClientKey(c, ""))
}
