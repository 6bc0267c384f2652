package response

// JSONResponse is the success envelope
type JSONResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorDetail is the client visible part of a failure. TraceID matches the
// X-Trace-ID response header so support can find the server side log entry
type ErrorDetail struct {
	Message      string      `json:"message,omitempty"`
	RequestError interface{} `json:"requestError,omitempty"`
	TraceID      string      `json:"traceId,omitempty"`
}

// JSONResponseError is the failure envelope
type JSONResponseError struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}
