package security

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a tracked security event
type EventType string

const (
	EventLoginAttempt       EventType = "login_attempt"
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailure       EventType = "login_failure"
	EventTransactionCreated EventType = "transaction_created"
	EventTransactionSent    EventType = "transaction_sent"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventDeviceChange       EventType = "device_change"
	EventLocationChange     EventType = "location_change"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventAnomalyDetected    EventType = "anomaly_detected"
	EventPhishingAttempt    EventType = "phishing_attempt"
	EventUnauthorizedAccess EventType = "unauthorized_access"

	// social recovery audit trail
	EventRecoveryShareSent     EventType = "recovery_share_sent"
	EventRecoveryShareAccepted EventType = "recovery_share_accepted"
	EventRecoveryShareReceived EventType = "recovery_share_received"
	EventContactVerified       EventType = "contact_verified"
	EventContactRejected       EventType = "contact_rejected"
)

// EventTypes lists every known event type
var EventTypes = []EventType{
	EventLoginAttempt,
	EventLoginSuccess,
	EventLoginFailure,
	EventTransactionCreated,
	EventTransactionSent,
	EventSuspiciousActivity,
	EventDeviceChange,
	EventLocationChange,
	EventRateLimitExceeded,
	EventAnomalyDetected,
	EventPhishingAttempt,
	EventUnauthorizedAccess,
	EventRecoveryShareSent,
	EventRecoveryShareAccepted,
	EventRecoveryShareReceived,
	EventContactVerified,
	EventContactRejected,
}

// Valid returns true if t is a known event type
func (t EventType) Valid() bool {
	for _, v := range EventTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Severity of an event or alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid returns true if s is a known severity
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Notify returns true if alerts of this severity are pushed to the notifier
func (s Severity) Notify() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// alert types
const (
	AlertRateLimitExceeded     = "rate_limit_exceeded"
	AlertSuspiciousTransaction = "suspicious_transaction"
	AlertUnusualActivity       = "unusual_activity"
	AlertPhishingAttempt       = "phishing_attempt"
	AlertBlockedUser           = "blocked_user"
)

// SystemUser is the user id recorded on events raised by the manager itself
const SystemUser = "system"

// Event is an append-only security log entry; only Resolved is ever mutated
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"userId"`
	DeviceID  string                 `json:"deviceId"`
	IPAddress string                 `json:"ipAddress,omitempty"`
	UserAgent string                 `json:"userAgent,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Severity  Severity               `json:"severity"`
	Resolved  bool                   `json:"resolved"`
}

// Alert is raised when a rule fires
type Alert struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// RateLimitRule limits how many Counts events a user may produce within Window.
// Counts defaults to EventType
type RateLimitRule struct {
	EventType     EventType     `json:"eventType"`
	Counts        EventType     `json:"counts,omitempty"`
	MaxAttempts   int           `json:"maxAttempts"`
	Window        time.Duration `json:"window"`
	BlockDuration time.Duration `json:"blockDuration"`
}

func (r RateLimitRule) counted() EventType {
	if r.Counts == "" {
		return r.EventType
	}
	return r.Counts
}

// BlockRecord marks a user as blocked until ExpiresAt
type BlockRecord struct {
	UserID    string    `json:"userId"`
	BlockedAt time.Time `json:"blockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reason    string    `json:"reason"`
}

// Active returns true if the block is still in force at now
func (b *BlockRecord) Active(now time.Time) bool {
	return b != nil && now.Before(b.ExpiresAt)
}

// Transaction is the opaque wallet operation being evaluated
type Transaction struct {
	ID     string          `json:"id"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// EventFilter selects events; zero values match everything.
// Limit <= 0 applies DefaultFeedLimit
type EventFilter struct {
	UserID string    `json:"userId"`
	Type   EventType `json:"type"`
	Limit  int       `json:"limit"`
}

// PhishingResult is the outcome of a URL check
type PhishingResult struct {
	IsPhishing bool     `json:"isPhishing"`
	Score      int      `json:"score"`
	Signals    []string `json:"signals"`
}

// RequestInfo describes the client that triggered an event
type RequestInfo struct {
	DeviceID  string
	IPAddress string
	UserAgent string
}

type requestInfoKey struct{}

// WithRequestInfo stores client information in ctx; it is copied onto every
// event recorded with that context
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the client information stored in ctx, if any
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	if info, ok := ctx.Value(requestInfoKey{}).(RequestInfo); ok {
		return info
	}
	return RequestInfo{}
}
