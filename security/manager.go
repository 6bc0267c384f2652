// Package security implements the Security Manager: per-user rate limiting,
// blocking, transaction anomaly scoring, URL phishing heuristics and an
// append-only security event and alert log kept in a kv.KV store.
//
// Every public operation recovers internal faults. Checks that gate an action
// fail closed (deny or blocked); scores fail to zero; feeds fail to empty.
package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/provider/kv"
	"github.com/oddbit-project/walletguard/types/keylock"
	"github.com/oddbit-project/walletguard/types/periodic"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrNilStore             = utils.Error("security store is nil")
	ErrNilConfig            = utils.Error("security config is nil")
	ErrUnknownEventType     = utils.Error("unknown security event type")
	ErrInvalidSeverity      = utils.Error("invalid severity")
	ErrMissingUserID        = utils.Error("missing user id")
	ErrInvalidBlockDuration = utils.Error("block duration must be positive")
	ErrEventNotFound        = utils.Error("security event not found")
	ErrInternal             = utils.Error("internal security manager error")
)

// Manager is the Security Manager
type Manager struct {
	cfg      *Config
	store    *store
	rules    map[EventType]RateLimitRule
	scorer   RecipientScorer
	notifier AlertNotifier
	metrics  *Metrics
	logger   *log.Logger
	now      func() time.Time
	loc      *time.Location
	night    map[int]struct{}
	locks    *keylock.KeyLock
	sweeper  *periodic.Task
}

type Option func(*Manager)

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithRecipientScorer(s RecipientScorer) Option {
	return func(m *Manager) {
		if s != nil {
			m.scorer = s
		}
	}
}

func WithNotifier(n AlertNotifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithRules replaces the rate limit rule for each given event type
func WithRules(rules ...RateLimitRule) Option {
	return func(m *Manager) {
		for _, r := range rules {
			m.rules[r.EventType] = r
		}
	}
}

// NewManager creates a Security Manager backed by store
func NewManager(cfg *Config, store kv.KV, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.location()
	if err != nil {
		return nil, ErrInvalidTimezone
	}

	m := &Manager{
		cfg:    cfg,
		store:  newStore(store),
		rules:  make(map[EventType]RateLimitRule),
		scorer: ConstantRecipientScorer(DefaultRecipientRisk),
		logger: log.New("security"),
		now:    time.Now,
		loc:    loc,
		night:  make(map[int]struct{}, len(cfg.NightHours)),
		locks:  keylock.New(),
	}
	for _, r := range DefaultRules(cfg) {
		m.rules[r.EventType] = r
	}
	for _, h := range cfg.NightHours {
		m.night[h] = struct{}{}
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, r := range m.rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
	}
	if m.notifier == nil {
		m.notifier = NewLogNotifier(m.logger)
	}
	if cfg.SweepIntervalSeconds > 0 {
		m.sweeper, err = periodic.New(time.Duration(cfg.SweepIntervalSeconds)*time.Second, m.sweep)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newStore(backend kv.KV) *store {
	return &store{kv: backend}
}

// Rule returns the rate limit rule for t
func (m *Manager) Rule(t EventType) (RateLimitRule, bool) {
	r, ok := m.rules[t]
	return r, ok
}

// recoverFault must be deferred directly; it logs a panic and runs onFault
func (m *Manager) recoverFault(op string, onFault func()) {
	if r := recover(); r != nil {
		m.logger.Error(fmt.Errorf("%w: %v", ErrInternal, r), "security operation failed", log.KV{
			"operation": op,
		})
		onFault()
	}
}

// RecordEvent appends an event to the log
func (m *Manager) RecordEvent(ctx context.Context, t EventType, userID string, details map[string]interface{}, severity Severity) (event *Event, err error) {
	defer m.recoverFault("recordEvent", func() {
		event, err = nil, ErrInternal
	})
	return m.recordEvent(ctx, t, userID, details, severity)
}

func (m *Manager) recordEvent(ctx context.Context, t EventType, userID string, details map[string]interface{}, severity Severity) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, ErrUnknownEventType
	}
	if !severity.Valid() {
		return nil, ErrInvalidSeverity
	}
	if userID == "" {
		return nil, ErrMissingUserID
	}

	info := RequestInfoFromContext(ctx)
	e := &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: m.now(),
		UserID:    userID,
		DeviceID:  info.DeviceID,
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
		Details:   details,
		Severity:  severity,
	}
	if err := m.store.putEvent(e); err != nil {
		return nil, err
	}
	m.metrics.event(t)
	return e, nil
}

// CheckRateLimit returns true if userID exceeded the rule for t, blocking the
// user and raising an alert. Event types without a rule are never limited
func (m *Manager) CheckRateLimit(ctx context.Context, t EventType, userID string) (limited bool) {
	defer m.recoverFault("checkRateLimit", func() {
		limited = true
	})

	unlock := m.locks.Lock(userID)
	defer unlock()

	limited, err := m.checkRateLimit(ctx, t, userID)
	if err != nil {
		m.logger.Error(err, "rate limit check failed", log.KV{"user_id": userID, "event_type": string(t)})
		return true
	}
	return limited
}

// checkRateLimit requires the user lock
func (m *Manager) checkRateLimit(ctx context.Context, t EventType, userID string) (bool, error) {
	rule, ok := m.rules[t]
	if !ok {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	count, err := m.store.countSince(userID, rule.counted(), m.now().Add(-rule.Window))
	if err != nil {
		return false, err
	}
	if count < rule.MaxAttempts {
		return false, nil
	}

	reason := fmt.Sprintf("rate limit exceeded for %s", t)
	if err := m.blockUser(ctx, userID, rule.BlockDuration, reason); err != nil {
		return false, err
	}
	m.createAlert(ctx, AlertRateLimitExceeded, SeverityMedium,
		fmt.Sprintf("Rate limit exceeded for %s", t),
		map[string]interface{}{
			"userId":      userID,
			"eventType":   string(t),
			"count":       count,
			"maxAttempts": rule.MaxAttempts,
		})
	return true, nil
}

// BlockUser blocks userID for d
func (m *Manager) BlockUser(ctx context.Context, userID string, d time.Duration, reason string) (err error) {
	defer m.recoverFault("blockUser", func() {
		err = ErrInternal
	})
	if userID == "" {
		return ErrMissingUserID
	}

	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.blockUser(ctx, userID, d, reason)
}

func (m *Manager) blockUser(ctx context.Context, userID string, d time.Duration, reason string) error {
	if d <= 0 {
		return ErrInvalidBlockDuration
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := m.now()
	b := &BlockRecord{
		UserID:    userID,
		BlockedAt: now,
		ExpiresAt: now.Add(d),
		Reason:    reason,
	}
	if err := m.store.putBlock(b, d); err != nil {
		return err
	}
	m.metrics.block()
	m.logger.Warn("user blocked", log.KV{
		"user_id":    userID,
		"expires_at": b.ExpiresAt,
		"reason":     reason,
	})
	return nil
}

// UnblockUser removes any block on userID
func (m *Manager) UnblockUser(ctx context.Context, userID string) (err error) {
	defer m.recoverFault("unblockUser", func() {
		err = ErrInternal
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.store.deleteBlock(userID)
}

// IsBlocked returns true if userID is blocked; expired blocks are removed.
// Returns true if the block state cannot be read
func (m *Manager) IsBlocked(ctx context.Context, userID string) (blocked bool) {
	defer m.recoverFault("isBlocked", func() {
		blocked = true
	})

	unlock := m.locks.Lock(userID)
	defer unlock()

	blocked, err := m.isBlocked(ctx, userID)
	if err != nil {
		m.logger.Error(err, "block check failed", log.KV{"user_id": userID})
		return true
	}
	return blocked
}

// BlockRecord returns the active block for userID, if any
func (m *Manager) BlockRecord(ctx context.Context, userID string) (record *BlockRecord, err error) {
	defer m.recoverFault("blockRecord", func() {
		record, err = nil, ErrInternal
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := m.store.block(userID)
	if err != nil || !b.Active(m.now()) {
		return nil, err
	}
	return b, nil
}

// isBlocked requires the user lock
func (m *Manager) isBlocked(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b, err := m.store.block(userID)
	if err != nil || b == nil {
		return false, err
	}
	if b.Active(m.now()) {
		return true, nil
	}
	return false, m.store.deleteBlock(userID)
}

// ValidateTransaction decides whether userID may send tx. Blocked users, rate
// limit violations and amounts over the ceiling are denied; anomalies only
// raise an alert. Allowed transactions are recorded
func (m *Manager) ValidateTransaction(ctx context.Context, tx Transaction, userID string) (allowed bool) {
	defer func() {
		m.metrics.transaction(allowed)
	}()
	defer m.recoverFault("validateTransaction", func() {
		allowed = false
	})

	if userID == "" {
		return false
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	allowed, err := m.validateTransaction(ctx, tx, userID)
	if err != nil {
		m.logger.Error(err, "transaction validation failed", log.KV{
			"user_id":        userID,
			"transaction_id": tx.ID,
		})
		return false
	}
	return allowed
}

func (m *Manager) validateTransaction(ctx context.Context, tx Transaction, userID string) (bool, error) {
	details := map[string]interface{}{
		"userId":        userID,
		"transactionId": tx.ID,
		"amount":        tx.Amount.String(),
		"to":            tx.To,
	}

	blocked, err := m.isBlocked(ctx, userID)
	if err != nil {
		return false, err
	}
	if blocked {
		m.createAlert(ctx, AlertBlockedUser, SeverityMedium, "Blocked user attempted a transaction", details)
		return false, nil
	}

	limited, err := m.checkRateLimit(ctx, EventTransactionSent, userID)
	if err != nil {
		return false, err
	}
	if limited {
		m.createAlert(ctx, AlertSuspiciousTransaction, SeverityHigh, "Transaction rate limit exceeded", details)
		return false, nil
	}

	if !tx.Amount.IsPositive() {
		m.logger.Warn("transaction amount must be positive", log.KV{
			"user_id":        userID,
			"transaction_id": tx.ID,
		})
		return false, nil
	}
	if tx.Amount.GreaterThan(m.cfg.MaxAmountPerTransaction) {
		m.createAlert(ctx, AlertSuspiciousTransaction, SeverityHigh, "Transaction amount exceeds limit", details)
		return false, nil
	}

	if m.cfg.AnomalyDetection {
		score, err := m.anomalyScore(ctx, tx, userID)
		if err != nil {
			m.logger.Error(err, "anomaly scoring failed", log.KV{"user_id": userID, "transaction_id": tx.ID})
		} else if score > m.cfg.AnomalyThreshold {
			details["anomalyScore"] = score
			m.createAlert(ctx, AlertUnusualActivity, SeverityMedium, "Unusual transaction activity detected", details)
		}
	}

	if _, err := m.recordEvent(ctx, EventTransactionCreated, userID, details, SeverityLow); err != nil {
		return false, err
	}
	return true, nil
}

// RecordLogin records a login attempt and its outcome. It returns false if the
// user is blocked, rate limited or the login failed. Repeated failures block the user
func (m *Manager) RecordLogin(ctx context.Context, userID string, success bool) (allowed bool) {
	defer m.recoverFault("recordLogin", func() {
		allowed = false
	})
	if userID == "" {
		return false
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	allowed, err := m.recordLogin(ctx, userID, success)
	if err != nil {
		m.logger.Error(err, "login recording failed", log.KV{"user_id": userID})
		return false
	}
	return allowed
}

func (m *Manager) recordLogin(ctx context.Context, userID string, success bool) (bool, error) {
	blocked, err := m.isBlocked(ctx, userID)
	if err != nil {
		return false, err
	}
	if blocked {
		_, err = m.recordEvent(ctx, EventUnauthorizedAccess, userID, map[string]interface{}{"reason": "blocked"}, SeverityMedium)
		return false, err
	}

	limited, err := m.checkRateLimit(ctx, EventLoginAttempt, userID)
	if err != nil || limited {
		return false, err
	}
	if _, err = m.recordEvent(ctx, EventLoginAttempt, userID, nil, SeverityLow); err != nil {
		return false, err
	}

	if success {
		_, err = m.recordEvent(ctx, EventLoginSuccess, userID, nil, SeverityLow)
		return err == nil, err
	}

	if _, err = m.recordEvent(ctx, EventLoginFailure, userID, nil, SeverityMedium); err != nil {
		return false, err
	}
	// the failure just recorded counts towards the rule
	_, err = m.checkRateLimit(ctx, EventLoginFailure, userID)
	return false, err
}

// createAlert stores an alert, mirrors it into the event log as suspicious
// activity and forwards high severity alerts to the notifier. Failures are logged
func (m *Manager) createAlert(ctx context.Context, alertType string, severity Severity, message string, details map[string]interface{}) *Alert {
	a := &Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Details:   details,
		Timestamp: m.now(),
	}
	if err := m.store.putAlert(a); err != nil {
		m.logger.Error(err, "failed to store alert", log.KV{"alert_type": alertType})
	}
	m.metrics.alert(*a)

	_, err := m.recordEvent(ctx, EventSuspiciousActivity, SystemUser, map[string]interface{}{
		"alertId":   a.ID,
		"alertType": alertType,
		"message":   message,
	}, severity)
	if err != nil {
		m.logger.Error(err, "failed to record alert event", log.KV{"alert_type": alertType})
	}

	if severity.Notify() {
		if err := m.notifier.Notify(ctx, *a); err != nil {
			m.logger.Error(err, "failed to notify alert", log.KV{"alert_type": alertType})
		}
	}
	return a
}

// Events returns events matching filter, newest first
func (m *Manager) Events(ctx context.Context, filter EventFilter) (events []Event) {
	defer m.recoverFault("events", func() {
		events = []Event{}
	})
	if ctx.Err() != nil {
		return []Event{}
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultFeedLimit
	}
	events, err := m.store.events(filter)
	if err != nil {
		m.logger.Error(err, "failed to list events")
		return []Event{}
	}
	return events
}

// Alerts returns up to limit alerts, newest first
func (m *Manager) Alerts(ctx context.Context, limit int) (alerts []Alert) {
	defer m.recoverFault("alerts", func() {
		alerts = []Alert{}
	})
	if ctx.Err() != nil {
		return []Alert{}
	}
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	alerts, err := m.store.alerts(limit)
	if err != nil {
		m.logger.Error(err, "failed to list alerts")
		return []Alert{}
	}
	return alerts
}

// ResolveEvent marks an event as resolved
func (m *Manager) ResolveEvent(ctx context.Context, id string) (err error) {
	defer m.recoverFault("resolveEvent", func() {
		err = ErrInternal
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	e, key, err := m.store.eventByID(id)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrEventNotFound
	}

	unlock := m.locks.Lock(e.UserID)
	defer unlock()
	e.Resolved = true
	return m.store.putJSON(key, e)
}

// CleanupOldEvents removes events and alerts older than the retention window
// and expired blocks. It returns the number of removed events
func (m *Manager) CleanupOldEvents(ctx context.Context) (removed int, err error) {
	defer m.recoverFault("cleanupOldEvents", func() {
		err = ErrInternal
	})

	cutoff := m.now().Add(-m.cfg.Retention())
	events, err := m.store.eventKeys(eventPrefix)
	if err != nil {
		return 0, err
	}
	for _, k := range events {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !k.ts.Before(cutoff) {
			continue
		}
		if err := m.store.deleteEvent(k); err != nil {
			return removed, err
		}
		removed++
	}

	alerts, err := m.store.alertKeys()
	if err != nil {
		return removed, err
	}
	for _, k := range alerts {
		if k.ts.Before(cutoff) {
			if err := m.store.kv.Delete(k.key); err != nil {
				return removed, err
			}
		}
	}

	if err := m.cleanupBlocks(ctx); err != nil {
		return removed, err
	}
	if err := m.store.kv.Prune(); err != nil {
		return removed, err
	}

	if removed > 0 {
		m.logger.Info("old security events removed", log.KV{"count": removed})
	}
	return removed, nil
}

func (m *Manager) cleanupBlocks(ctx context.Context) error {
	keys, err := m.store.kv.Keys(blockPrefix)
	if err != nil {
		return err
	}
	now := m.now()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := &BlockRecord{}
		found, err := m.store.getJSON(key, b)
		if err != nil {
			return err
		}
		if found && !b.Active(now) {
			unlock := m.locks.Lock(b.UserID)
			// re-read under lock; the user may have been blocked again
			_, err = m.isBlocked(ctx, b.UserID)
			unlock()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Start runs the periodic cleanup sweep (safe to call multiple times).
// The sweep only reclaims storage; block expiry is evaluated on read
func (m *Manager) Start() {
	if m.sweeper != nil {
		m.sweeper.Start()
	}
}

func (m *Manager) sweep(ctx context.Context) {
	if _, err := m.CleanupOldEvents(ctx); err != nil {
		m.logger.Error(err, "security cleanup sweep failed")
	}
}

// Shutdown stops the cleanup sweep
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.sweeper == nil {
		return nil
	}
	return m.sweeper.Shutdown(ctx)
}
