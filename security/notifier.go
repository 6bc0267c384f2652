package security

import (
	"context"

	"github.com/oddbit-project/walletguard/log"
)

// AlertNotifier receives high and critical alerts
type AlertNotifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log
type LogNotifier struct {
	Logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.NewWithComponent("security", "notifier")
	}
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.Logger.Warn("security alert", log.KV{
		"alert_id": alert.ID,
		"type":     alert.Type,
		"severity": string(alert.Severity),
		"message":  alert.Message,
	})
	return nil
}

// JSONPublisher publishes a value as JSON; *nats.Producer satisfies it
type JSONPublisher interface {
	PublishJSON(data interface{}) error
}

// PublisherNotifier forwards alerts to a message bus
type PublisherNotifier struct {
	publisher JSONPublisher
}

func NewPublisherNotifier(p JSONPublisher) *PublisherNotifier {
	return &PublisherNotifier{publisher: p}
}

func (n *PublisherNotifier) Notify(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.publisher.PublishJSON(alert)
}

// MultiNotifier fans out to several notifiers and returns the first error
type MultiNotifier []AlertNotifier

func (m MultiNotifier) Notify(ctx context.Context, alert Alert) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
