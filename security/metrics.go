package security

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "walletguard"

// Metrics holds the Security Manager counters. A nil *Metrics is valid and records nothing
type Metrics struct {
	events       *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	blocks       prometheus.Counter
	transactions *prometheus.CounterVec
	phishing     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "security",
			Name:      "events_total",
			Help:      "Security events recorded, by type",
		}, []string{"type"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "security",
			Name:      "alerts_total",
			Help:      "Security alerts raised, by type and severity",
		}, []string{"type", "severity"}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "security",
			Name:      "blocks_total",
			Help:      "Users blocked",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "security",
			Name:      "transactions_total",
			Help:      "Transaction validations, by verdict",
		}, []string{"verdict"}),
		phishing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "security",
			Name:      "phishing_checks_total",
			Help:      "URL phishing checks, by verdict",
		}, []string{"verdict"}),
	}
}

// Collectors returns the collectors to register
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.events, m.alerts, m.blocks, m.transactions, m.phishing}
}

func (m *Metrics) event(t EventType) {
	if m != nil {
		m.events.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) alert(a Alert) {
	if m != nil {
		m.alerts.WithLabelValues(a.Type, string(a.Severity)).Inc()
	}
}

func (m *Metrics) block() {
	if m != nil {
		m.blocks.Inc()
	}
}

func (m *Metrics) transaction(allowed bool) {
	if m != nil {
		m.transactions.WithLabelValues(verdict(allowed)).Inc()
	}
}

func (m *Metrics) phishingCheck(isPhishing bool) {
	if m != nil {
		m.phishing.WithLabelValues(verdict(!isPhishing)).Inc()
	}
}

func verdict(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
