package security

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/oddbit-project/walletguard/log"
)

// PhishingThreshold is the minimum number of signals that flags a URL
const PhishingThreshold = 2

// phishing signals
const (
	SignalShortener       = "shortener"
	SignalLureKeyword     = "lure_keyword"
	SignalCredentialToken = "credential_keyword"
	SignalIPHost          = "ip_host"
	SignalUnknownDomain   = "unknown_domain"
	SignalInvalidURL      = "invalid_url"
	SignalInternalError   = "internal_error"
)

var phishingPatterns = []struct {
	signal  string
	pattern *regexp.Regexp
}{
	{SignalShortener, regexp.MustCompile(`(?i)bit\.ly|bitly\.|\bt\.co\b|tinyurl\.`)},
	{SignalLureKeyword, regexp.MustCompile(`(?i)free|bonus|giveaway|airdrop`)},
	{SignalCredentialToken, regexp.MustCompile(`(?i)login|signin|wallet|connect`)},
	{SignalIPHost, regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
}

// CheckPhishing scores rawURL against the phishing heuristics. A URL that
// cannot be evaluated is reported as phishing
func (m *Manager) CheckPhishing(ctx context.Context, rawURL string) (result PhishingResult) {
	defer func() {
		m.metrics.phishingCheck(result.IsPhishing)
	}()
	defer m.recoverFault("checkPhishing", func() {
		result = PhishingResult{IsPhishing: true, Signals: []string{SignalInternalError}}
	})

	result = m.scoreURL(rawURL)
	if result.IsPhishing {
		m.createAlert(ctx, AlertPhishingAttempt, SeverityHigh, "Potential phishing URL detected", map[string]interface{}{
			"url":     rawURL,
			"score":   result.Score,
			"signals": result.Signals,
		})
		m.logger.Warn("phishing url detected", log.KV{"url": rawURL, "signals": result.Signals})
	}
	return result
}

func (m *Manager) scoreURL(rawURL string) PhishingResult {
	signals := make([]string, 0)
	for _, p := range phishingPatterns {
		if p.pattern.MatchString(rawURL) {
			signals = append(signals, p.signal)
		}
	}

	host := ""
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err == nil {
		host = strings.ToLower(u.Hostname())
	}
	if host == "" {
		signals = append(signals, SignalInvalidURL)
	}
	if !m.trustedHost(host) {
		signals = append(signals, SignalUnknownDomain)
	}

	return PhishingResult{
		IsPhishing: len(signals) >= PhishingThreshold,
		Score:      len(signals),
		Signals:    signals,
	}
}

// trustedHost matches host against the trusted domains and their subdomains
func (m *Manager) trustedHost(host string) bool {
	if host == "" {
		return false
	}
	for _, d := range m.cfg.TrustedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
