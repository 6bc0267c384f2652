package security

import (
	"time"

	"github.com/oddbit-project/walletguard/utils"
	"github.com/shopspring/decimal"
)

const (
	ErrInvalidMaxTransactions = utils.Error("maxTransactionsPerHour must be positive")
	ErrInvalidMaxAmount       = utils.Error("maxAmountPerTransaction must be positive")
	ErrInvalidThreshold       = utils.Error("anomalyThreshold must be between 0 and 1")
	ErrInvalidRetention       = utils.Error("retentionDays must be positive")
	ErrInvalidSweepInterval   = utils.Error("sweepIntervalSeconds must not be negative")
	ErrInvalidNightHour       = utils.Error("nightHours must be between 0 and 23")
	ErrInvalidTimezone        = utils.Error("invalid timezone")
	ErrInvalidRule            = utils.Error("invalid rate limit rule")

	DefaultMaxTransactionsPerHour = 10
	DefaultAnomalyThreshold       = 0.7
	DefaultRetentionDays          = 30
	DefaultSweepIntervalSeconds   = 3600
	DefaultFeedLimit              = 50
	DefaultAlertLimit             = 10
)

// DefaultMaxAmountPerTransaction is the per-transaction ceiling
var DefaultMaxAmountPerTransaction = decimal.NewFromInt(100)

// Config Security Manager configuration
type Config struct {
	MaxTransactionsPerHour  int             `json:"maxTransactionsPerHour"`
	MaxAmountPerTransaction decimal.Decimal `json:"maxAmountPerTransaction"`
	AnomalyDetection        bool            `json:"anomalyDetection"`
	AnomalyThreshold        float64         `json:"anomalyThreshold"`
	RetentionDays           int             `json:"retentionDays"`
	SweepIntervalSeconds    int             `json:"sweepIntervalSeconds"` // 0 disables the background sweep
	NightHours              []int           `json:"nightHours"`
	TrustedDomains          []string        `json:"trustedDomains"`
	Timezone                string          `json:"timezone"` // used for time-of-day scoring, defaults to UTC
}

func NewConfig() *Config {
	return &Config{
		MaxTransactionsPerHour:  DefaultMaxTransactionsPerHour,
		MaxAmountPerTransaction: DefaultMaxAmountPerTransaction,
		AnomalyDetection:        true,
		AnomalyThreshold:        DefaultAnomalyThreshold,
		RetentionDays:           DefaultRetentionDays,
		SweepIntervalSeconds:    DefaultSweepIntervalSeconds,
		NightHours:              []int{0, 1, 2, 3, 4, 5, 22, 23},
		TrustedDomains:          []string{"normaldance.com", "t.me", "telegram.org"},
		Timezone:                "UTC",
	}
}

// Validate checks if config values are valid
func (c *Config) Validate() error {
	if c.MaxTransactionsPerHour <= 0 {
		return ErrInvalidMaxTransactions
	}
	if !c.MaxAmountPerTransaction.IsPositive() {
		return ErrInvalidMaxAmount
	}
	if c.AnomalyThreshold < 0 || c.AnomalyThreshold > 1 {
		return ErrInvalidThreshold
	}
	if c.RetentionDays <= 0 {
		return ErrInvalidRetention
	}
	if c.SweepIntervalSeconds < 0 {
		return ErrInvalidSweepInterval
	}
	for _, h := range c.NightHours {
		if h < 0 || h > 23 {
			return ErrInvalidNightHour
		}
	}
	if _, err := c.location(); err != nil {
		return ErrInvalidTimezone
	}
	return nil
}

func (c *Config) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Retention returns the event retention window
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// DefaultRules returns the built-in rate limit rules for cfg
func DefaultRules(cfg *Config) []RateLimitRule {
	return []RateLimitRule{
		{
			EventType:     EventLoginAttempt,
			MaxAttempts:   5,
			Window:        15 * time.Minute,
			BlockDuration: 30 * time.Minute,
		},
		{
			// transactions are counted once they pass validation
			EventType:     EventTransactionSent,
			Counts:        EventTransactionCreated,
			MaxAttempts:   cfg.MaxTransactionsPerHour,
			Window:        time.Hour,
			BlockDuration: time.Hour,
		},
		{
			EventType:     EventLoginFailure,
			MaxAttempts:   3,
			Window:        5 * time.Minute,
			BlockDuration: 15 * time.Minute,
		},
	}
}

func validateRule(r RateLimitRule) error {
	if !r.EventType.Valid() || !r.counted().Valid() {
		return ErrInvalidRule
	}
	if r.MaxAttempts <= 0 || r.Window <= 0 || r.BlockDuration <= 0 {
		return ErrInvalidRule
	}
	return nil
}
