package recovery

import (
	"time"

	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrMissingSecret        = utils.Error("recovery secret is required")
	ErrWeakSecret           = utils.Error("recovery secret must be at least 32 bytes")
	ErrInvalidMinContacts   = utils.Error("minContacts must be positive")
	ErrInvalidRequestTTL    = utils.Error("requestTtlHours must be positive")
	ErrInvalidCodeLength    = utils.Error("codeLength must be between 4 and 12")
	ErrInvalidCodeTTL       = utils.Error("codeTtlSeconds must be positive")
	ErrInvalidMaxAttempts   = utils.Error("maxVerificationAttempts cannot be negative")
	ErrInvalidSweepInterval = utils.Error("sweepIntervalSeconds cannot be negative")

	MinSecretLength = 32

	DefaultMinTrustLevel           = 0.5
	DefaultMinContacts             = 3
	DefaultRequestTTLHours         = 7 * 24
	DefaultCodeLength              = 6
	DefaultCodeTTLSeconds          = 600
	DefaultMaxVerificationAttempts = 5
	DefaultSweepIntervalSeconds    = 3600
	DefaultMessage                 = "Please help me restore access to my wallet"
)

// Config Recovery Manager configuration
type Config struct {
	Secret                  secure.CredentialConfig `json:"secret"` // key material for contact keys and code digests
	MinTrustLevel           float64                 `json:"minTrustLevel"`
	MinContacts             int                     `json:"minContacts"`
	RequestTTLHours         int                     `json:"requestTtlHours"`
	CodeLength              int                     `json:"codeLength"`
	CodeTTLSeconds          int                     `json:"codeTtlSeconds"`
	MaxVerificationAttempts int                     `json:"maxVerificationAttempts"` // 0 disables rejection
	SweepIntervalSeconds    int                     `json:"sweepIntervalSeconds"`    // 0 disables the background sweep
	DefaultMessage          string                  `json:"defaultMessage"`
}

func NewConfig() *Config {
	return &Config{
		MinTrustLevel:           DefaultMinTrustLevel,
		MinContacts:             DefaultMinContacts,
		RequestTTLHours:         DefaultRequestTTLHours,
		CodeLength:              DefaultCodeLength,
		CodeTTLSeconds:          DefaultCodeTTLSeconds,
		MaxVerificationAttempts: DefaultMaxVerificationAttempts,
		SweepIntervalSeconds:    DefaultSweepIntervalSeconds,
		DefaultMessage:          DefaultMessage,
	}
}

// Validate checks if config values are valid
func (c *Config) Validate() error {
	if c.Secret.IsEmpty() {
		return ErrMissingSecret
	}
	if !validTrust(c.MinTrustLevel) {
		return ErrInvalidTrustLevel
	}
	if c.MinContacts <= 0 {
		return ErrInvalidMinContacts
	}
	if c.RequestTTLHours <= 0 {
		return ErrInvalidRequestTTL
	}
	if c.CodeLength < 4 || c.CodeLength > 12 {
		return ErrInvalidCodeLength
	}
	if c.CodeTTLSeconds <= 0 {
		return ErrInvalidCodeTTL
	}
	if c.MaxVerificationAttempts < 0 {
		return ErrInvalidMaxAttempts
	}
	if c.SweepIntervalSeconds < 0 {
		return ErrInvalidSweepInterval
	}
	return nil
}

// RequestTTL returns the lifetime of a share request
func (c *Config) RequestTTL() time.Duration {
	return time.Duration(c.RequestTTLHours) * time.Hour
}

// CodeTTL returns the lifetime of a verification code
func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLSeconds) * time.Second
}

func validTrust(v float64) bool {
	return v >= 0 && v <= 1
}
