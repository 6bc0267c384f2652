package gateway

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/oddbit-project/walletguard/sanitize"
	"github.com/oddbit-project/walletguard/utils"
	"github.com/shopspring/decimal"
)

const (
	ErrEmptyInput         = utils.Error("input is empty")
	ErrInputTooLong       = utils.Error("input exceeds maximum length")
	ErrInvalidEmail       = utils.Error("invalid email format")
	ErrInvalidUsername    = utils.Error("invalid username format")
	ErrInvalidWallet      = utils.Error("invalid wallet address format")
	ErrInvalidAmount      = utils.Error("invalid amount")
	ErrInvalidURL         = utils.Error("invalid or unsafe URL")
	ErrInvalidFilename    = utils.Error("invalid file name")
	ErrSuspiciousInput    = utils.Error("input contains a suspicious pattern")
	ErrUnknownValidator   = utils.Error("unknown validator kind")
	ErrInvalidMaxLength   = utils.Error("maxTextLength must be positive")
	ErrInvalidMaxDecimals = utils.Error("maxAmountDecimals must be positive")
)

// ValidatorKind enumerates the input classes the gateway can validate
type ValidatorKind int

const (
	Email ValidatorKind = iota
	Username
	WalletAddress
	Amount
	URL
	Text
	Filename
)

// ValidatorKinds lists every kind, in declaration order
var ValidatorKinds = []ValidatorKind{Email, Username, WalletAddress, Amount, URL, Text, Filename}

func (k ValidatorKind) String() string {
	switch k {
	case Email:
		return "email"
	case Username:
		return "username"
	case WalletAddress:
		return "walletAddress"
	case Amount:
		return "amount"
	case URL:
		return "url"
	case Text:
		return "text"
	case Filename:
		return "filename"
	}
	return "unknown"
}

// ValidatorFunc checks a single input value
type ValidatorFunc func(string) error

const (
	maxEmailLength = 254
)

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{4,31}$`)
	solanaRe   = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	tonRe      = regexp.MustCompile(`^(EQ|UQ)[A-Za-z0-9_-]{46}$`)
	ethRe      = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
)

func validateEmail(in string) error {
	if in == "" {
		return ErrEmptyInput
	}
	if len(in) > maxEmailLength {
		return ErrInputTooLong
	}
	if !emailRe.MatchString(in) {
		return ErrInvalidEmail
	}
	return nil
}

// validateUsername accepts telegram-style usernames, with or without a leading '@'
func validateUsername(in string) error {
	in = strings.TrimPrefix(in, "@")
	if in == "" {
		return ErrEmptyInput
	}
	if !usernameRe.MatchString(in) {
		return ErrInvalidUsername
	}
	return nil
}

// validateWalletAddress accepts solana, ton and evm addresses
func validateWalletAddress(in string) error {
	if in == "" {
		return ErrEmptyInput
	}
	if solanaRe.MatchString(in) || tonRe.MatchString(in) || ethRe.MatchString(in) {
		return nil
	}
	return ErrInvalidWallet
}

func amountValidator(maxDecimals int32) ValidatorFunc {
	return func(in string) error {
		if in == "" {
			return ErrEmptyInput
		}
		d, err := decimal.NewFromString(in)
		if err != nil {
			return ErrInvalidAmount
		}
		if !d.IsPositive() || -d.Exponent() > maxDecimals {
			return ErrInvalidAmount
		}
		return nil
	}
}

func validateURL(in string) error {
	if in == "" {
		return ErrEmptyInput
	}
	clean := sanitize.SanitizeURL(in)
	if clean == "" {
		return ErrInvalidURL
	}
	switch sanitize.URLScheme(clean) {
	case "http", "https":
		return nil
	}
	return ErrInvalidURL
}

func textValidator(maxLength int) ValidatorFunc {
	return func(in string) error {
		clean := strings.TrimSpace(sanitize.StripDangerousHTML(in))
		if clean == "" {
			return ErrEmptyInput
		}
		if utf8.RuneCountInString(clean) > maxLength {
			return ErrInputTooLong
		}
		if clean != strings.TrimSpace(in) {
			return ErrSuspiciousInput
		}
		return nil
	}
}

func validateFilename(in string) error {
	if in == "" {
		return ErrEmptyInput
	}
	if sanitize.SanitizeFilename(in) != in {
		return ErrInvalidFilename
	}
	return nil
}

func newValidators(cfg *Config) map[ValidatorKind]ValidatorFunc {
	return map[ValidatorKind]ValidatorFunc{
		Email:         validateEmail,
		Username:      validateUsername,
		WalletAddress: validateWalletAddress,
		Amount:        amountValidator(cfg.MaxAmountDecimals),
		URL:           validateURL,
		Text:          textValidator(cfg.MaxTextLength),
		Filename:      validateFilename,
	}
}
