// Package telegram verifies initData payloads sent by Telegram Mini Apps
package telegram

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/crypt/signing"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrMissingHash       = utils.Error("Missing hash parameter")
	ErrMissingAuthDate   = utils.Error("Missing auth_date parameter")
	ErrInvalidAuthDate   = utils.Error("Invalid auth_date format")
	ErrExpired           = utils.Error("initData expired")
	ErrInvalidSignature  = utils.Error("Invalid signature - possible tampering detected")
	ErrMissingBotToken   = utils.Error("bot token not configured")
	ErrMissingInitData   = utils.Error("Missing x-telegram-init-data header")
	ErrMalformedInitData = utils.Error("malformed initData")
	ErrInternal          = utils.Error("Validation failed due to internal error")
	ErrInvalidMaxAge     = utils.Error("maxAgeSeconds cannot be negative")

	DefaultMaxAge     = 3600 * time.Second
	HeaderInitData    = "X-Telegram-Init-Data"
	AuthorizationType = "tma"
)

// Result of an initData validation. Error carries a human readable reason and
// Err the matching sentinel; both are empty when Valid is true
type Result struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	AuthDate int64  `json:"timestamp,omitempty"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
	// User is the decoded user object, when present
	User *User `json:"-"`
}

func failure(err error) *Result {
	return &Result{Valid: false, Error: err.Error(), Err: err}
}

func normalizeMaxAge(maxAge time.Duration) time.Duration {
	if maxAge <= 0 {
		return DefaultMaxAge
	}
	return maxAge
}

// Validate verifies initData against botToken. maxAge <= 0 uses DefaultMaxAge
func Validate(initData, botToken string, maxAge time.Duration) *Result {
	return validateAt(initData, []byte(botToken), maxAge, time.Now())
}

func validateAt(initData string, botToken []byte, maxAge time.Duration, now time.Time) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.New("telegram").Error(fmt.Errorf("%v", r), "initData validation panicked")
			result = failure(ErrInternal)
		}
	}()

	if len(botToken) == 0 {
		return failure(ErrMissingBotToken)
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return failure(ErrMalformedInitData)
	}

	hash := values.Get(FieldHash)
	if hash == "" {
		return failure(ErrMissingHash)
	}
	authDate, err := parseAuthDate(values.Get(FieldAuthDate))
	if err != nil {
		return failure(err)
	}

	maxAge = normalizeMaxAge(maxAge)
	maxAgeSeconds := int64(maxAge.Seconds())
	if now.Unix()-authDate > maxAgeSeconds {
		return &Result{
			Error: fmt.Sprintf("initData expired (older than %ds)", maxAgeSeconds),
			Err:   ErrExpired,
		}
	}

	provided, err := hex.DecodeString(strings.ToLower(hash))
	if err != nil {
		return failure(ErrInvalidSignature)
	}
	expected := signing.HMACSHA256(secretKey(botToken), []byte(DataCheckString(values)))
	if !signing.Equal(expected, provided) {
		return failure(ErrInvalidSignature)
	}

	result = &Result{
		Valid:    true,
		AuthDate: authDate,
	}
	if u := parseUser(values.Get(FieldUser)); u != nil {
		result.User = u
		result.UserID = strconv.FormatInt(u.ID, 10)
		result.Username = u.Username
	}
	return result
}

type Config struct {
	BotToken      secure.CredentialConfig `json:"botToken"`
	MaxAgeSeconds int                     `json:"maxAgeSeconds"`
}

func NewConfig() *Config {
	return &Config{
		MaxAgeSeconds: int(DefaultMaxAge.Seconds()),
	}
}

func (c *Config) Validate() error {
	if c.MaxAgeSeconds < 0 {
		return ErrInvalidMaxAge
	}
	return nil
}

// Validator holds the bot token for request validation
type Validator struct {
	token  *secure.Credential
	maxAge time.Duration
	now    func() time.Time
}

// NewValidator loads the bot token. An empty token is accepted here; every
// validation then fails with ErrMissingBotToken
func NewValidator(cfg *Config) (*Validator, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	token, err := secure.NewCredentialFromConfig(cfg.BotToken, true)
	if err != nil {
		return nil, err
	}
	return &Validator{
		token:  token,
		maxAge: time.Duration(cfg.MaxAgeSeconds) * time.Second,
		now:    time.Now,
	}, nil
}

// Validate verifies an initData string
func (v *Validator) Validate(initData string) *Result {
	token, err := v.token.GetBytes()
	if err != nil {
		return failure(ErrInternal)
	}
	defer utils.Zero(token)
	return validateAt(initData, token, v.maxAge, v.now())
}

// InitDataFromRequest reads initData from the X-Telegram-Init-Data header, or from
// an "Authorization: tma <initData>" header
func InitDataFromRequest(r *http.Request) string {
	if data := strings.TrimSpace(r.Header.Get(HeaderInitData)); data != "" {
		return data
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len(AuthorizationType)+1 && strings.EqualFold(auth[:len(AuthorizationType)], AuthorizationType) && auth[len(AuthorizationType)] == ' ' {
		return strings.TrimSpace(auth[len(AuthorizationType)+1:])
	}
	return ""
}

// ValidateRequest validates the initData carried by r
func (v *Validator) ValidateRequest(r *http.Request) *Result {
	data := InitDataFromRequest(r)
	if data == "" {
		return failure(ErrMissingInitData)
	}
	return v.Validate(data)
}

// Close wipes the bot token from memory
func (v *Validator) Close() {
	v.token.Clear()
}
