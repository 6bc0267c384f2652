// Package nats carries recovery deliveries and contact replies between
// walletguard and the chat bridge
package nats

import (
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/provider/tls"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrMissingURL      = utils.Error("missing NATS url")
	ErrMissingSubject  = utils.Error("missing NATS subject")
	ErrProducerClosed  = utils.Error("producer is closed")
	ErrConsumerClosed  = utils.Error("consumer is closed")
	ErrInvalidAuthType = utils.Error("invalid authentication type")
	ErrNilConfig       = utils.Error("config is nil")

	DefaultReconnectWait = time.Second * 30
	DefaultConnectRetry  = 3

	AuthTypeNone  = "none"
	AuthTypeBasic = "basic"
	AuthTypeToken = "token"

	LogSubjectKey = "nats_subject"
	LogQueueKey   = "nats_queue"
)

var validAuthTypes = []string{AuthTypeNone, AuthTypeBasic, AuthTypeToken}

// clientLogger tags logger with the client role, subject and queue group
func clientLogger(logger *log.Logger, role, subject, queue string) *log.Logger {
	if logger == nil {
		logger = log.New("nats")
	}
	logger = logger.
		WithField(log.LogComponentKey, role).
		WithField(LogSubjectKey, subject)
	if queue != "" {
		logger = logger.WithField(LogQueueKey, queue)
	}
	return logger
}

// ConnectionConfig is shared by producers and consumers
type ConnectionConfig struct {
	URL      string `json:"url"`
	AuthType string `json:"authType"`
	Username string `json:"username"`
	secure.CredentialConfig
	Name         string `json:"name"`
	PingInterval uint   `json:"pingInterval"` // seconds
	MaxPingsOut  uint   `json:"maxPingsOut"`
	Timeout      uint   `json:"timeout"` // connect timeout, milliseconds
	tls.ClientConfig
}

func (c ConnectionConfig) Validate() error {
	if len(c.URL) == 0 {
		return ErrMissingURL
	}
	if !slices.Contains(validAuthTypes, c.AuthType) {
		return ErrInvalidAuthType
	}
	return c.ClientConfig.Validate()
}

// options builds the client options; the credential is read once and cleared
func (c ConnectionConfig) options(defaultName string) (nats.Options, error) {
	opts := nats.GetDefaultOptions()
	opts.Url = c.URL
	opts.AllowReconnect = true
	opts.MaxReconnect = DefaultConnectRetry
	opts.ReconnectWait = DefaultReconnectWait
	opts.Name = c.Name
	if opts.Name == "" {
		opts.Name = defaultName
	}

	if c.AuthType == AuthTypeBasic || c.AuthType == AuthTypeToken {
		credential, err := secure.NewCredentialFromConfig(c.CredentialConfig, true)
		if err != nil {
			return opts, err
		}
		password, err := credential.Get()
		credential.Clear()
		if err != nil {
			return opts, err
		}
		if c.AuthType == AuthTypeBasic {
			opts.User = c.Username
			opts.Password = password
		} else {
			opts.Token = password
		}
	}

	tlsConfig, err := c.TLSConfig()
	if err != nil {
		return opts, err
	}
	if tlsConfig != nil {
		opts.Secure = true
		opts.TLSConfig = tlsConfig
	}

	if c.PingInterval > 0 {
		opts.PingInterval = time.Duration(c.PingInterval) * time.Second
	}
	if c.MaxPingsOut > 0 {
		opts.MaxPingsOut = int(c.MaxPingsOut)
	}
	if c.Timeout > 0 {
		opts.Timeout = time.Duration(c.Timeout) * time.Millisecond
	}
	return opts, nil
}
