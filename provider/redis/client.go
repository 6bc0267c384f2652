package redis

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/provider/tls"
	"github.com/oddbit-project/walletguard/utils"
	"github.com/redis/go-redis/v9"
)

const (
	ErrMissingAddress = utils.Error("Missing address")

	scanBatchSize = 256
)

// Config redis connection options
type Config struct {
	Address        string `json:"address"`        // Address of the redis server
	DB             int    `json:"db"`             // DB is the redis database to use
	KeyPrefix      string `json:"keyPrefix"`      // KeyPrefix is prepended to every key
	TTL            uint   `json:"ttl"`            // TTL in seconds applied by Set; 0 disables
	TimeoutSeconds uint   `json:"timeoutSeconds"` // TimeoutSeconds seconds to wait for operation
	secure.CredentialConfig
	tls.ClientConfig
}

type Client struct {
	Client  *redis.Client
	config  *Config
	timeout time.Duration
	ttl     time.Duration
}

// NewConfig returns a default Client configuration
func NewConfig() *Config {
	return &Config{
		Address:        "localhost:6379",
		DB:             0,
		KeyPrefix:      "walletguard:",
		TTL:            0,
		TimeoutSeconds: 10,
	}
}

// Validate Config
func (c *Config) Validate() error {
	if len(c.Address) == 0 {
		return ErrMissingAddress
	}
	return c.ClientConfig.Validate()
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = NewConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	tlsConfig, err := config.TLSConfig()
	if err != nil {
		return nil, err
	}

	cred, err := secure.NewCredentialFromConfig(config.CredentialConfig, true)
	if err != nil {
		return nil, err
	}
	pwd, err := cred.Get()
	cred.Clear()
	if err != nil {
		return nil, err
	}

	return &Client{
		config:  config,
		timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		ttl:     time.Duration(config.TTL) * time.Second,
		Client: redis.NewClient(&redis.Options{
			Addr:      config.Address,
			Password:  pwd,
			DB:        config.DB,
			TLSConfig: tlsConfig,
		}),
	}, nil
}

func (c *Client) Connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.Client.Ping(ctx).Result()
	return err
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// Key assemble key
func (c *Client) Key(key string) string {
	return c.config.KeyPrefix + key
}

// Prune is a no-op; redis expires keys on its own
func (c *Client) Prune() error {
	return nil
}

// Get fetch a key
func (c *Client) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	data, err := c.Client.Get(ctx, c.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Set sets a value with the default TTL
func (c *Client) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.Client.Set(ctx, c.Key(key), value, c.ttl).Err()
}

// SetTTL sets a value with custom TTL
func (c *Client) SetTTL(key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	return c.Client.Set(ctx, c.Key(key), value, ttl).Err()
}

// Delete removes a key
func (c *Client) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.Client.Del(ctx, c.Key(key)).Err()
}

// Keys lists keys starting with prefix using SCAN; KeyPrefix is stripped from the result
func (c *Client) Keys(prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	pattern := escapeGlob(c.Key(prefix)) + "*"
	seen := make(map[string]struct{})
	iter := c.Client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		// SCAN may return a key more than once
		seen[strings.TrimPrefix(iter.Val(), c.config.KeyPrefix)] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	result := make([]string, 0, len(seen))
	for k := range seen {
		result = append(result, k)
	}
	sort.Strings(result)
	return result, nil
}

// TTL returns the default ttl
func (c *Client) TTL() time.Duration {
	return c.ttl
}

// escapeGlob escapes redis MATCH metacharacters
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
