package api

import "github.com/oddbit-project/walletguard/utils"

const (
	ErrInvalidBodyLimit = utils.Error("maxBodyBytes must be positive")
	ErrInvalidFeedLimit = utils.Error("maxFeedLimit must be positive")

	DefaultMaxBodyBytes = 64 * 1024
	DefaultMaxFeedLimit = 200
)

type Config struct {
	// AdminUserIDs lists the telegram users allowed to read the global alert feed
	AdminUserIDs []string `json:"adminUserIds"`
	MaxBodyBytes int64    `json:"maxBodyBytes"`
	MaxFeedLimit int      `json:"maxFeedLimit"`
}

func NewConfig() *Config {
	return &Config{
		AdminUserIDs: []string{},
		MaxBodyBytes: DefaultMaxBodyBytes,
		MaxFeedLimit: DefaultMaxFeedLimit,
	}
}

func (c *Config) Validate() error {
	if c.MaxBodyBytes <= 0 {
		return ErrInvalidBodyLimit
	}
	if c.MaxFeedLimit <= 0 {
		return ErrInvalidFeedLimit
	}
	return nil
}
