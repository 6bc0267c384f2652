package config

import "github.com/oddbit-project/walletguard/utils"

const (
	ErrNoKey       = utils.Error("config key does not exist")
	ErrInvalidType = utils.Error("invalid destination type")
)

// ConfigProvider reads structured configuration
type ConfigProvider interface {
	// Get de-serializes the whole configuration into dest
	Get(dest interface{}) error
	// GetKey de-serializes a top-level key into dest
	GetKey(key string, dest interface{}) error
	GetStringKey(key string) (string, error)
	GetConfigNode(key string) (ConfigProvider, error)
	KeyExists(key string) bool
}

// Validator is implemented by configuration structs that can check themselves
type Validator interface {
	Validate() error
}

// Load reads key into dest, keeping dest's existing values for absent keys, and
// validates the result if dest implements Validator
func Load(p ConfigProvider, key string, dest interface{}) error {
	if p.KeyExists(key) {
		if err := p.GetKey(key, dest); err != nil {
			return err
		}
	}
	if v, ok := dest.(Validator); ok {
		return v.Validate()
	}
	return nil
}
