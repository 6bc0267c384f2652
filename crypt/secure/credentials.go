package secure

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/oddbit-project/walletguard/utils"
	"github.com/oddbit-project/walletguard/utils/fs"
)

const (
	ErrEmptyCredential = utils.Error("empty credential")
	ErrInvalidKey      = utils.Error("invalid encryption key")
)

// CredentialConfig describes where a secret comes from. The first non-empty source wins:
// Password, then the PasswordEnvVar environment variable, then PasswordFile
type CredentialConfig struct {
	Password       string `json:"password"`
	PasswordEnvVar string `json:"passwordEnvVar"`
	PasswordFile   string `json:"passwordFile"`
}

// IsEmpty returns true if no source is configured
func (c CredentialConfig) IsEmpty() bool {
	return strings.TrimSpace(c.Password) == "" &&
		strings.TrimSpace(c.PasswordEnvVar) == "" &&
		strings.TrimSpace(c.PasswordFile) == ""
}

// Fetch reads the secret. Environment variables are cleared after being read
func (c CredentialConfig) Fetch() (string, error) {
	if v := strings.TrimSpace(c.Password); v != "" {
		return v, nil
	}
	if name := strings.TrimSpace(c.PasswordEnvVar); name != "" {
		v := os.Getenv(name)
		_ = os.Unsetenv(name)
		return v, nil
	}
	if name := strings.TrimSpace(c.PasswordFile); name != "" {
		return fs.ReadString(name)
	}
	return "", nil
}

// Credential keeps a secret sealed in memory, decrypting it only on access
type Credential struct {
	cipher AES256GCM
	data   []byte
	mu     sync.RWMutex
}

// GenerateKey generates a random 32-byte key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncodeKey encodes a key as base64
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey decodes a base64 key
func DecodeKey(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// NewCredential seals data with key
func NewCredential(data []byte, key []byte, allowEmpty bool) (*Credential, error) {
	if len(data) == 0 && !allowEmpty {
		return nil, ErrEmptyCredential
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	c, err := NewAES256GCM(key)
	if err != nil {
		return nil, err
	}
	result := &Credential{cipher: c}
	if err = result.Update(data); err != nil {
		return nil, err
	}
	return result, nil
}

// CredentialFromConfig fetches a secret from cfg and seals it with key
func CredentialFromConfig(cfg CredentialConfig, key []byte, allowEmpty bool) (*Credential, error) {
	secret, err := cfg.Fetch()
	if err != nil {
		return nil, err
	}
	return NewCredential([]byte(secret), key, allowEmpty)
}

// NewCredentialFromConfig is CredentialFromConfig with a random, process-local key
func NewCredentialFromConfig(cfg CredentialConfig, allowEmpty bool) (*Credential, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	defer utils.Zero(key)
	return CredentialFromConfig(cfg, key, allowEmpty)
}

// Update replaces the stored secret
func (c *Credential) Update(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) == 0 {
		c.data = nil
		return nil
	}
	sealed, err := c.cipher.Encrypt(data)
	if err != nil {
		return err
	}
	c.data = sealed
	return nil
}

// GetBytes returns a copy of the plaintext secret; callers should zero it after use
func (c *Credential) GetBytes() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.data) == 0 {
		return []byte{}, nil
	}
	return c.cipher.Decrypt(c.data)
}

// Get returns the plaintext secret
func (c *Credential) Get() (string, error) {
	buf, err := c.GetBytes()
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// IsEmpty returns true if the credential holds no secret
func (c *Credential) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data) == 0
}

// Clear destroys the sealed secret and its key
func (c *Credential) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	utils.Zero(c.data)
	c.data = nil
	c.cipher.Clear()
}
