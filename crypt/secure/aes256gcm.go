package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/oddbit-project/walletguard/utils"
)

const (
	KeySize = 32

	ErrInvalidKeyLength     = utils.Error("key length must be 32 bytes")
	ErrDataTooShort         = utils.Error("data too short")
	ErrNonceExhausted       = utils.Error("nonce counter exhausted, key rotation required")
	ErrAuthenticationFailed = utils.Error("authentication failed")
	ErrKeyCleared           = utils.Error("key material was cleared")
)

// AES256GCM authenticated encryption with a fixed key.
// Ciphertexts are nonce || sealed data
type AES256GCM interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
	Clear()
}

type aes256Gcm struct {
	aead    cipher.AEAD
	key     []byte
	counter uint64
	mu      sync.Mutex
}

// NewAES256GCM creates an AES256GCM object; the key is copied
func NewAES256GCM(key []byte) (AES256GCM, error) {
	if subtle.ConstantTimeEq(int32(len(key)), KeySize) != 1 {
		return nil, ErrInvalidKeyLength
	}
	result := &aes256Gcm{
		key: make([]byte, KeySize),
	}
	copy(result.key, key)

	block, err := aes.NewCipher(result.key)
	if err != nil {
		return nil, err
	}
	if result.aead, err = cipher.NewGCM(block); err != nil {
		return nil, err
	}
	return result, nil
}

// Encrypt seals data; the 12-byte nonce is a 4-byte random prefix followed by a
// 64-bit message counter, so a single key never repeats a nonce
func (a *aes256Gcm) Encrypt(data []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.aead == nil {
		return nil, ErrKeyCleared
	}
	if a.counter == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}

	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(data)+a.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce[:4]); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint64(nonce[4:], a.counter)
	a.counter++

	return a.aead.Seal(nonce, nonce, data, nil), nil
}

// Decrypt opens data produced by Encrypt. Any tampering, or a different key,
// results in ErrAuthenticationFailed
func (a *aes256Gcm) Decrypt(data []byte) ([]byte, error) {
	a.mu.Lock()
	aead := a.aead
	a.mu.Unlock()

	if aead == nil {
		return nil, ErrKeyCleared
	}
	nonceSize := aead.NonceSize()
	if len(data) < nonceSize+aead.Overhead() {
		return nil, ErrDataTooShort
	}
	result, err := aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return result, nil
}

// Clear zeroes the key and disables the object
func (a *aes256Gcm) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	utils.Zero(a.key)
	a.key = nil
	a.aead = nil
	a.counter = 0
}
