// Package kv defines the key-value store contract shared by the security and
// recovery components, plus an in-memory implementation
package kv

import (
	"time"
)

// KV is a byte-oriented key-value store.
// Get returns (nil, nil) for missing or expired keys.
// Keys returns the live keys starting with prefix, in ascending order
type KV interface {
	SetTTL(k string, v []byte, ttl time.Duration) error
	Set(k string, v []byte) error
	Get(k string) ([]byte, error)
	Delete(k string) error
	Keys(prefix string) ([]string, error)
	Prune() error
}
