package kv

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type record struct {
	data    []byte
	expires time.Time // zero means no expiry
}

func (r *record) expired(now time.Time) bool {
	return !r.expires.IsZero() && !now.Before(r.expires)
}

type memkv struct {
	data map[string]*record
	m    sync.RWMutex
	now  func() time.Time
}

// NewMemoryKV creates a process-local KV
func NewMemoryKV() KV {
	return newMemoryKV(time.Now)
}

func newMemoryKV(now func() time.Time) *memkv {
	return &memkv{
		data: make(map[string]*record),
		now:  now,
	}
}

func clone(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Set sets a key value
func (mkv *memkv) Set(k string, v []byte) error {
	mkv.m.Lock()
	defer mkv.m.Unlock()
	mkv.data[k] = &record{data: clone(v)}
	return nil
}

// SetTTL sets a key value with ttl; a ttl <= 0 stores the value without expiry
func (mkv *memkv) SetTTL(k string, v []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return mkv.Set(k, v)
	}
	mkv.m.Lock()
	defer mkv.m.Unlock()
	mkv.data[k] = &record{
		data:    clone(v),
		expires: mkv.now().Add(ttl),
	}
	return nil
}

// Get fetches a value
func (mkv *memkv) Get(k string) ([]byte, error) {
	mkv.m.RLock()
	v, ok := mkv.data[k]
	mkv.m.RUnlock()
	if !ok {
		return nil, nil
	}
	if v.expired(mkv.now()) {
		mkv.m.Lock()
		// re-check, the key may have been replaced meanwhile
		if cur, ok := mkv.data[k]; ok && cur == v {
			delete(mkv.data, k)
		}
		mkv.m.Unlock()
		return nil, nil
	}
	return clone(v.data), nil
}

// Delete removes a value
func (mkv *memkv) Delete(k string) error {
	mkv.m.Lock()
	defer mkv.m.Unlock()
	delete(mkv.data, k)
	return nil
}

// Keys lists live keys with the given prefix
func (mkv *memkv) Keys(prefix string) ([]string, error) {
	now := mkv.now()
	mkv.m.RLock()
	defer mkv.m.RUnlock()
	result := make([]string, 0)
	for k, v := range mkv.data {
		if strings.HasPrefix(k, prefix) && !v.expired(now) {
			result = append(result, k)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Prune removes expired records
func (mkv *memkv) Prune() error {
	now := mkv.now()
	mkv.m.Lock()
	defer mkv.m.Unlock()
	for k, v := range mkv.data {
		if v.expired(now) {
			delete(mkv.data, k)
		}
	}
	return nil
}
