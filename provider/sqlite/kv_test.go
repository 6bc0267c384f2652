package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oddbit-project/walletguard/provider/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ kv.KV = (*KV)(nil)

func newTestKV(t *testing.T) (*KV, *time.Time) {
	t.Helper()
	store, err := NewKV(NewConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		error error
	}{
		{"default", *NewConfig(), nil},
		{"missing dsn", Config{Table: "kv"}, ErrMissingDSN},
		{"missing table", Config{DSN: ":memory:"}, ErrInvalidTable},
		{"injection", Config{DSN: ":memory:", Table: "kv; DROP TABLE x"}, ErrInvalidTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.error == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.error)
			}
		})
	}
}

func TestKV(t *testing.T) {
	store, now := newTestKV(t)

	require.NoError(t, store.Set("a", []byte("1")))
	v, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	// overwrite
	require.NoError(t, store.Set("a", []byte("2")))
	v, _ = store.Get("a")
	assert.Equal(t, []byte("2"), v)

	v, err = store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, store.SetTTL("b", []byte("x"), time.Minute))
	v, _ = store.Get("b")
	assert.Equal(t, []byte("x"), v)

	*now = now.Add(2 * time.Minute)
	v, err = store.Get("b")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, store.Delete("a"))
	v, _ = store.Get("a")
	assert.Nil(t, v)
}

func TestKVKeysAndPrune(t *testing.T) {
	store, now := newTestKV(t)

	require.NoError(t, store.Set("sec:event:u1:1", []byte("e")))
	require.NoError(t, store.Set("sec:event:u2:1", []byte("e")))
	require.NoError(t, store.Set("sec:alert:1", []byte("a")))
	require.NoError(t, store.SetTTL("sec:event:u1:2", []byte("e"), time.Second))
	// LIKE wildcards in the prefix are matched literally
	require.NoError(t, store.Set("sec%x", []byte("e")))

	keys, err := store.Keys("sec:event:")
	require.NoError(t, err)
	assert.Equal(t, []string{"sec:event:u1:1", "sec:event:u1:2", "sec:event:u2:1"}, keys)

	keys, err = store.Keys("sec%")
	require.NoError(t, err)
	assert.Equal(t, []string{"sec%x"}, keys)

	*now = now.Add(time.Hour)
	keys, err = store.Keys("sec:event:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sec:event:u1:1"}, keys)

	require.NoError(t, store.Prune())
	var count int
	require.NoError(t, store.Conn.Get(&count, "SELECT COUNT(*) FROM kv_store"))
	assert.Equal(t, 4, count)
}

func TestKVFile(t *testing.T) {
	cfg := NewConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "store.db")

	store, err := NewKV(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Set("persist", []byte("yes")))
	require.NoError(t, store.Close())

	store, err = NewKV(cfg)
	require.NoError(t, err)
	defer store.Close()
	v, err := store.Get("persist")
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), v)
}
