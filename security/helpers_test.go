package security

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oddbit-project/walletguard/provider/kv"
	"github.com/oddbit-project/walletguard/utils"
	"github.com/stretchr/testify/require"
)

const errStoreDown = utils.Error("store unavailable")

// noon UTC, outside the night hours
var testStart = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a Alert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, a)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]string, 0, len(n.alerts))
	for _, a := range n.alerts {
		result = append(result, a.Type)
	}
	return result
}

// failingKV fails every operation, or panics when panics is set
type failingKV struct {
	panics bool
}

func (f failingKV) fail() error {
	if f.panics {
		panic("store exploded")
	}
	return errStoreDown
}

func (f failingKV) SetTTL(string, []byte, time.Duration) error { return f.fail() }
func (f failingKV) Set(string, []byte) error                   { return f.fail() }
func (f failingKV) Get(string) ([]byte, error)                 { return nil, f.fail() }
func (f failingKV) Delete(string) error                        { return f.fail() }
func (f failingKV) Keys(string) ([]string, error)              { return nil, f.fail() }
func (f failingKV) Prune() error                               { return f.fail() }

type testEnv struct {
	manager  *Manager
	clock    *testClock
	store    kv.KV
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, cfg *Config, opts ...Option) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = NewConfig()
	}
	env := &testEnv{
		clock:    newTestClock(testStart),
		store:    kv.NewMemoryKV(),
		notifier: &recordingNotifier{},
	}
	opts = append([]Option{WithClock(env.clock.Now), WithNotifier(env.notifier)}, opts...)
	m, err := NewManager(cfg, env.store, opts...)
	require.NoError(t, err)
	env.manager = m
	return env
}

func alertTypes(alerts []Alert) []string {
	result := make([]string, 0, len(alerts))
	for _, a := range alerts {
		result = append(result, a.Type)
	}
	return result
}
