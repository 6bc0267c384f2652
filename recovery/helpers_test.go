package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/provider/kv"
	"github.com/oddbit-project/walletguard/security"
	"github.com/oddbit-project/walletguard/utils"
	"github.com/stretchr/testify/require"
)

const (
	errStoreDown    = utils.Error("store unavailable")
	errBridgeDown   = utils.Error("chat bridge unavailable")
	testSecret      = "recovery-test-secret-0123456789abcdef"
	testOwner       = "tg:1000"
	requestLifetime = 7 * 24 * time.Hour
)

var testStart = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

var (
	alice = Contact{ID: "tg:1", FirstName: "Alice", TrustLevel: 0.9}
	bob   = Contact{ID: "tg:2", FirstName: "Bob", TrustLevel: 0.8}
	carol = Contact{ID: "tg:3", FirstName: "Carol", TrustLevel: 0.6}
	dave  = Contact{ID: "tg:4", FirstName: "Dave", TrustLevel: 0.4}
	erin  = Contact{ID: "tg:5", FirstName: "Erin", TrustLevel: 0.7}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
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

// captureMessenger records deliveries; fail makes every delivery return errBridgeDown
type captureMessenger struct {
	mu     sync.Mutex
	fail   bool
	shares []*VerificationRequest
	codes  map[string]string
}

func newCaptureMessenger() *captureMessenger {
	return &captureMessenger{codes: make(map[string]string)}
}

func (c *captureMessenger) DeliverShare(_ context.Context, _ string, _ Contact, req *VerificationRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errBridgeDown
	}
	c.shares = append(c.shares, req)
	return nil
}

func (c *captureMessenger) DeliverCode(_ context.Context, _ string, contact Contact, code string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errBridgeDown
	}
	c.codes[contact.ID] = code
	return nil
}

func (c *captureMessenger) code(contactID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[contactID]
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []security.EventType
}

func (a *recordingAuditor) RecordEvent(_ context.Context, t security.EventType, userID string, details map[string]interface{}, severity security.Severity) (*security.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, t)
	return &security.Event{Type: t, UserID: userID, Details: details, Severity: severity}, nil
}

func (a *recordingAuditor) types() []security.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]security.EventType{}, a.events...)
}

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

func testConfig() *Config {
	cfg := NewConfig()
	cfg.Secret = secure.CredentialConfig{Password: testSecret}
	cfg.SweepIntervalSeconds = 0
	return cfg
}

type testEnv struct {
	manager   *Manager
	clock     *testClock
	store     kv.KV
	messenger *captureMessenger
	auditor   *recordingAuditor
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:     &testClock{t: testStart},
		store:     kv.NewMemoryKV(),
		messenger: newCaptureMessenger(),
		auditor:   &recordingAuditor{},
	}
	opts = append([]Option{
		WithClock(env.clock.Now),
		WithMessenger(env.messenger),
		WithAuditor(env.auditor),
	}, opts...)
	m, err := NewManager(testConfig(), env.store, opts...)
	require.NoError(t, err)
	env.manager = m
	return env
}

func (env *testEnv) putMetadata(t *testing.T, md ContactMetadata) {
	t.Helper()
	require.NoError(t, env.manager.store.putMetadata(testOwner, &md))
}

// verify runs the code handshake for contact and returns the resulting metadata
func (env *testEnv) verify(t *testing.T, contact Contact) *ContactMetadata {
	t.Helper()
	ctx := context.Background()
	_, err := env.manager.IssueVerificationCode(ctx, testOwner, contact)
	require.NoError(t, err)
	md, err := env.manager.VerifyContact(ctx, testOwner, contact, env.messenger.code(contact.ID))
	require.NoError(t, err)
	return md
}

func contactIDs(contacts []Contact) []string {
	result := make([]string, 0, len(contacts))
	for _, c := range contacts {
		result = append(result, c.ID)
	}
	return result
}
