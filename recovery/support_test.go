package recovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/oddbit-project/walletguard/provider/kv"
	"github.com/oddbit-project/walletguard/provider/nats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type capturePublisher struct {
	messages []published
}

func (c *capturePublisher) PublishJSONMsg(subject string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.messages = append(c.messages, published{subject: subject, data: raw})
	return nil
}

var _ SubjectPublisher = (*nats.Producer)(nil)

func TestNatsMessenger(t *testing.T) {
	pub := &capturePublisher{}
	messenger := NewNatsMessenger(pub, "bridge.recovery")
	ctx := context.Background()
	expires := testStart.Add(requestLifetime)

	req := &VerificationRequest{
		ID:        "req-1",
		ContactID: alice.ID,
		ShareID:   "share-1",
		ShareData: []byte{0x01, 0x02},
		ExpiresAt: expires,
		Message:   "Please keep this safe",
	}
	require.NoError(t, messenger.DeliverShare(ctx, testOwner, alice, req))
	require.NoError(t, messenger.DeliverCode(ctx, testOwner, bob, "123-456", testStart))
	require.Len(t, pub.messages, 2)

	assert.Equal(t, "bridge.recovery.share", pub.messages[0].subject)
	var share ShareDelivery
	require.NoError(t, json.Unmarshal(pub.messages[0].data, &share))
	assert.Equal(t, "req-1", share.RequestID)
	assert.Equal(t, testOwner, share.OwnerID)
	assert.Equal(t, []byte{0x01, 0x02}, share.ShareData)
	assert.Equal(t, "Hi Alice! Please keep this safe", share.Text)
	assert.True(t, share.ExpiresAt.Equal(expires))

	assert.Equal(t, "bridge.recovery.code", pub.messages[1].subject)
	var code CodeDelivery
	require.NoError(t, json.Unmarshal(pub.messages[1].data, &code))
	assert.Equal(t, bob.ID, code.ContactID)
	assert.Equal(t, "123-456", code.Code)
	assert.Equal(t, "Hi Bob! Your wallet verification code is 123-456. It expires at 2025-03-14T12:00:00Z.", code.Text)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, messenger.DeliverShare(cancelled, testOwner, alice, req), context.Canceled)
	assert.Len(t, pub.messages, 2)
}

func TestLogMessenger(t *testing.T) {
	messenger := NewLogMessenger(nil)
	ctx := context.Background()
	assert.NoError(t, messenger.DeliverShare(ctx, testOwner, alice, &VerificationRequest{ID: "req-1"}))
	assert.NoError(t, messenger.DeliverCode(ctx, testOwner, alice, "123-456", time.Now()))
}

func TestAcceptanceHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	handler := NewAcceptanceHandler(env.manager)

	accepted, err := env.manager.SendShareToContact(ctx, testOwner, env.manager.NewShare([]byte("a")), alice, "")
	require.NoError(t, err)
	declined, err := env.manager.SendShareToContact(ctx, testOwner, env.manager.NewShare([]byte("b")), bob, "")
	require.NoError(t, err)

	message := func(a Acceptance) nats.Message {
		raw, err := json.Marshal(a)
		require.NoError(t, err)
		return nats.Message{Subject: "bridge.recovery.accept", Data: raw}
	}

	require.NoError(t, handler.Consume(ctx, message(Acceptance{RequestID: accepted.ID, ContactID: alice.ID, Accepted: true})))
	require.NoError(t, handler.Consume(ctx, message(Acceptance{RequestID: declined.ID, ContactID: bob.ID})))

	req, err := env.manager.Request(ctx, testOwner, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestAccepted, req.Status)
	req, err = env.manager.Request(ctx, testOwner, declined.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestRejected, req.Status)

	assert.ErrorIs(t, handler.Consume(ctx, message(Acceptance{RequestID: accepted.ID, ContactID: bob.ID, Accepted: true})), ErrContactIDMismatch)
	assert.ErrorIs(t, handler.Consume(ctx, message(Acceptance{ContactID: bob.ID})), ErrInvalidAcceptance)
	assert.ErrorIs(t, handler.Consume(ctx, nats.Message{Data: []byte("{not json")}), ErrInvalidAcceptance)
}

func TestContactDirectory(t *testing.T) {
	dir := NewContactDirectory(kv.NewMemoryKV())
	ctx := context.Background()

	contacts, err := dir.Contacts(ctx, testOwner)
	require.NoError(t, err)
	assert.NotNil(t, contacts)
	assert.Empty(t, contacts)

	require.NoError(t, dir.SetContacts(ctx, testOwner, []Contact{alice, bob}))
	contacts, err = dir.Contacts(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, []Contact{alice, bob}, contacts)

	require.NoError(t, dir.SetContacts(ctx, testOwner, nil))
	contacts, err = dir.Contacts(ctx, testOwner)
	require.NoError(t, err)
	assert.Empty(t, contacts)

	assert.ErrorIs(t, dir.SetContacts(ctx, "", []Contact{alice}), ErrMissingOwnerID)
	assert.ErrorIs(t, dir.SetContacts(ctx, testOwner, []Contact{{FirstName: "x"}}), ErrMissingContactID)
	assert.ErrorIs(t, dir.SetContacts(ctx, testOwner, []Contact{{ID: "tg:9", TrustLevel: 2}}), ErrInvalidTrustLevel)
}

func TestStoreKeys(t *testing.T) {
	assert.Equal(t, "rc:meta:tg%3A1000:tg%3A1", metaKey(testOwner, alice.ID))
	assert.Equal(t, "rc:code:tg%3A1000:tg%3A1", codeKey(testOwner, alice.ID))
	assert.Equal(t, "rc:contacts:tg%3A1000", contactsKey(testOwner))

	// owner prefixes never overlap
	assert.NotContains(t, metaKey("tg:10", "x"), metaOwnerPrefix("tg:1"))
}
