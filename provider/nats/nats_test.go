package nats

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/oddbit-project/walletguard/config"
	"github.com/oddbit-project/walletguard/config/provider"
	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/provider/tls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	conn := ConnectionConfig{URL: "nats://localhost:4222", AuthType: AuthTypeNone}

	testCases := []struct {
		name     string
		config   ProducerConfig
		expected error
	}{
		{"missing url", ProducerConfig{ConnectionConfig: ConnectionConfig{AuthType: AuthTypeNone}, Subject: "a"}, ErrMissingURL},
		{"missing subject", ProducerConfig{ConnectionConfig: conn}, ErrMissingSubject},
		{"invalid auth", ProducerConfig{ConnectionConfig: ConnectionConfig{URL: conn.URL, AuthType: "kerberos"}, Subject: "a"}, ErrInvalidAuthType},
		{"valid", ProducerConfig{ConnectionConfig: conn, Subject: "a"}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.expected)
			}
		})
	}

	assert.ErrorIs(t, ConsumerConfig{ConnectionConfig: conn}.Validate(), ErrMissingSubject)
	assert.NoError(t, ConsumerConfig{ConnectionConfig: conn, Subject: "a", QueueGroup: "q"}.Validate())

	_, err := NewProducer(nil, nil)
	assert.ErrorIs(t, err, ErrNilConfig)
	_, err = NewConsumer(nil, nil)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestConnectionOptions(t *testing.T) {
	cfg := ConnectionConfig{
		URL:              "nats://localhost:4222",
		AuthType:         AuthTypeBasic,
		Username:         "bridge",
		CredentialConfig: secure.CredentialConfig{Password: "hunter2"},
		PingInterval:     5,
		Timeout:          250,
	}
	opts, err := cfg.options("fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", opts.Name)
	assert.Equal(t, "bridge", opts.User)
	assert.Equal(t, "hunter2", opts.Password)
	assert.Empty(t, opts.Token)
	assert.Equal(t, 5*time.Second, opts.PingInterval)
	assert.Equal(t, 250*time.Millisecond, opts.Timeout)

	cfg.AuthType = AuthTypeToken
	cfg.Name = "walletguard"
	opts, err = cfg.options("fallback")
	require.NoError(t, err)
	assert.Equal(t, "walletguard", opts.Name)
	assert.Equal(t, "hunter2", opts.Token)
	assert.Empty(t, opts.Password)
}

func TestConnectionOptionsTLS(t *testing.T) {
	p, err := provider.NewJsonProvider([]byte(`{
		"recovery": {"url":"tls://nats:4222","authType":"none","subject":"walletguard.recovery","tlsEnable":true,"tlsServerName":"nats.internal"},
		"broken": {"url":"tls://nats:4222","authType":"none","subject":"walletguard.recovery","tlsEnable":true,"tlsKey":"/etc/walletguard/nats.key"}
	}`))
	require.NoError(t, err)

	cfg := &ProducerConfig{}
	require.NoError(t, config.Load(p, "recovery", cfg))
	opts, err := cfg.options("fallback")
	require.NoError(t, err)
	assert.True(t, opts.Secure)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "nats.internal", opts.TLSConfig.ServerName)

	assert.ErrorIs(t, config.Load(p, "broken", &ProducerConfig{}), tls.ErrMissingKeyPair)

	plain := ConnectionConfig{URL: "nats://localhost:4222", AuthType: AuthTypeNone}
	opts, err = plain.options("fallback")
	require.NoError(t, err)
	assert.False(t, opts.Secure)
	assert.Nil(t, opts.TLSConfig)
}

func TestClosedProducer(t *testing.T) {
	var p *Producer
	assert.False(t, p.IsConnected())
	assert.ErrorIs(t, p.Publish([]byte("x")), ErrProducerClosed)
	assert.ErrorIs(t, p.PublishJSON(map[string]string{"a": "b"}), ErrProducerClosed)
	p.Disconnect()

	c := &Consumer{}
	assert.ErrorIs(t, c.Subscribe(context.Background(), nil), ErrConsumerClosed)
}

// integration test; requires a running NATS server at NATS_URL
func TestRoundTripIntegration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	subject := "walletguard.test." + time.Now().Format("150405.000")
	conn := ConnectionConfig{URL: url, AuthType: AuthTypeNone}

	consumer, err := NewConsumer(&ConsumerConfig{ConnectionConfig: conn, Subject: subject}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan Message, 1)
	require.NoError(t, consumer.Subscribe(ctx, func(_ context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	producer, err := NewProducer(&ProducerConfig{ConnectionConfig: conn, Subject: subject}, nil)
	require.NoError(t, err)
	require.NoError(t, producer.PublishJSON(map[string]string{"requestId": "abc"}))

	select {
	case msg := <-received:
		var body map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &body))
		assert.Equal(t, "abc", body["requestId"])
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	producer.Disconnect()
	cancel()
	consumer.Disconnect()
	assert.False(t, consumer.IsConnected())
}
