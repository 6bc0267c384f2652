package nats

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/oddbit-project/walletguard/log"
)

type ProducerConfig struct {
	ConnectionConfig
	Subject string `json:"subject"` // default subject for Publish
}

func (c ProducerConfig) Validate() error {
	if err := c.ConnectionConfig.Validate(); err != nil {
		return err
	}
	if len(c.Subject) == 0 {
		return ErrMissingSubject
	}
	return nil
}

type Producer struct {
	Subject string
	Conn    *nats.Conn
	Logger  *log.Logger
}

func NewProducer(cfg *ProducerConfig, logger *log.Logger) (*Producer, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := cfg.options("walletguardProducer")
	if err != nil {
		return nil, err
	}
	logger = clientLogger(logger, "producer", cfg.Subject, "")

	conn, err := opts.Connect()
	if err != nil {
		logger.Error(err, "failed to connect to NATS", log.KV{
			"url": cfg.URL,
		})
		return nil, err
	}
	return &Producer{
		Subject: cfg.Subject,
		Conn:    conn,
		Logger:  logger,
	}, nil
}

// IsConnected returns true if the NATS connection is up
func (p *Producer) IsConnected() bool {
	if p == nil || p.Conn == nil {
		return false
	}
	return p.Conn.IsConnected()
}

// Disconnect drains and closes the connection
func (p *Producer) Disconnect() {
	if p == nil || p.Conn == nil || p.Conn.IsDraining() {
		return
	}
	p.Logger.Info("closing producer connection")
	if err := p.Conn.Drain(); err != nil {
		p.Logger.Error(err, "error draining NATS connection")
	}
	p.Conn.Close()
	p.Conn = nil
}

// Publish sends data to the default subject
func (p *Producer) Publish(data []byte) error {
	if p == nil {
		return ErrProducerClosed
	}
	return p.PublishMsg(p.Subject, data)
}

// PublishMsg sends data to subject
func (p *Producer) PublishMsg(subject string, data []byte) error {
	if !p.IsConnected() {
		return ErrProducerClosed
	}
	if err := p.Conn.Publish(subject, data); err != nil {
		p.Logger.Error(err, "failed to publish NATS message", log.KV{
			"subject":      subject,
			"message_size": len(data),
		})
		return err
	}
	return nil
}

// PublishJSON sends data as JSON to the default subject
func (p *Producer) PublishJSON(data interface{}) error {
	if p == nil {
		return ErrProducerClosed
	}
	return p.PublishJSONMsg(p.Subject, data)
}

// PublishJSONMsg sends data as JSON to subject
func (p *Producer) PublishJSONMsg(subject string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.PublishMsg(subject, raw)
}
