package nats

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/oddbit-project/walletguard/log"
)

const consumerBuffer = 64

type ConsumerConfig struct {
	ConnectionConfig
	Subject    string `json:"subject"`
	QueueGroup string `json:"queueGroup"` // optional; replicas share deliveries
}

func (c ConsumerConfig) Validate() error {
	if err := c.ConnectionConfig.Validate(); err != nil {
		return err
	}
	if len(c.Subject) == 0 {
		return ErrMissingSubject
	}
	return nil
}

// Message is a received NATS message
type Message struct {
	Subject string
	Reply   string
	Data    []byte
	Headers map[string][]string
}

// ConsumerFunc processes a single message
type ConsumerFunc func(ctx context.Context, msg Message) error

type Consumer struct {
	Subject string
	Queue   string
	Conn    *nats.Conn
	Logger  *log.Logger
	wg      sync.WaitGroup
}

func NewConsumer(cfg *ConsumerConfig, logger *log.Logger) (*Consumer, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := cfg.options("walletguardConsumer")
	if err != nil {
		return nil, err
	}
	logger = clientLogger(logger, "consumer", cfg.Subject, cfg.QueueGroup)

	conn, err := opts.Connect()
	if err != nil {
		logger.Error(err, "failed to connect to NATS", log.KV{
			"url": cfg.URL,
		})
		return nil, err
	}
	return &Consumer{
		Subject: cfg.Subject,
		Queue:   cfg.QueueGroup,
		Conn:    conn,
		Logger:  logger,
	}, nil
}

func (c *Consumer) IsConnected() bool {
	if c == nil || c.Conn == nil {
		return false
	}
	return c.Conn.IsConnected()
}

func convertMessage(msg *nats.Msg) Message {
	return Message{
		Subject: msg.Subject,
		Reply:   msg.Reply,
		Data:    msg.Data,
		Headers: msg.Header,
	}
}

// Subscribe dispatches messages to handler until ctx is cancelled.
// Handler errors are logged; a reply subject always gets an empty ack
func (c *Consumer) Subscribe(ctx context.Context, handler ConsumerFunc) error {
	if !c.IsConnected() {
		return ErrConsumerClosed
	}

	msgChan := make(chan *nats.Msg, consumerBuffer)
	var sub *nats.Subscription
	var err error
	if c.Queue != "" {
		sub, err = c.Conn.ChanQueueSubscribe(c.Subject, c.Queue, msgChan)
	} else {
		sub, err = c.Conn.ChanSubscribe(c.Subject, msgChan)
	}
	if err != nil {
		c.Logger.Error(err, "failed to subscribe to NATS subject")
		return err
	}
	c.Logger.Info("subscribed to NATS subject")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := sub.Unsubscribe(); err != nil && c.IsConnected() {
				c.Logger.Error(err, "failed to unsubscribe from NATS subject")
			}
		}()
		for {
			select {
			case msg := <-msgChan:
				c.dispatch(ctx, handler, msg)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, handler ConsumerFunc, msg *nats.Msg) {
	if err := handler(ctx, convertMessage(msg)); err != nil {
		c.Logger.Warn("error processing NATS message", log.KV{
			"subject": msg.Subject,
			"error":   err.Error(),
		})
	}
	if msg.Reply != "" {
		if err := c.Conn.Publish(msg.Reply, nil); err != nil {
			c.Logger.Error(err, "failed to acknowledge NATS message", log.KV{
				"reply": msg.Reply,
			})
		}
	}
}

// Disconnect waits for the subscription loops to stop, then drains the connection.
// Cancel the Subscribe context first
func (c *Consumer) Disconnect() {
	if c == nil || c.Conn == nil || c.Conn.IsDraining() {
		return
	}
	c.wg.Wait()
	c.Logger.Info("closing consumer connection")
	if err := c.Conn.Drain(); err != nil {
		c.Logger.Error(err, "error draining NATS connection")
	}
	c.Conn.Close()
	c.Conn = nil
}
