// Package jetstream publishes into a NATS JetStream stream and waits for the
// stream's ack, whose sequence becomes the sink offset.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "jetstream"

const (
	DefaultStreamName = "PULSEFLOW"
	DefaultMaxAge     = 7 * 24 * time.Hour
	// DefaultDuplicateWindow is how long the stream remembers message ids.
	// Retried sends reuse the id, so a resend after a lost ack is dropped.
	DefaultDuplicateWindow = 2 * time.Minute
	DefaultAckWait         = 5 * time.Second
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("jetstream: publisher is closed")

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.JetStreamCapabilities)
	transport.RegisterWithCapabilities("nats-jetstream", Build, transport.JetStreamCapabilities)
}

// Build connects and makes sure the stream exists.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	p, err := New(ctx, Config{URL: cfg.GetNATSURL()}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{
		Publisher:    p,
		Capabilities: Capabilities(),
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.JetStreamCapabilities
}

// Config holds JetStream specific settings.
type Config struct {
	URL string
	// StreamName defaults to PULSEFLOW. Topics become subjects <stream>.<topic>.
	StreamName      string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
	AckWait         time.Duration
	Replicas        int
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = DefaultDuplicateWindow
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// StreamConfig is the stream New creates or updates.
func (c Config) StreamConfig() *nats.StreamConfig {
	c = c.withDefaults()
	return &nats.StreamConfig{
		Name:       c.StreamName,
		Subjects:   []string{c.StreamName + ".>"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     c.MaxAge,
		Duplicates: c.DuplicateWindow,
		Replicas:   c.Replicas,
	}
}

type streamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher is a watermill publisher over a JetStream context.
type Publisher struct {
	nc     *nats.Conn
	js     streamPublisher
	config Config
	logger watermill.LoggerAdapter

	offset atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// New connects to cfg.URL and ensures the stream.
func New(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Publisher, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("jetstream: URL is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("pulseflow"))
	if err != nil {
		return nil, fmt.Errorf("jetstream: connect: %w", err)
	}
	js, err := nc.JetStream(nats.Context(ctx))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: context: %w", err)
	}

	streamCfg := cfg.StreamConfig()
	if _, err := js.AddStream(streamCfg); err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			nc.Close()
			return nil, fmt.Errorf("jetstream: add stream %s: %w", cfg.StreamName, err)
		}
		if _, err := js.UpdateStream(streamCfg); err != nil {
			logger.Info("Keeping existing JetStream stream", watermill.LogFields{"stream": cfg.StreamName, "error": err.Error()})
		}
	}

	return newPublisher(nc, js, cfg, logger), nil
}

func newPublisher(nc *nats.Conn, js streamPublisher, cfg Config, logger watermill.LoggerAdapter) *Publisher {
	return &Publisher{nc: nc, js: js, config: cfg.withDefaults(), logger: logger}
}

// Subject maps a topic onto the stream.
func (p *Publisher) Subject(topic string) string {
	return p.config.StreamName + "." + topic
}

// Publish sends messages in order and returns after each one was stored.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	subject := p.Subject(topic)

	for _, msg := range messages {
		header := nats.Header{}
		for k, v := range msg.Metadata {
			header.Set(k, v)
		}
		header.Set(nats.MsgIdHdr, msg.UUID)

		ctx := msg.Context()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.config.AckWait)
			defer cancel()
		}

		ack, err := p.js.PublishMsg(&nats.Msg{Subject: subject, Data: msg.Payload, Header: header}, nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("jetstream: publish to %s: %w", subject, err)
		}
		if ack.Duplicate {
			p.logger.Debug("JetStream dropped duplicate", watermill.LogFields{"subject": subject, "uuid": msg.UUID})
		}
		p.offset.Store(int64(ack.Sequence))
	}
	return nil
}

// CurrentOffset is the stream sequence of the last stored message.
func (p *Publisher) CurrentOffset() int64 {
	return p.offset.Load()
}

// Flush round-trips to the server.
func (p *Publisher) Flush(ctx context.Context) error {
	if p.nc == nil {
		return nil
	}
	return p.nc.FlushWithContext(ctx)
}

func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.nc != nil {
			p.nc.Close()
		}
	})
	return nil
}
