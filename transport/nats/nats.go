// Package nats publishes to core NATS subjects named after the topics.
package nats

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// ConnectionName is reported to the server for monitoring.
const ConnectionName = "pulseflow"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a core NATS publisher. Core NATS does not acknowledge, so an
// accepted publish only means the client buffered the message.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, fmt.Errorf("nats: URL is required")
	}

	publisher, err := PublisherFactory(PublisherConfig(url), logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:    publisher,
		Capabilities: Capabilities(),
	}, nil
}

// PublisherConfig is the watermill config Build uses.
func PublisherConfig(url string) nats.PublisherConfig {
	return nats.PublisherConfig{
		URL:       url,
		Marshaler: &nats.NATSMarshaler{},
		NatsOptions: []natsgo.Option{
			natsgo.Name(ConnectionName),
			natsgo.RetryOnFailedConnect(false),
		},
		JetStream: nats.JetStreamConfig{Disabled: true},
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
