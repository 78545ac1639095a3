// Package kafka publishes through a synchronous sarama producer.
package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// DefaultClientID identifies the producer to the brokers when none is configured.
const DefaultClientID = "pulseflow"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a synchronous Kafka publisher: Publish returns once the
// partition leader acknowledged the message.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	saramaCfg, err := SaramaConfig(cfg)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               cfg.GetKafkaBrokers(),
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaCfg,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:    publisher,
		Capabilities: Capabilities().WithMaxMessageSize(int64(saramaCfg.Producer.MaxMessageBytes)),
	}, nil
}

// SaramaConfig tunes the watermill sync producer defaults from cfg.
func SaramaConfig(cfg transport.Config) (*sarama.Config, error) {
	sc := kafka.DefaultSaramaSyncPublisherConfig()
	sc.ClientID = DefaultClientID
	if id := cfg.GetKafkaClientID(); id != "" {
		sc.ClientID = id
	}
	if n := cfg.GetKafkaMaxMessageBytes(); n > 0 {
		sc.Producer.MaxMessageBytes = n
	}
	codec, err := ParseCompression(cfg.GetKafkaCompression())
	if err != nil {
		return nil, err
	}
	sc.Producer.Compression = codec
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	return sc, nil
}

// ParseCompression maps a config value to a sarama codec. Empty means none.
func ParseCompression(name string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("kafka: unknown compression %q", name)
	}
}

// Capabilities returns the default capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
