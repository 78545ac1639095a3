package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/internal/runtime/config"
	"github.com/drblury/pulseflow/transport"
)

type mockPublisher struct{}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error                                             { return nil }

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "kafka", caps.Name)
	assert.True(t, caps.SupportsAck)
	assert.Equal(t, int64(1048576), caps.MaxMessageSize)
}

func TestBuild(t *testing.T) {
	t.Run("tunes the sync producer", func(t *testing.T) {
		original := PublisherFactory
		defer func() { PublisherFactory = original }()

		pub := &mockPublisher{}
		PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
			require.NotNil(t, cfg.OverwriteSaramaConfig)
			assert.Equal(t, "beamline", cfg.OverwriteSaramaConfig.ClientID)
			assert.Equal(t, 8<<20, cfg.OverwriteSaramaConfig.Producer.MaxMessageBytes)
			assert.Equal(t, sarama.CompressionZSTD, cfg.OverwriteSaramaConfig.Producer.Compression)
			assert.True(t, cfg.OverwriteSaramaConfig.Producer.Return.Successes)
			return pub, nil
		}

		tr, err := Build(context.Background(), &config.Config{
			KafkaBrokers:         []string{"localhost:9092"},
			KafkaClientID:        "beamline",
			KafkaMaxMessageBytes: 8 << 20,
			KafkaCompression:     "zstd",
		}, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Same(t, pub, tr.Publisher)
		assert.Nil(t, tr.Subscriber)
		assert.Equal(t, int64(8<<20), tr.Capabilities.MaxMessageSize)
	})

	t.Run("defaults", func(t *testing.T) {
		sc, err := SaramaConfig(&config.Config{})
		require.NoError(t, err)
		assert.Equal(t, DefaultClientID, sc.ClientID)
		assert.Equal(t, sarama.CompressionNone, sc.Producer.Compression)
		assert.Equal(t, sarama.WaitForLocal, sc.Producer.RequiredAcks)
	})

	t.Run("unknown compression", func(t *testing.T) {
		_, err := Build(context.Background(), &config.Config{KafkaCompression: "brotli"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "unknown compression")
	})

	t.Run("publisher factory error", func(t *testing.T) {
		original := PublisherFactory
		defer func() { PublisherFactory = original }()

		PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &config.Config{KafkaBrokers: []string{"localhost:9092"}}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})
}

func TestParseCompression(t *testing.T) {
	tests := map[string]sarama.CompressionCodec{
		"":       sarama.CompressionNone,
		"none":   sarama.CompressionNone,
		"GZIP":   sarama.CompressionGZIP,
		"snappy": sarama.CompressionSnappy,
		"lz4":    sarama.CompressionLZ4,
		"zstd":   sarama.CompressionZSTD,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseCompression(name)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}
