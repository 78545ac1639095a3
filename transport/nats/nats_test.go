package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
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
	caps := Capabilities()
	assert.Equal(t, "nats", caps.Name)
	assert.False(t, caps.SupportsAck)
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *config.Config
		factoryErr error
		wantErr    string
	}{
		{"missing url", &config.Config{}, nil, "URL is required"},
		{"factory error", &config.Config{NATSURL: "nats://localhost:4222"}, errors.New("no servers available"), "no servers available"},
		{"ok", &config.Config{NATSURL: "nats://localhost:4222"}, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := PublisherFactory
			defer func() { PublisherFactory = original }()

			pub := &mockPublisher{}
			PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
				assert.Equal(t, "nats://localhost:4222", cfg.URL)
				assert.True(t, cfg.JetStream.Disabled)
				assert.Len(t, cfg.NatsOptions, 2)
				if tt.factoryErr != nil {
					return nil, tt.factoryErr
				}
				return pub, nil
			}

			tr, err := Build(context.Background(), tt.cfg, watermill.NopLogger{})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Same(t, pub, tr.Publisher)
			assert.Equal(t, transport.NATSCapabilities, tr.Capabilities)
		})
	}
}
