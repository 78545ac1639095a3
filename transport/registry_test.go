package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/internal/runtime/config"
	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
)

type mockPublisher struct{}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error                                             { return nil }

func staticBuilder(caps Capabilities) Builder {
	return func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{Publisher: &mockPublisher{}, Capabilities: caps}, nil
	}
}

func TestConfigImplementsInterface(t *testing.T) {
	var cfg Config = &config.Config{PubSubSystem: "test"}
	assert.Equal(t, "test", cfg.GetPubSubSystem())
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())
	assert.False(t, reg.Has("kafka"))
}

func TestRegistry_RegisterIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Test-Transport", staticBuilder(Capabilities{}))

	assert.True(t, reg.Has("test-transport"))
	assert.True(t, reg.Has("TEST-TRANSPORT"))
	assert.Equal(t, []string{"test-transport"}, reg.Names())
}

func TestRegistry_RegisterWithCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("test-transport", staticBuilder(Capabilities{}), Capabilities{
		SupportsAck:    true,
		MaxMessageSize: 512,
	})

	caps := reg.GetCapabilities("test-transport")
	assert.Equal(t, "test-transport", caps.Name, "name defaults to the registered key")
	assert.True(t, caps.SupportsAck)
	assert.Equal(t, int64(512), caps.MaxMessageSize)
}

func TestRegistry_GetCapabilities_Unknown(t *testing.T) {
	caps := NewRegistry().GetCapabilities("unknown")
	assert.Equal(t, Capabilities{Name: "unknown"}, caps)
}

func TestRegistry_Build(t *testing.T) {
	ctx := context.Background()

	t.Run("fills registered capabilities", func(t *testing.T) {
		reg := NewRegistry()
		reg.RegisterWithCapabilities("test", staticBuilder(Capabilities{}), Capabilities{MaxMessageSize: 64})

		tr, err := reg.Build(ctx, &config.Config{PubSubSystem: "Test"}, nil)
		require.NoError(t, err)
		assert.NotNil(t, tr.Publisher)
		assert.Equal(t, int64(64), tr.Capabilities.MaxMessageSize)
	})

	t.Run("keeps builder capabilities", func(t *testing.T) {
		reg := NewRegistry()
		reg.RegisterWithCapabilities("test", staticBuilder(Capabilities{Name: "test", MaxMessageSize: 4096}), Capabilities{MaxMessageSize: 64})

		tr, err := reg.Build(ctx, &config.Config{PubSubSystem: "test"}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Equal(t, int64(4096), tr.Capabilities.MaxMessageSize)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewRegistry().Build(ctx, nil, nil)
		assert.ErrorIs(t, err, pferrors.ErrConfigRequired)
	})

	t.Run("unknown transport", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register("kafka", staticBuilder(Capabilities{}))
		_, err := reg.Build(ctx, &config.Config{PubSubSystem: "carrier-pigeon"}, nil)
		assert.ErrorIs(t, err, ErrUnknownTransport)
		assert.Contains(t, err.Error(), "[kafka]")
	})

	t.Run("builder error is wrapped", func(t *testing.T) {
		boom := errors.New("dial failed")
		reg := NewRegistry()
		reg.Register("test", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
			return Transport{}, boom
		})
		_, err := reg.Build(ctx, &config.Config{PubSubSystem: "test"}, nil)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "build test transport")
	})

	t.Run("builder without publisher", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register("test", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
			return Transport{}, nil
		})
		_, err := reg.Build(ctx, &config.Config{PubSubSystem: "test"}, nil)
		assert.ErrorIs(t, err, pferrors.ErrPublisherRequired)
	})

	t.Run("logger defaults to nop", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register("test", func(_ context.Context, _ Config, logger watermill.LoggerAdapter) (Transport, error) {
			assert.NotNil(t, logger)
			return Transport{Publisher: &mockPublisher{}}, nil
		})
		_, err := reg.Build(ctx, &config.Config{PubSubSystem: "test"}, nil)
		require.NoError(t, err)
	})
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.RegisterWithCapabilities("test", staticBuilder(Capabilities{}), Capabilities{})
		}()
		go func() {
			defer wg.Done()
			_ = reg.Has("test")
			_ = reg.GetCapabilities("test")
			_ = reg.Names()
		}()
	}
	wg.Wait()
	assert.True(t, reg.Has("test"))
}

func TestDefaultRegistryHelpers(t *testing.T) {
	original := DefaultRegistry
	defer func() { DefaultRegistry = original }()
	DefaultRegistry = NewRegistry()

	RegisterWithCapabilities("test", staticBuilder(Capabilities{}), Capabilities{SupportsOffsets: true})
	Register("other", staticBuilder(Capabilities{}))

	assert.True(t, GetCapabilities("test").SupportsOffsets)
	tr, err := Build(context.Background(), &config.Config{PubSubSystem: "other"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "other", tr.Capabilities.Name)
}
