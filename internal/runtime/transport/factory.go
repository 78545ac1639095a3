// Package transport is the seam through which the Streamer obtains a broker
// publisher. Tests swap the Factory; production code uses DefaultFactory.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/pulseflow/internal/runtime/config"
	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/transport"

	_ "github.com/drblury/pulseflow/transport/transports"
)

// Factory builds the transport named by conf.PubSubSystem.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory builds from transport.DefaultRegistry, where every bundled
// broker is registered.
func DefaultFactory() Factory {
	return registryFactory{registry: transport.DefaultRegistry}
}

// RegistryFactory builds from a custom registry.
func RegistryFactory(r *transport.Registry) Factory {
	if r == nil {
		r = transport.DefaultRegistry
	}
	return registryFactory{registry: r}
}

type registryFactory struct {
	registry *transport.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if conf == nil {
		return transport.Transport{}, pferrors.ErrConfigRequired
	}
	return f.registry.Build(ctx, conf, logger)
}
