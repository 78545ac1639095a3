package transport

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
)

// ErrUnknownTransport is returned by Build for unregistered pubsub systems.
var ErrUnknownTransport = errors.New("pulseflow: unknown transport")

// Registry maps pubsub system names, matched case-insensitively, to a
// builder and the capabilities the sink should assume for it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	build Builder
	caps  Capabilities
}

// DefaultRegistry holds every transport linked into the binary. Sub-packages
// add themselves from init.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds builder under name with the capabilities of a plain
// publisher: no offsets, no flush.
func (r *Registry) Register(name string, builder Builder) {
	r.RegisterWithCapabilities(name, builder, Capabilities{})
}

// RegisterWithCapabilities adds builder under name. A later registration of
// the same name replaces the earlier one.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	key := strings.ToLower(name)
	if caps.Name == "" {
		caps.Name = key
	}
	r.mu.Lock()
	r.entries[key] = entry{build: builder, caps: caps}
	r.mu.Unlock()
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(name)]
	return e, ok
}

// GetCapabilities reports what name supports. Unknown names get a zero value
// carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	if e, ok := r.lookup(name); ok {
		return e.caps
	}
	return Capabilities{Name: name}
}

// Build runs the builder registered for cfg's pubsub system. A transport
// returned without capabilities gets the registered ones.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, pferrors.ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := strings.ToLower(cfg.GetPubSubSystem())
	e, ok := r.lookup(name)
	if !ok {
		return Transport{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}

	t, err := e.build(ctx, cfg, logger)
	switch {
	case err != nil:
		return Transport{}, fmt.Errorf("build %s transport: %w", name, err)
	case t.Publisher == nil:
		return Transport{}, fmt.Errorf("build %s transport: %w", name, pferrors.ErrPublisherRequired)
	}
	if t.Capabilities.Name == "" {
		t.Capabilities = e.caps
	}
	return t, nil
}

// Names lists the registered transports in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Register adds a transport builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a transport builder and its capabilities to the default registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
