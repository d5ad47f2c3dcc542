package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type SinkFactory func(ctx context.Context, logger *zap.Logger, input any) (Sink, error)

// TypedSinkFactory is a strongly-typed sink factory.
// T is the concrete spec type (e.g. *v1.S3SinkSpec).
type TypedSinkFactory[T any] func(ctx context.Context, logger *zap.Logger, spec T) (Sink, error)

// NewSinkFactory wraps a typed sink factory into a generic SinkFactory.
// A spec of the wrong type is reported instead of panicking.
func NewSinkFactory[T any](kind string, f TypedSinkFactory[T]) SinkFactory {
	return func(ctx context.Context, logger *zap.Logger, input any) (Sink, error) {
		spec, ok := input.(T)
		if !ok {
			return nil, fmt.Errorf("invalid sink spec for kind %q: %T", kind, input)
		}
		return f(ctx, logger, spec)
	}
}

type Registry struct {
	mu     sync.RWMutex
	sinks  map[string]SinkFactory
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sinks:  make(map[string]SinkFactory),
		logger: logger,
	}
}

func (r *Registry) RegisterSink(kind string, factory SinkFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[kind] = factory
}

func (r *Registry) CreateSink(ctx context.Context, kind string, spec any) (Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[kind]
	available := r.availableSinks()
	r.mu.RUnlock()
	if !ok {
		if len(available) == 0 {
			return nil, fmt.Errorf("unsupported sink type %q: no sinks registered", kind)
		}
		return nil, fmt.Errorf("unsupported sink type %q (available: %v)", kind, available)
	}
	return factory(ctx, r.logger.Named(kind), spec)
}

func (r *Registry) AvailableSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableSinks()
}

func (r *Registry) availableSinks() []string {
	kinds := lo.Keys(r.sinks)
	slices.Sort(kinds)
	return kinds
}
