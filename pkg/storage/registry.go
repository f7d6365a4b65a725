package storage

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/logger"
)

// Opener opens a Store for params. Openers must verify connectivity before
// returning.
type Opener func(ctx context.Context, params Params) (Store, error)

// Registry maps driver names to Openers.
type Registry struct {
	openers map[string]Opener
	mu      sync.RWMutex
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Register adds a driver. Registering a name twice is an error.
func (r *Registry) Register(name string, opener Opener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.openers[name]; exists {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "storage driver already registered").
			WithDetail("driver", name)
	}
	r.openers[name] = opener
	return nil
}

// Open opens a Store with the driver named by params.Driver.
func (r *Registry) Open(ctx context.Context, params Params) (Store, error) {
	r.mu.RLock()
	opener, exists := r.openers[params.Driver]
	r.mu.RUnlock()

	if !exists {
		return nil, cdmerrors.New(cdmerrors.ErrorTypeConfig, "unknown storage driver").
			WithDetail("driver", params.Driver)
	}
	return opener(ctx, params)
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.openers[name]
	return exists
}

// CanConnect opens and pings a Store for params and closes it again. A
// failure is logged unless silent is set.
func (r *Registry) CanConnect(ctx context.Context, params Params, silent bool) bool {
	store, err := r.Open(ctx, params)
	if err == nil {
		err = store.Ping(ctx)
		_ = store.Close()
	}
	if err != nil {
		if !silent {
			logger.Error("cannot connect to database",
				zap.String("driver", params.Driver),
				zap.String("host", params.Host),
				zap.String("database", params.Database),
				zap.Error(err))
		}
		return false
	}
	return true
}

// Register adds a driver to the global registry. It panics on duplicates,
// as it is meant to be called from init.
func Register(name string, opener Opener) {
	if err := globalRegistry.Register(name, opener); err != nil {
		panic(err)
	}
}

// Open opens a Store from the global registry.
func Open(ctx context.Context, params Params) (Store, error) {
	return globalRegistry.Open(ctx, params)
}

// Drivers lists the drivers of the global registry.
func Drivers() []string {
	return globalRegistry.Drivers()
}

// CanConnect probes params through the global registry.
func CanConnect(ctx context.Context, params Params, silent bool) bool {
	return globalRegistry.CanConnect(ctx, params, silent)
}
