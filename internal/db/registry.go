package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	fqerrors "github.com/tordrt/fedquery/internal/errors"
)

// Registry maps database aliases to open adapters. It is populated at
// startup and read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// OpenRegistry opens one adapter per backend. On failure every adapter
// opened so far is closed.
func OpenRegistry(ctx context.Context, backends map[string]Backend) (*Registry, error) {
	r := NewRegistry()

	aliases := make([]string, 0, len(backends))
	for alias := range backends {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		a, err := Open(ctx, backends[alias])
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("failed to open database %q: %w", alias, err)
		}
		if err := r.Register(alias, a); err != nil {
			_ = a.Close()
			_ = r.Close()
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter under alias. Aliases are unique.
func (r *Registry) Register(alias string, a Adapter) error {
	if alias == "" {
		return fmt.Errorf("database alias is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[alias]; exists {
		return fmt.Errorf("database alias %q is already registered", alias)
	}
	r.adapters[alias] = a
	return nil
}

// Get returns the adapter for alias or an UnknownAlias error.
func (r *Registry) Get(alias string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[alias]
	r.mu.RUnlock()

	if !ok {
		return nil, fqerrors.UnknownAlias(alias, r.Aliases())
	}
	return a, nil
}

// Aliases returns the registered aliases in sorted order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases := make([]string, 0, len(r.adapters))
	for alias := range r.adapters {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Close closes every adapter and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for alias, a := range r.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", alias, err))
		}
	}
	r.adapters = make(map[string]Adapter)
	return errors.Join(errs...)
}
