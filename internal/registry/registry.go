// Package registry is the binding registry backing pipeline dispatch.
//
// Filters and servlets are configured by opaque binding keys; the registry
// maps each key to a provider and a scope. The pipeline resolves instances
// through the registry exactly once at init time and verifies that dispatch
// components are singleton-scoped.
package registry

import (
	"fmt"
	"sync"

	"github.com/example/dispatch/internal/errors"
)

// Scope controls how often a binding's provider runs.
type Scope int

const (
	// Singleton bindings produce exactly one instance per registry lifetime.
	Singleton Scope = iota
	// Prototype bindings produce a fresh instance per Resolve call.
	Prototype
)

// String returns the scope name used in config files and error messages.
func (s Scope) String() string {
	switch s {
	case Singleton:
		return "singleton"
	case Prototype:
		return "prototype"
	default:
		return "unknown"
	}
}

// ParseScope parses a scope name from configuration.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "singleton":
		return Singleton, nil
	case "prototype":
		return Prototype, nil
	default:
		return Singleton, fmt.Errorf("registry: unknown scope %q", s)
	}
}

// Provider produces an instance for a binding.
type Provider func() (any, error)

type binding struct {
	scope    Scope
	provider Provider

	once     sync.Once
	instance any
	err      error
}

// Registry holds bindings keyed by name. Provide calls happen at
// configuration time; Resolve calls are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*binding
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{bindings: make(map[string]*binding)}
}

// Provide registers a binding. Re-binding an existing key is a
// configuration error.
func (r *Registry) Provide(key string, scope Scope, provider Provider) error {
	if provider == nil {
		return errors.NewConfigError("binding", key, "nil provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[key]; exists {
		return errors.NewConfigError("binding", key, "duplicate binding")
	}
	r.bindings[key] = &binding{scope: scope, provider: provider}
	return nil
}

// ProvideInstance registers an existing value as a singleton binding.
func (r *Registry) ProvideInstance(key string, instance any) error {
	return r.Provide(key, Singleton, func() (any, error) { return instance, nil })
}

// Scope returns the scope of a binding.
func (r *Registry) Scope(key string) (Scope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[key]
	if !ok {
		return Singleton, false
	}
	return b.scope, true
}

// Resolve produces the instance for a key. Singleton providers run at most
// once; their result (or error) is memoized. A provider panic is converted
// into an error rather than unwinding the caller.
func (r *Registry) Resolve(key string) (any, error) {
	r.mu.RLock()
	b, ok := r.bindings[key]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewConfigError("binding", key, "no such binding")
	}

	if b.scope == Prototype {
		return runProvider(key, b.provider)
	}

	b.once.Do(func() {
		b.instance, b.err = runProvider(key, b.provider)
	})
	return b.instance, b.err
}

// ResolveSingleton resolves a key and fails with a configuration error
// naming the key when the binding is not singleton-scoped. Pipeline
// definitions hold per-instance dispatch state, so they require it.
func (r *Registry) ResolveSingleton(key string) (any, error) {
	scope, ok := r.Scope(key)
	if !ok {
		return nil, errors.NewConfigError("binding", key, "no such binding")
	}
	if scope != Singleton {
		return nil, errors.NewConfigError("binding", key,
			fmt.Sprintf("bound as %s, must be singleton", scope))
	}
	return r.Resolve(key)
}

// Keys returns the registered binding keys, for diagnostics.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.bindings))
	for k := range r.bindings {
		keys = append(keys, k)
	}
	return keys
}

func runProvider(key string, p Provider) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v = nil
			err = errors.NewConfigError("binding", key, fmt.Sprintf("provider panic: %v", rec))
		}
	}()
	return p()
}
