package carrier

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an adapter from a tenant's credentials.
// It validates the credentials and must not perform network I/O.
type Constructor func(creds Credentials) (Adapter, error)

// Registry resolves carrier codes to adapters.
// A code registered with a nil constructor is known but not implemented.
type Registry struct {
	constructors map[Code]Constructor
	mu           sync.RWMutex
}

// NewRegistry creates a new, empty carrier registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[Code]Constructor),
	}
}

// Register adds a constructor for a carrier code. Pass nil for carriers without an adapter.
func (r *Registry) Register(code Code, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[code] = ctor
}

// Resolve constructs a fresh adapter for the carrier.
func (r *Registry) Resolve(code Code, creds Credentials) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[code]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCarrier, code)
	}
	if ctor == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, code)
	}

	adapter, err := ctor(creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAdapterConstruction, code, err)
	}
	return adapter, nil
}

// Known reports whether the code is registered at all.
func (r *Registry) Known(code Code) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[code]
	return ok
}

// Implemented reports whether the code has a working adapter.
func (r *Registry) Implemented(code Code) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.constructors[code] != nil
}

// Codes returns the registered codes in sorted order.
func (r *Registry) Codes() []Code {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]Code, 0, len(r.constructors))
	for code := range r.constructors {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Count returns the number of registered codes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.constructors)
}
