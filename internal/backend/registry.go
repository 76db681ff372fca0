package backend

import (
	"fmt"
	"sync"
)

var (
	mu       sync.RWMutex
	backends = make(map[string]Backend)
)

// preference orders backend selection when the caller does not name one.
var preference = []string{"wgpu", "software"}

// Register adds a backend to the global registry. Backends register from
// init so a blank import is enough to make one selectable.
func Register(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	backends[b.Name()] = b
}

// Get returns the named backend if it is registered and can run here.
func Get(name string) (Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrBackendUnavailable, name)
	}
	if !b.Available() {
		return nil, fmt.Errorf("%w: %q cannot run on this host", ErrBackendUnavailable, name)
	}
	return b, nil
}

// Default returns the most capable available backend, trying GPU before the
// software fallback.
func Default() (Backend, error) {
	mu.RLock()
	defer mu.RUnlock()
	for _, name := range preference {
		if b, ok := backends[name]; ok && b.Available() {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no backend available", ErrBackendUnavailable)
}
