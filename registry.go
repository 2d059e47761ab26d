package rxdb

import "sync"

// InstanceRegistry guards against opening the same storage twice in
// one process. It is process-scoped and purely in-memory: it cannot
// see databases opened by other processes, which is what the storage
// identity bootstrap and leader election exist for.
//
// The registry is an explicit object rather than package state so
// tests can run against a private one. Open uses DefaultRegistry when
// the config names none.
type InstanceRegistry struct {
	mu      sync.Mutex
	open    map[string]map[string]int // name → adapter → open count
	handles int
}

// DefaultRegistry is the registry Open falls back to.
var DefaultRegistry = NewInstanceRegistry()

// NewInstanceRegistry creates an empty registry.
func NewInstanceRegistry() *InstanceRegistry {
	return &InstanceRegistry{open: make(map[string]map[string]int)}
}

// Register records the (name, adapter) pair. Without allowDuplicate a
// second registration of a live pair fails with ErrDuplicateInstance.
func (r *InstanceRegistry) Register(name, adapter string, allowDuplicate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	adapters := r.open[name]
	if adapters == nil {
		adapters = make(map[string]int)
		r.open[name] = adapters
	}
	if adapters[adapter] > 0 && !allowDuplicate {
		return ErrDuplicateInstance.WithFields(map[string]any{
			"database": name,
			"adapter":  adapter,
		})
	}
	adapters[adapter]++
	return nil
}

// Unregister removes one registration of the (name, adapter) pair.
// Unknown pairs are ignored.
func (r *InstanceRegistry) Unregister(name, adapter string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	adapters := r.open[name]
	if adapters == nil {
		return
	}
	if adapters[adapter] <= 1 {
		delete(adapters, adapter)
	} else {
		adapters[adapter]--
	}
	if len(adapters) == 0 {
		delete(r.open, name)
	}
}

// HandleCreated bumps the live-handle counter and returns the new
// count.
func (r *InstanceRegistry) HandleCreated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles++
	return r.handles
}

// HandleDestroyed decrements the live-handle counter and returns the
// new count.
func (r *InstanceRegistry) HandleDestroyed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles > 0 {
		r.handles--
	}
	return r.handles
}

// LiveHandles returns the number of live handles in this process.
func (r *InstanceRegistry) LiveHandles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles
}
