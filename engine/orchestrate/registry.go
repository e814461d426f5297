package orchestrate

import "sync"

// Registry is the in-memory flow store: the only shared mutable state in
// this engine. It is dependency-injected so multiple orchestration
// contexts can coexist and be tested in isolation. A single registry-wide
// lock serializes access; flow volume is low by design.
type Registry struct {
	mu    sync.Mutex
	flows map[string]*Flow
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]*Flow)}
}

// put registers a flow, replacing any previous entry with the same id.
func (r *Registry) put(f *Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[f.ID] = f
}

// get returns the live flow. Callers outside this package never see it;
// the engine hands out copies.
func (r *Registry) get(id string) (*Flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[id]
	return f, ok
}

// delete removes a flow unconditionally; absent ids are a no-op.
func (r *Registry) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, id)
}

// ids returns all registered flow ids.
func (r *Registry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.flows))
	for id := range r.flows {
		out = append(out, id)
	}
	return out
}

// withLock runs f while holding the registry lock. Step-list reads and
// mutations go through here so execution observes a consistent live list.
func (r *Registry) withLock(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f()
}
