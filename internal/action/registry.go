package action

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Persister stores the action sets after every change. The config package
// provides the file-backed implementation.
type Persister interface {
	SaveActionSets(active string, sets map[string]Set) error
}

// Registry owns the named action sets and which one is active.
// It is safe for concurrent use; the resolver and settings edits share it.
type Registry struct {
	mu     sync.Mutex
	sets   map[string]Set
	active string
	store  Persister
}

// NewRegistry builds a registry from loaded settings. Every set is
// normalised and active must name one of them. store may be nil.
func NewRegistry(sets map[string]Set, active string, store Persister) (*Registry, error) {
	r := &Registry{
		sets:  make(map[string]Set, len(sets)),
		store: store,
	}
	for name, s := range sets {
		if name == "" {
			return nil, fmt.Errorf("action: empty action set name")
		}
		n, err := Normalize(s)
		if err != nil {
			return nil, fmt.Errorf("action: set %q: %w", name, err)
		}
		r.sets[name] = n
	}
	if _, ok := r.sets[active]; !ok {
		return nil, fmt.Errorf("action: active %w: %q", ErrSetNotFound, active)
	}
	r.active = active
	return r, nil
}

// Get returns a copy of the named set.
func (r *Registry) Get(name string) (Set, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sets[name]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Active returns the active set name and a copy of its table.
func (r *Registry) Active() (string, Set) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.sets[r.active].Clone()
}

// Names returns the set names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetActive switches the active set. An unknown name leaves the active set
// unchanged and returns ErrSetNotFound.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	if _, ok := r.sets[name]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("action: %w: %q", ErrSetNotFound, name)
	}
	if r.active == name {
		r.mu.Unlock()
		return nil
	}
	r.active = name
	active, snapshot := r.snapshot()
	r.mu.Unlock()

	return r.persist(active, snapshot)
}

// Upsert installs or replaces a set. Missing sides are filled with no-op
// actions; unknown side keys are rejected.
func (r *Registry) Upsert(name string, s Set) error {
	if name == "" {
		return fmt.Errorf("action: empty action set name")
	}
	n, err := Normalize(s)
	if err != nil {
		return fmt.Errorf("action: set %q: %w", name, err)
	}

	r.mu.Lock()
	r.sets[name] = n
	active, snapshot := r.snapshot()
	r.mu.Unlock()

	return r.persist(active, snapshot)
}

// Delete removes a set. The active set cannot be removed.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	if _, ok := r.sets[name]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("action: %w: %q", ErrSetNotFound, name)
	}
	if name == r.active {
		r.mu.Unlock()
		return fmt.Errorf("action: delete %q: %w", name, ErrSetActive)
	}
	delete(r.sets, name)
	active, snapshot := r.snapshot()
	r.mu.Unlock()

	return r.persist(active, snapshot)
}

// snapshot copies the current state for persistence (caller must hold mu).
func (r *Registry) snapshot() (string, map[string]Set) {
	out := make(map[string]Set, len(r.sets))
	for name, s := range r.sets {
		out[name] = s.Clone()
	}
	return r.active, out
}

func (r *Registry) persist(active string, sets map[string]Set) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveActionSets(active, sets); err != nil {
		slog.Error("[ACTION] failed to persist action sets", "error", err)
		return fmt.Errorf("action: persist: %w", err)
	}
	return nil
}
