// Package module keeps the encounter definitions known to the tracker and
// loads them from YAML files.
package module

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bossmod/tracker/internal/statemachine"
)

// ErrDuplicateEncounter is returned when a type id already has a definition.
var ErrDuplicateEncounter = errors.New("encounter already registered")

// Registry maps the type id of an encounter's primary actor to its
// definition. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[uint32]*statemachine.Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[uint32]*statemachine.Definition)}
}

// Register adds a definition keyed by its OID.
func (r *Registry) Register(def *statemachine.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.defs[def.OID()]; ok {
		return fmt.Errorf("register %q (oid 0x%X, held by %q): %w", def.Name(), def.OID(), existing.Name(), ErrDuplicateEncounter)
	}
	r.defs[def.OID()] = def
	return nil
}

// Replace adds or overwrites a definition. Cursors already running keep
// the definition they were created with.
func (r *Registry) Replace(def *statemachine.Definition) {
	r.mu.Lock()
	r.defs[def.OID()] = def
	r.mu.Unlock()
}

// Lookup returns the definition for an OID.
func (r *Registry) Lookup(oid uint32) (*statemachine.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[oid]
	return def, ok
}

// OIDs returns every registered OID in ascending order.
func (r *Registry) OIDs() []uint32 {
	r.mu.RLock()
	out := make([]uint32, 0, len(r.defs))
	for oid := range r.defs {
		out = append(out, oid)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
