// Package registry interns step definitions for one pipeline invocation and
// enforces name uniqueness. It is component A of the pipeline engine.
package registry

import (
	"sync"

	"github.com/benschubert/wast/pkg/stepdef"
	"github.com/benschubert/wast/pkg/taskerr"
)

// Registry holds every StepDefinition registered during configuration-script
// evaluation. It is populated during that evaluation, then frozen (by
// convention — nothing currently enforces a hard freeze beyond "the loader
// stops calling Register once the script returns") before scheduling starts.
type Registry struct {
	mu    sync.Mutex
	order []string
	byName map[string]*stepdef.StepDefinition
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*stepdef.StepDefinition)}
}

// Register interns definition. It fails with DuplicateStep if
// definition.Name is already present. No requirement resolution is
// performed here — that happens at graph-build time so forward references
// within the configuration script work.
func (r *Registry) Register(definition *stepdef.StepDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[definition.Name]; exists {
		return taskerr.DuplicateStep(definition.Name)
	}
	r.byName[definition.Name] = definition
	r.order = append(r.order, definition.Name)
	return nil
}

// RegisterGroup registers a synthetic step with an empty callable: it
// succeeds iff all of requires succeed, never runs a subprocess, and skips
// environment setup. It is otherwise treated identically to a real step by
// the scheduler.
func (r *Registry) RegisterGroup(name string, requires []string, runByDefault bool) error {
	return r.Register(&stepdef.StepDefinition{
		Name:         name,
		Requires:     requires,
		RunByDefault: runByDefault,
		IsGroup:      true,
	})
}

// Lookup returns the definition named name, or nil if absent.
func (r *Registry) Lookup(name string) *stepdef.StepDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byName[name]
}

// All returns every registered definition in insertion order. Scheduling
// order is determined solely by the DAG, never by this ordering — it exists
// only for listing.
func (r *Registry) All() []*stepdef.StepDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*stepdef.StepDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
