// Package artifact implements the artifact bus (component E): per-instance
// named value publication, visible to consumers only once the publishing
// instance reaches a terminal Succeeded state, concatenated across direct
// prerequisites in DAG-topological order.
//
// The concurrent map backing Bus is grounded on the teacher's deleted
// pkg/cache's sync.Map-keyed-by-identity technique (see DESIGN.md); the
// transitive lookup through synthetic group steps resolves spec.md §9's
// Open Question as "transparent" (option a).
package artifact

import (
	"sync"
)

// prereqLister is the minimal view of the graph the bus needs to resolve
// "direct prerequisites, in topological order" and to recognize group
// instances, satisfied by *graph.Graph without importing it (avoiding an
// import cycle between graph and artifact).
type prereqLister interface {
	Prerequisites(fqName string) []string
	IsGroup(fqName string) bool
}

// Bus holds every instance's published artifacts, keyed by (instance, name).
type Bus struct {
	graph prereqLister

	mu        sync.Mutex
	published map[string]map[string][]interface{}
	succeeded map[string]bool
}

// New returns a Bus resolving prerequisite lookups against graph.
func New(graph prereqLister) *Bus {
	return &Bus{
		graph:     graph,
		published: make(map[string]map[string][]interface{}),
		succeeded: make(map[string]bool),
	}
}

// Publish records value under name for the given instance. Values published
// before the instance is marked Succeeded are still recorded but remain
// invisible to Get until MarkSucceeded is called.
func (b *Bus) Publish(fqInstanceName, name string, value interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byName, ok := b.published[fqInstanceName]
	if !ok {
		byName = make(map[string][]interface{})
		b.published[fqInstanceName] = byName
	}
	byName[name] = append(byName[name], value)
}

// MarkSucceeded makes fqInstanceName's published artifacts visible to
// consumers. The scheduler calls this exactly once, when the instance
// transitions into the Succeeded terminal state.
func (b *Bus) MarkSucceeded(fqInstanceName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.succeeded[fqInstanceName] = true
}

// Get returns the concatenation, in DAG-topological order, of every direct
// prerequisite's published values under name. A prerequisite that is a
// synthetic group is expanded transparently to its own prerequisites rather
// than contributing values directly, since groups never publish artifacts
// of their own.
func (b *Bus) Get(consumerFQName, name string) []interface{} {
	var out []interface{}
	seen := make(map[string]bool)
	b.collect(consumerFQName, name, seen, &out)
	return out
}

func (b *Bus) collect(fqName, name string, seen map[string]bool, out *[]interface{}) {
	for _, prereq := range b.graph.Prerequisites(fqName) {
		if seen[prereq] {
			continue
		}
		seen[prereq] = true

		if b.graph.IsGroup(prereq) {
			b.collect(prereq, name, seen, out)
			continue
		}

		b.mu.Lock()
		ready := b.succeeded[prereq]
		values := append([]interface{}(nil), b.published[prereq][name]...)
		b.mu.Unlock()

		if ready {
			*out = append(*out, values...)
		}
	}
}
