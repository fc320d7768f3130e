// Package graph builds the dependency DAG from StepDefinition.Requires
// edges, detects cycles, and resolves the `--step`/`--only`/`--except`
// selection algebra (component C).
package graph

import (
	"github.com/benschubert/wast/pkg/param"
	"github.com/benschubert/wast/pkg/stepdef"
	"github.com/benschubert/wast/pkg/taskerr"
)

// Graph is the expanded instance DAG for one pipeline invocation. Edges run
// "instance -> direct prerequisite instance", one edge per (B, A) pair
// where A is named in B's definition's Requires.
type Graph struct {
	instances map[string]*stepdef.StepInstance
	byDefName map[string][]*stepdef.StepInstance
	edges     map[string][]string
	// instanceOrder is Expand's output order across all definitions, used
	// only to give deterministic default iteration (selection order never
	// depends on it beyond determinism).
	instanceOrder []string
	// defOrder is the registration order of definitions, used to compute
	// the run_by_default base set deterministically.
	defOrder []string
	defs     map[string]*stepdef.StepDefinition
}

// Build expands every definition's parameter layers into instances, wires
// up the requires edges across those instances, validates that every
// requires name resolves to a registered definition, and runs cycle
// detection. defs must be in registration order.
func Build(defs []*stepdef.StepDefinition) (*Graph, error) {
	g := &Graph{
		instances: make(map[string]*stepdef.StepInstance),
		byDefName: make(map[string][]*stepdef.StepInstance),
		edges:     make(map[string][]string),
		defs:      make(map[string]*stepdef.StepDefinition),
	}

	for _, def := range defs {
		g.defOrder = append(g.defOrder, def.Name)
		g.defs[def.Name] = def

		instances, err := param.Expand(def)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			fq := inst.FQName()
			g.instances[fq] = inst
			g.instanceOrder = append(g.instanceOrder, fq)
			g.byDefName[def.Name] = append(g.byDefName[def.Name], inst)
		}
	}

	for _, def := range defs {
		for _, req := range def.Requires {
			if _, ok := g.byDefName[req]; !ok {
				return nil, taskerr.UnknownSteps([]string{req})
			}
		}
	}

	for _, def := range defs {
		for _, inst := range g.byDefName[def.Name] {
			for _, req := range def.Requires {
				for _, prereq := range g.byDefName[req] {
					g.edges[inst.FQName()] = append(g.edges[inst.FQName()], prereq.FQName())
				}
			}
		}
	}

	if cycle := g.detectCycle(); cycle != nil {
		return nil, taskerr.CyclicStepDependencies(cycle)
	}

	return g, nil
}

// Instance returns the instance identified by its fully-qualified name, or
// nil if it does not exist.
func (g *Graph) Instance(fqName string) *stepdef.StepInstance {
	return g.instances[fqName]
}

// InstancesOf returns every instance expanded from the definition named
// name, in expansion order.
func (g *Graph) InstancesOf(name string) []*stepdef.StepInstance {
	return g.byDefName[name]
}

// IsGroup reports whether fqName names a synthetic group instance, one with
// no callable body and no environment of its own.
func (g *Graph) IsGroup(fqName string) bool {
	inst, ok := g.instances[fqName]
	if !ok {
		return false
	}
	return inst.Definition.IsGroup
}

// AllInstances returns every instance in the graph, in expansion order.
func (g *Graph) AllInstances() []*stepdef.StepInstance {
	out := make([]*stepdef.StepInstance, 0, len(g.instanceOrder))
	for _, fq := range g.instanceOrder {
		out = append(out, g.instances[fq])
	}
	return out
}

// Prerequisites returns the fully-qualified names of fqName's direct
// prerequisite instances, in DAG-topological order (each appears as early
// as the overall dependency order allows).
func (g *Graph) Prerequisites(fqName string) []string {
	direct := g.edges[fqName]
	if len(direct) == 0 {
		return nil
	}
	pos := g.topoPositions()
	out := append([]string(nil), direct...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && pos[out[j-1]] > pos[out[j]]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// detectCycle runs a depth-first search, tracking the current recursion
// stack as an ordered path. On finding a back-edge into a node still on the
// stack, it returns the ordered cycle path (closing on the repeated node),
// matching CyclicStepDependencies' "a --> b --> a" reporting.
func (g *Graph) detectCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.instanceOrder))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		for _, dep := range g.edges[name] {
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				idx := 0
				for i, n := range stack {
					if n == dep {
						idx = i
						break
					}
				}
				cycle = append(append([]string{}, stack[idx:]...), dep)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range g.instanceOrder {
		if color[name] == white {
			if visit(name) {
				return cycle
			}
		}
	}
	return nil
}

// TopoOrder returns every instance such that each appears after all of its
// direct prerequisites (dependencies-first order).
func (g *Graph) TopoOrder() []string {
	visited := make(map[string]bool, len(g.instanceOrder))
	order := make([]string, 0, len(g.instanceOrder))

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range g.edges[name] {
			visit(dep)
		}
		order = append(order, name)
	}
	for _, name := range g.instanceOrder {
		visit(name)
	}
	return order
}

func (g *Graph) topoPositions() map[string]int {
	order := g.TopoOrder()
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	return pos
}

// closure returns the transitive requires-closure of base, in
// dependencies-first order.
func (g *Graph) closure(base []string) []string {
	visited := make(map[string]bool)
	var order []string

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range g.edges[name] {
			visit(dep)
		}
		order = append(order, name)
	}
	for _, name := range base {
		visit(name)
	}
	return order
}

// resolveNames expands each of names to fully-qualified instance names: a
// name matching a definition selects all its instances, a name matching an
// exact instance's fully-qualified name selects just that instance.
// Anything matching neither is returned in unknown.
func (g *Graph) resolveNames(names []string) (resolved []string, unknown []string) {
	seen := make(map[string]bool)
	add := func(fq string) {
		if !seen[fq] {
			seen[fq] = true
			resolved = append(resolved, fq)
		}
	}
	for _, name := range names {
		if instances, ok := g.byDefName[name]; ok {
			for _, inst := range instances {
				add(inst.FQName())
			}
			continue
		}
		if _, ok := g.instances[name]; ok {
			add(name)
			continue
		}
		unknown = append(unknown, name)
	}
	return resolved, unknown
}

// Select implements the selection algebra of spec.md §4.C: steps/only/
// except, each accepting either definition names or exact instance names.
func (g *Graph) Select(steps, only, except []string) ([]string, error) {
	var scheduled []string

	if len(only) > 0 {
		resolved, unknown := g.resolveNames(only)
		if len(unknown) > 0 {
			return nil, taskerr.UnknownSteps(unknown)
		}
		scheduled = resolved
	} else {
		var base []string
		if len(steps) > 0 {
			resolved, unknown := g.resolveNames(steps)
			if len(unknown) > 0 {
				return nil, taskerr.UnknownSteps(unknown)
			}
			base = resolved
		} else {
			for _, defName := range g.defOrder {
				if g.defs[defName].RunByDefault {
					for _, inst := range g.byDefName[defName] {
						base = append(base, inst.FQName())
					}
				}
			}
		}
		scheduled = g.closure(base)
	}

	return g.subtractExcept(scheduled, except), nil
}

func (g *Graph) subtractExcept(scheduled []string, except []string) []string {
	if len(except) == 0 {
		return scheduled
	}
	exceptDefs := make(map[string]bool)
	exceptInstances := make(map[string]bool)
	for _, name := range except {
		if _, ok := g.byDefName[name]; ok {
			exceptDefs[name] = true
		}
		exceptInstances[name] = true
	}

	out := make([]string, 0, len(scheduled))
	for _, fq := range scheduled {
		inst := g.instances[fq]
		if exceptDefs[inst.Definition.Name] || exceptInstances[fq] {
			continue
		}
		out = append(out, fq)
	}
	return out
}
