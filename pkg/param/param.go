// Package param implements the parameter engine (component B): attaching
// parameter layers to a step definition and expanding them, exactly once at
// graph-build time, into the concrete StepInstances the scheduler will run.
package param

import (
	"strings"

	"github.com/benschubert/wast/pkg/stepdef"
	"github.com/benschubert/wast/pkg/taskerr"
)

// Builder is the fluent attachment surface used by step authors (directly,
// or via pkg/loader and pkg/builtinsteps). It stores layers as structured
// records on the definition, never as closures.
type Builder struct {
	def *stepdef.StepDefinition
}

// NewBuilder wraps def for layer attachment.
func NewBuilder(def *stepdef.StepDefinition) *Builder {
	return &Builder{def: def}
}

// Parametrize attaches a layer: names gives the per-axis parameter names,
// values gives one tuple per instance to produce, and ids (optional — pass
// nil to default every id to "") gives the per-tuple id used in the fully
// qualified instance name.
func (b *Builder) Parametrize(names []string, values [][]interface{}, ids []string) *Builder {
	if ids == nil {
		ids = make([]string, len(values))
	}
	b.def.Layers = append(b.def.Layers, stepdef.ParameterLayer{
		Names:  names,
		Values: values,
		IDs:    ids,
	})
	return b
}

// Override is one named value passed to BuildParameters. A nil Value is
// ignored, so CLI-style options the caller omitted fall through to
// defaults.
type Override struct {
	Name  string
	Value interface{}
}

// BuildParameters is the convenience form: for each override whose Value is
// non-nil, attach a single-value layer with ids=[""].
func (b *Builder) BuildParameters(overrides ...Override) *Builder {
	for _, o := range overrides {
		if o.Value == nil {
			continue
		}
		b.Parametrize([]string{o.Name}, [][]interface{}{{o.Value}}, []string{""})
	}
	return b
}

// SetDefaults attaches the one defaults layer a definition may have. Fails
// with DefaultsAlreadySet if called twice on the same definition.
func (b *Builder) SetDefaults(mapping map[string]interface{}) error {
	if b.def.Defaults != nil {
		return taskerr.DefaultsAlreadySet(b.def.Name)
	}
	b.def.Defaults = stepdef.DefaultsLayer(mapping)
	return nil
}

// axisEntry is one candidate tuple from one layer, carried through the
// Cartesian product.
type axisEntry struct {
	names  []string
	values []interface{}
	id     string
}

// Expand runs the expansion algorithm described in spec.md §4.B exactly
// once: collect layers in attachment order (rejecting name collisions
// across layers), compute their Cartesian product (rejecting arity
// mismatches), merge each tuple with the defaults layer, and derive the
// id_suffix. If def has no layers, exactly one instance with an empty
// parameter vector is produced.
//
// Expand is a pure function of def: calling it twice yields byte-identical
// instance names and vectors, which is what lets --list and the scheduler
// agree on the node set.
func Expand(def *stepdef.StepDefinition) ([]*stepdef.StepInstance, error) {
	if err := checkNameConflicts(def); err != nil {
		return nil, err
	}
	if err := checkArities(def); err != nil {
		return nil, err
	}

	if len(def.Layers) == 0 {
		return []*stepdef.StepInstance{{
			Definition:      def,
			ParameterVector: defaultsVector(def),
			IDSuffix:        "",
		}}, nil
	}

	axes := make([][]axisEntry, len(def.Layers))
	for i, layer := range def.Layers {
		for j, values := range layer.Values {
			id := ""
			if j < len(layer.IDs) {
				id = layer.IDs[j]
			}
			axes[i] = append(axes[i], axisEntry{names: layer.Names, values: values, id: id})
		}
	}

	combos := cartesianProduct(axes)

	instances := make([]*stepdef.StepInstance, 0, len(combos))
	for _, combo := range combos {
		vec := defaultsVector(def)
		ids := make([]string, 0, len(combo))
		for _, entry := range combo {
			for i, name := range entry.names {
				vec[name] = entry.values[i]
			}
			ids = append(ids, entry.id)
		}
		instances = append(instances, &stepdef.StepInstance{
			Definition:      def,
			ParameterVector: vec,
			IDSuffix:        joinIDs(ids),
		})
	}
	return instances, nil
}

func defaultsVector(def *stepdef.StepDefinition) stepdef.ParameterVector {
	vec := make(stepdef.ParameterVector, len(def.Defaults))
	for k, v := range def.Defaults {
		vec[k] = v
	}
	return vec
}

func checkNameConflicts(def *stepdef.StepDefinition) error {
	seen := make(map[string]bool)
	for _, layer := range def.Layers {
		for _, name := range layer.Names {
			if seen[name] {
				return taskerr.ParameterConflict(def.Name, name)
			}
			seen[name] = true
		}
	}
	return nil
}

func checkArities(def *stepdef.StepDefinition) error {
	for _, layer := range def.Layers {
		for _, values := range layer.Values {
			if len(values) != layer.Arity() {
				return taskerr.MismatchedNumberOfParameters(def.Name, layer.Arity(), len(values))
			}
		}
	}
	return nil
}

// cartesianProduct returns every combination of exactly one entry per axis,
// preserving axis order (attachment order of layers) and, within an axis,
// the order its values were attached in.
func cartesianProduct(axes [][]axisEntry) [][]axisEntry {
	combos := [][]axisEntry{{}}
	for _, axis := range axes {
		next := make([][]axisEntry, 0, len(combos)*len(axis))
		for _, combo := range combos {
			for _, entry := range axis {
				nc := make([]axisEntry, len(combo), len(combo)+1)
				copy(nc, combo)
				nc = append(nc, entry)
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos
}

// joinIDs dash-joins the per-axis ids, dropping empty ids so that axes
// contributing no visible suffix (e.g. a BuildParameters layer, which
// always carries ids=[""]) neither introduce a stray dash nor force a
// suffix to exist when every axis is empty.
func joinIDs(ids []string) string {
	nonEmpty := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			nonEmpty = append(nonEmpty, id)
		}
	}
	return strings.Join(nonEmpty, "-")
}
