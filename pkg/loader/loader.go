// Package loader reads a `wastfile.yaml` configuration script and populates
// a *registry.Registry, walking its `steps:` list and calling
// registry.Register/RegisterGroup plus pkg/param builder calls for each
// entry — the Go-native replacement for the original tool's executed
// `wastfile.py`, matching the "populates the registry, then returns; no
// further registrations accepted after" contract.
package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/benschubert/wast/pkg/builtinsteps"
	"github.com/benschubert/wast/pkg/param"
	"github.com/benschubert/wast/pkg/registry"
	"github.com/benschubert/wast/pkg/stepdef"
)

// parametrizeEntry is one `parametrize:` block attached to a step entry.
type parametrizeEntry struct {
	Names  []string        `yaml:"names"`
	Values [][]interface{} `yaml:"values"`
	IDs    []string        `yaml:"ids"`
}

// stepEntry is one item of `wastfile.yaml`'s `steps:` list.
type stepEntry struct {
	Name             string                 `yaml:"name"`
	Group            bool                   `yaml:"group"`
	Uses             string                 `yaml:"uses"`
	With             map[string]interface{} `yaml:"with"`
	Requires         []string               `yaml:"requires"`
	RunByDefault     bool                   `yaml:"run_by_default"`
	Hidden           bool                   `yaml:"hidden"`
	Python           string                 `yaml:"python"`
	Dependencies     []string               `yaml:"dependencies"`
	IsSetupDependent bool                   `yaml:"setup_dependent"`
	Command          []string               `yaml:"command"`
	SetupCommand     []string               `yaml:"setup_command"`
	Env              map[string]string      `yaml:"env"`
	ExternalCommand  bool                   `yaml:"external_command"`
	SilentOnSuccess  bool                   `yaml:"silent_on_success"`
	Defaults         map[string]interface{} `yaml:"defaults"`
	Parametrize      []parametrizeEntry     `yaml:"parametrize"`
}

type wastfile struct {
	Steps []stepEntry `yaml:"steps"`
}

// Load reads path, unmarshals it, and registers every entry's step or group
// definition into reg. Read and YAML errors, and an entry with an unknown
// builtin or with neither uses: nor command:, come back as plain errors
// wrapped via pkg/errors; a duplicate name comes back as the registry's
// taskerr.DuplicateStep error, unwrapped. Parametrize layers are attached
// without checking their shape here; param.Expand checks it when the graph
// is built.
func Load(path string, reg *registry.Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}

	var wf wastfile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	for _, entry := range wf.Steps {
		if entry.Group {
			if err := reg.RegisterGroup(entry.Name, entry.Requires, entry.RunByDefault); err != nil {
				return err
			}
			continue
		}

		def, err := buildDefinition(entry)
		if err != nil {
			return errors.Wrapf(err, "step %q", entry.Name)
		}

		if err := reg.Register(def); err != nil {
			return err
		}

		builder := param.NewBuilder(def)
		if len(entry.Defaults) > 0 {
			if err := builder.SetDefaults(entry.Defaults); err != nil {
				return err
			}
		}
		for _, p := range entry.Parametrize {
			builder.Parametrize(p.Names, p.Values, p.IDs)
		}
	}

	return nil
}

func buildDefinition(entry stepEntry) (*stepdef.StepDefinition, error) {
	def := &stepdef.StepDefinition{
		Name:             entry.Name,
		Requires:         entry.Requires,
		RunByDefault:     entry.RunByDefault,
		Hidden:           entry.Hidden,
		Python:           entry.Python,
		Dependencies:     entry.Dependencies,
		IsSetupDependent: entry.IsSetupDependent,
		IsManaged:        entry.Python != "",
	}

	if entry.Uses != "" {
		callable, setup, err := builtinsteps.Lookup(entry.Uses, entry.With)
		if err != nil {
			return nil, err
		}
		def.Callable = callable
		def.Setup = setup
		return def, nil
	}

	if len(entry.Command) == 0 {
		return nil, fmt.Errorf("step %q declares neither uses: nor command:", entry.Name)
	}
	def.Callable = genericShellStep(entry)
	if len(entry.SetupCommand) > 0 {
		def.Setup = genericShellSetup(entry)
	}
	return def, nil
}

// genericShellStep builds a Callable that template-renders entry.Command/
// Env against the instance's resolved parameter vector, resolves any
// surviving artifact references against the runner's GetArtifacts, and runs
// the result.
func genericShellStep(entry stepEntry) stepdef.Callable {
	return func(_ context.Context, r stepdef.StepRunner, params stepdef.ParameterVector) error {
		return runShellEntry(r, params, entry.Command, entry.Env, entry.ExternalCommand, entry.SilentOnSuccess)
	}
}

func genericShellSetup(entry stepEntry) stepdef.Callable {
	return func(_ context.Context, r stepdef.StepRunner, params stepdef.ParameterVector) error {
		return runShellEntry(r, params, entry.SetupCommand, entry.Env, entry.ExternalCommand, entry.SilentOnSuccess)
	}
}
