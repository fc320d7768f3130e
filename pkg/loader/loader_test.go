package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benschubert/wast/pkg/registry"
)

func writeWastfile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wastfile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRegistersGenericShellStep(t *testing.T) {
	path := writeWastfile(t, `
steps:
  - name: lint
    run_by_default: true
    command: ["echo", "linting"]
`)

	reg := registry.New()
	require.NoError(t, Load(path, reg))

	def := reg.Lookup("lint")
	require.NotNil(t, def)
	assert.True(t, def.RunByDefault)
	assert.NotNil(t, def.Callable)
	assert.Nil(t, def.Setup)
}

func TestLoadRegistersSetupCommandAsSeparateCallable(t *testing.T) {
	path := writeWastfile(t, `
steps:
  - name: build
    python: "3.11"
    setup_command: ["pip", "install", "-e", "."]
    command: ["python", "setup.py", "build"]
`)

	reg := registry.New()
	require.NoError(t, Load(path, reg))

	def := reg.Lookup("build")
	require.NotNil(t, def)
	assert.NotNil(t, def.Setup)
	assert.NotNil(t, def.Callable)
	assert.True(t, def.IsManaged)
}

func TestLoadRegistersGroup(t *testing.T) {
	path := writeWastfile(t, `
steps:
  - name: checks
    group: true
    requires: ["lint", "test"]
    run_by_default: true
  - name: lint
    command: ["echo", "lint"]
  - name: test
    command: ["echo", "test"]
`)

	reg := registry.New()
	require.NoError(t, Load(path, reg))

	group := reg.Lookup("checks")
	require.NotNil(t, group)
	assert.True(t, group.IsGroup)
	assert.Nil(t, group.Callable)
	assert.Equal(t, []string{"lint", "test"}, group.Requires)
}

func TestLoadResolvesBuiltinUses(t *testing.T) {
	path := writeWastfile(t, `
steps:
  - name: sort-imports
    uses: isort
    with:
      files: ["src"]
`)

	reg := registry.New()
	require.NoError(t, Load(path, reg))

	def := reg.Lookup("sort-imports")
	require.NotNil(t, def)
	assert.NotNil(t, def.Callable)
}

func TestLoadRejectsUnknownBuiltin(t *testing.T) {
	path := writeWastfile(t, `
steps:
  - name: mystery
    uses: not-a-real-tool
`)

	reg := registry.New()
	assert.Error(t, Load(path, reg))
}

func TestLoadRejectsStepWithNeitherUsesNorCommand(t *testing.T) {
	path := writeWastfile(t, `
steps:
  - name: nothing
`)

	reg := registry.New()
	assert.Error(t, Load(path, reg))
}

func TestLoadAppliesParametrizeLayer(t *testing.T) {
	path := writeWastfile(t, `
steps:
  - name: test
    command: ["pytest"]
    parametrize:
      - names: ["python"]
        values: [["3.9"], ["3.10"]]
        ids: ["3.9", "3.10"]
`)

	reg := registry.New()
	require.NoError(t, Load(path, reg))

	def := reg.Lookup("test")
	require.NotNil(t, def)
	require.Len(t, def.Layers, 1)
	assert.Equal(t, []string{"python"}, def.Layers[0].Names)
}

func TestLoadRejectsDuplicateStepName(t *testing.T) {
	path := writeWastfile(t, `
steps:
  - name: dup
    command: ["echo", "1"]
  - name: dup
    command: ["echo", "2"]
`)

	reg := registry.New()
	assert.Error(t, Load(path, reg))
}
