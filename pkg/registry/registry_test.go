package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benschubert/wast/pkg/stepdef"
	"github.com/benschubert/wast/pkg/taskerr"
)

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stepdef.StepDefinition{Name: "lint"}))

	err := r.Register(&stepdef.StepDefinition{Name: "lint"})
	require.Error(t, err)

	var wastErr taskerr.WastError
	require.ErrorAs(t, err, &wastErr)
	assert.Equal(t, taskerr.ExitUsage, wastErr.ExitCode())
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stepdef.StepDefinition{Name: "c"}))
	require.NoError(t, r.Register(&stepdef.StepDefinition{Name: "a"}))
	require.NoError(t, r.Register(&stepdef.StepDefinition{Name: "b"}))

	var names []string
	for _, d := range r.All() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestRegisterGroupIsTreatedAsStep(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterGroup("fix", []string{"isort:fix", "black:fix"}, false))

	def := r.Lookup("fix")
	require.NotNil(t, def)
	assert.True(t, def.IsGroup)
	assert.Nil(t, def.Callable)
	assert.Equal(t, []string{"isort:fix", "black:fix"}, def.Requires)
	assert.False(t, def.RunByDefault)
}

func TestLookupMissingReturnsNil(t *testing.T) {
	r := New()
	assert.Nil(t, r.Lookup("missing"))
}
