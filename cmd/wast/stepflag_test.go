package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepListFlagSplitsOnComma(t *testing.T) {
	f := &stepListFlag{}
	require := assert.New(t)
	require.NoError(f.Set("a,b,c"))
	require.Equal([]string{"a", "b", "c"}, f.values)
}

func TestStepListFlagAccumulatesAcrossRepeatedOccurrences(t *testing.T) {
	f := &stepListFlag{}
	assert.NoError(t, f.Set("a"))
	assert.NoError(t, f.Set("b,c"))
	assert.Equal(t, []string{"a", "b", "c"}, f.values)
}

func TestStepListFlagTrimsWhitespaceAndDropsEmptyParts(t *testing.T) {
	f := &stepListFlag{}
	assert.NoError(t, f.Set(" a , , b "))
	assert.Equal(t, []string{"a", "b"}, f.values)
}

func TestStepListFlagStringJoinsWithComma(t *testing.T) {
	f := &stepListFlag{}
	assert.NoError(t, f.Set("a,b"))
	assert.Equal(t, "a,b", f.String())
}

func TestStepListFlagType(t *testing.T) {
	assert.Equal(t, "stepList", (&stepListFlag{}).Type())
}
