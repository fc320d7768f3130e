package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeGraph is a minimal prereqLister stand-in for these unit tests, so
// artifact transparency can be tested without pkg/graph's full expansion
// machinery.
type fakeGraph struct {
	prereqs map[string][]string
	groups  map[string]bool
}

func (f *fakeGraph) Prerequisites(fqName string) []string { return f.prereqs[fqName] }
func (f *fakeGraph) IsGroup(fqName string) bool            { return f.groups[fqName] }

func TestGetIsEmptyBeforePrerequisiteSucceeds(t *testing.T) {
	g := &fakeGraph{prereqs: map[string][]string{"b": {"a"}}}
	bus := New(g)
	bus.Publish("a", "wheel", "dist/pkg.whl")

	assert.Empty(t, bus.Get("b", "wheel"))
}

func TestGetReturnsPublishedValuesAfterSuccess(t *testing.T) {
	g := &fakeGraph{prereqs: map[string][]string{"b": {"a"}}}
	bus := New(g)
	bus.Publish("a", "wheel", "dist/pkg.whl")
	bus.MarkSucceeded("a")

	assert.Equal(t, []interface{}{"dist/pkg.whl"}, bus.Get("b", "wheel"))
}

func TestGetConcatenatesMultiplePrerequisitesInOrder(t *testing.T) {
	g := &fakeGraph{prereqs: map[string][]string{"c": {"a", "b"}}}
	bus := New(g)
	bus.Publish("a", "wheel", "a.whl")
	bus.Publish("b", "wheel", "b.whl")
	bus.MarkSucceeded("a")
	bus.MarkSucceeded("b")

	assert.Equal(t, []interface{}{"a.whl", "b.whl"}, bus.Get("c", "wheel"))
}

func TestGetTraversesThroughGroupsTransparently(t *testing.T) {
	g := &fakeGraph{
		prereqs: map[string][]string{
			"consumer": {"buildGroup"},
			"buildGroup": {"realBuild"},
		},
		groups: map[string]bool{"buildGroup": true},
	}
	bus := New(g)
	bus.Publish("realBuild", "wheel", "real.whl")
	bus.MarkSucceeded("realBuild")

	assert.Equal(t, []interface{}{"real.whl"}, bus.Get("consumer", "wheel"))
}

func TestGetIgnoresOtherArtifactNames(t *testing.T) {
	g := &fakeGraph{prereqs: map[string][]string{"b": {"a"}}}
	bus := New(g)
	bus.Publish("a", "wheel", "a.whl")
	bus.MarkSucceeded("a")

	assert.Empty(t, bus.Get("b", "sdist"))
}
