package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benschubert/wast/pkg/artifact"
	"github.com/benschubert/wast/pkg/config"
	"github.com/benschubert/wast/pkg/envcache"
	"github.com/benschubert/wast/pkg/stepdef"
)

// fakeGraph is a minimal graphView for scheduler tests so ordering and
// cascading can be exercised without pkg/graph's full expansion machinery.
type fakeGraph struct {
	instances map[string]*stepdef.StepInstance
	prereqs   map[string][]string
}

func (f *fakeGraph) Instance(fq string) *stepdef.StepInstance    { return f.instances[fq] }
func (f *fakeGraph) Prerequisites(fq string) []string            { return f.prereqs[fq] }
func (f *fakeGraph) IsGroup(fq string) bool                      { return f.instances[fq].Definition.IsGroup }

func newTestScheduler(t *testing.T, g *fakeGraph, opts Options) (*Scheduler, *config.Config) {
	t.Helper()
	cfg, err := config.New(config.Options{CachePath: t.TempDir(), Colors: func() *bool { b := false; return &b }()})
	require.NoError(t, err)
	cache := envcache.New(cfg)
	bus := artifact.New(g)
	return New(g, cache, bus, cfg, opts), cfg
}

func unmanagedDef(name string, requires []string, body stepdef.Callable) *stepdef.StepDefinition {
	return &stepdef.StepDefinition{Name: name, Requires: requires, Callable: body}
}

func recorder() (stepdef.Callable, *[]string, *sync.Mutex) {
	var mu sync.Mutex
	var calls []string
	return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "ran")
		return nil
	}, &calls, &mu
}

func TestRunSucceedsInDependencyOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	trace := func(name string) stepdef.Callable {
		return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	defA := unmanagedDef("a", nil, trace("a"))
	defB := unmanagedDef("b", []string{"a"}, trace("b"))
	instA := &stepdef.StepInstance{Definition: defA}
	instB := &stepdef.StepInstance{Definition: defB}

	g := &fakeGraph{
		instances: map[string]*stepdef.StepInstance{"a": instA, "b": instB},
		prereqs:   map[string][]string{"b": {"a"}},
	}

	s, _ := newTestScheduler(t, g, Options{NJobs: 2})
	report, err := s.Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, report.Succeeded)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestFailedStepBlocksDependents(t *testing.T) {
	failing := func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		return assert.AnError
	}
	body, _, _ := recorder()

	defA := unmanagedDef("a", nil, failing)
	defB := unmanagedDef("b", []string{"a"}, body)
	instA := &stepdef.StepInstance{Definition: defA}
	instB := &stepdef.StepInstance{Definition: defB}

	g := &fakeGraph{
		instances: map[string]*stepdef.StepInstance{"a": instA, "b": instB},
		prereqs:   map[string][]string{"b": {"a"}},
	}

	s, _ := newTestScheduler(t, g, Options{NJobs: 2})
	report, err := s.Run(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, report.Failed)
	assert.Equal(t, []string{"b"}, report.Blocked)
}

func TestFailFastReportsFailingStep(t *testing.T) {
	failing := func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		return assert.AnError
	}
	body, calls, mu := recorder()

	defA := unmanagedDef("a", nil, failing)
	defC := unmanagedDef("c", nil, body)
	instA := &stepdef.StepInstance{Definition: defA}
	instC := &stepdef.StepInstance{Definition: defC}

	g := &fakeGraph{
		instances: map[string]*stepdef.StepInstance{"a": instA, "c": instC},
		prereqs:   map[string][]string{},
	}

	s, _ := newTestScheduler(t, g, Options{NJobs: 1, FailFast: true})
	report, err := s.Run(context.Background(), []string{"a", "c"})
	require.Error(t, err)
	assert.Contains(t, report.Failed, "a")

	mu.Lock()
	defer mu.Unlock()
	_ = calls
}

func TestSkipRunMarksRunSucceededWithoutInvocation(t *testing.T) {
	body, calls, mu := recorder()
	defA := unmanagedDef("a", nil, body)
	instA := &stepdef.StepInstance{Definition: defA}

	g := &fakeGraph{instances: map[string]*stepdef.StepInstance{"a": instA}, prereqs: map[string][]string{}}

	s, _ := newTestScheduler(t, g, Options{NJobs: 1, SkipRun: true})
	report, err := s.Run(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Succeeded)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *calls)
}

func TestSkipMissingInterpretersSkipsAndBlocksDependents(t *testing.T) {
	body, calls, mu := recorder()

	defA := &stepdef.StepDefinition{
		Name:      "a",
		IsManaged: true,
		Python:    "totally-nonexistent-interpreter-xyz",
	}
	defB := unmanagedDef("b", []string{"a"}, body)
	instA := &stepdef.StepInstance{Definition: defA}
	instB := &stepdef.StepInstance{Definition: defB}

	g := &fakeGraph{
		instances: map[string]*stepdef.StepInstance{"a": instA, "b": instB},
		prereqs:   map[string][]string{"b": {"a"}},
	}

	s, _ := newTestScheduler(t, g, Options{NJobs: 2, SkipMissingInterpreters: true})
	report, err := s.Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Skipped)
	assert.Equal(t, []string{"b"}, report.Blocked)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *calls)
}

func TestGroupStepNeverInvokesCallable(t *testing.T) {
	defGroup := &stepdef.StepDefinition{Name: "checks", IsGroup: true}
	inst := &stepdef.StepInstance{Definition: defGroup}
	g := &fakeGraph{instances: map[string]*stepdef.StepInstance{"checks": inst}, prereqs: map[string][]string{}}

	s, _ := newTestScheduler(t, g, Options{NJobs: 1})
	report, err := s.Run(context.Background(), []string{"checks"})
	require.NoError(t, err)
	assert.Equal(t, []string{"checks"}, report.Succeeded)
}
