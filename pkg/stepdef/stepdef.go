// Package stepdef defines the shared data model for the pipeline: the raw,
// user-registered StepDefinition, the parameter layers attached to it, the
// concrete StepInstance produced by expansion, and the StepRunner façade
// contract every step callable is handed at invocation time.
package stepdef

import "context"

// ParameterVector is the resolved mapping of parameter name to value for a
// single StepInstance, produced by the parameter engine's expansion.
type ParameterVector map[string]interface{}

// Callable is a step or setup body. It receives the StepRunner façade (its
// only window into pipeline internals) and its own resolved parameter
// vector.
type Callable func(ctx context.Context, r StepRunner, params ParameterVector) error

// RunOptions configures a single StepRunner.Run invocation.
type RunOptions struct {
	// Env is merged over the environment's curated variables; present keys
	// override, absent keys are left untouched.
	Env map[string]string
	// ExternalCommand permits (with a warning if the command actually does
	// live in the environment) resolving the command from outside the
	// environment's binary directory.
	ExternalCommand bool
	// SilentOnSuccess buffers stdout/stderr and only flushes them if the
	// command exits non-zero.
	SilentOnSuccess bool
}

// RunResult is returned by StepRunner.Run.
type RunResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// StepRunner is the façade passed to every step callable. No other access
// to pipeline internals (registry, graph, scheduler) is granted.
type StepRunner interface {
	// CachePath returns this instance's private scratch directory, a
	// subdirectory of the global cache keyed by the instance's fully
	// qualified name.
	CachePath() string

	// Install delegates to the environment cache to add packages to this
	// instance's managed environment.
	Install(packages ...string) error

	// Run executes command inside this instance's environment (or the host
	// PATH for unmanaged steps), subject to the command-must-live-in-the-
	// environment validation described by the environment cache.
	Run(command []string, opts RunOptions) (*RunResult, error)

	// GetArtifacts returns the concatenation, in DAG-topological order of
	// direct prerequisites, of each prerequisite's published values under
	// name. A direct prerequisite that is a group contributes its own
	// prerequisites' values in its place; no other indirect prerequisite
	// is searched.
	GetArtifacts(name string) []interface{}

	// PublishArtifact records a value under name, visible to downstream
	// instances only once this instance reaches Succeeded.
	PublishArtifact(name string, value interface{})

	// Verbosity and Colors surface the subset of global Config a step body
	// commonly needs without handing over the whole Config.
	Verbosity() int
	Colors() bool
}

// ParameterLayer is one attached (names, values, ids) record. Layers stack:
// multiple layers attached to the same definition produce the Cartesian
// product of their Values.
type ParameterLayer struct {
	Names  []string
	Values [][]interface{}
	IDs    []string
}

// Arity returns the tuple width this layer declares via Names.
func (l ParameterLayer) Arity() int { return len(l.Names) }

// DefaultsLayer supplies name -> value, applied only when no explicit layer
// assigns that parameter.
type DefaultsLayer map[string]interface{}

// StepDefinition is the raw, user-registered declaration.
type StepDefinition struct {
	// Name is the stable, pipeline-unique identifier.
	Name string
	// Callable is the step body. Nil for groups.
	Callable Callable
	// Requires lists prerequisite step names, resolved to registered
	// definitions at graph-build time (not at registration time, so forward
	// references inside the configuration script work).
	Requires []string
	// Python is the interpreter identifier; empty means the host
	// interpreter. A literal name ("python3.11") is resolved with
	// exec.LookPath. A value that parses as a Masterminds/semver constraint
	// ("~3.9", ">=3.10,<3.13") is instead resolved by envcache.Cache.Prepare
	// against every "python3.*" it discovers on PATH, picking the highest
	// version satisfying the constraint.
	Python string
	// Dependencies is an opaque list of package specifiers handed verbatim
	// to the environment materializer. Must be empty for unmanaged steps.
	Dependencies []string
	// RunByDefault marks this definition as part of the implicit base set
	// when neither --step nor --only is given.
	RunByDefault bool
	// Layers holds the attached parameter layers, in attachment order.
	Layers []ParameterLayer
	// Defaults is the optional defaults layer; nil if never set.
	Defaults DefaultsLayer
	// Setup is an optional callable run once per instance during the Setup
	// phase, after the environment is provisioned.
	Setup Callable
	// IsSetupDependent, when true, means this definition's Setup node only
	// becomes eligible once every prerequisite's Setup node has Succeeded.
	// When false, Setup is eligible as soon as the instance reaches Pending.
	IsSetupDependent bool
	// IsManaged marks this step as requiring an isolated environment
	// (component D); unmanaged steps run directly against the host.
	IsManaged bool
	// IsGroup marks a synthetic step with no body and no environment.
	IsGroup bool
	// Hidden is set by the loader from the wastfile entry. No component
	// reads it, so it does not change what is logged.
	Hidden bool
}

// StepInstance is a concrete scheduled node: a definition fixed to one
// parameter vector. Identity is by fully-qualified name.
type StepInstance struct {
	Definition      *StepDefinition
	ParameterVector ParameterVector
	IDSuffix        string
}

// FQName returns the fully-qualified instance name: Definition.Name alone
// when there are no parameter layers, else Definition.Name + "[" + IDSuffix + "]".
func (si *StepInstance) FQName() string {
	if si.IDSuffix == "" {
		return si.Definition.Name
	}
	return si.Definition.Name + "[" + si.IDSuffix + "]"
}

// EnvironmentKey identifies one hermetic environment: the pair (step name,
// interpreter id) that the environment cache keys its directories on.
type EnvironmentKey struct {
	StepName      string
	InterpreterID string
}
