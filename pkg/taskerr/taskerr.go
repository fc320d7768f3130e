// Package taskerr implements the error taxonomy and exit code mapping for
// the pipeline: configuration errors, environment errors, step-body errors,
// and the aggregate pipeline failure report.
package taskerr

import (
	"fmt"
	"strings"
)

// ExitUsage and ExitFailure are the two non-zero process exit codes the
// pipeline can terminate with. ExitSuccess is implicit (zero value).
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// WastError is implemented by every error the core can raise; it carries the
// process exit code the CLI should terminate with.
type WastError interface {
	error
	ExitCode() int
}

// baseError is the common shape of every taxonomy member: a rendered message
// and an exit code, mirroring BaseWastException from the original tool.
type baseError struct {
	message  string
	exitCode int
}

func (e *baseError) Error() string  { return e.message }
func (e *baseError) ExitCode() int  { return e.exitCode }

func newConfigError(format string, args ...interface{}) *baseError {
	return &baseError{message: fmt.Sprintf(format, args...), exitCode: ExitUsage}
}

func newRuntimeError(format string, args ...interface{}) *baseError {
	return &baseError{message: fmt.Sprintf(format, args...), exitCode: ExitFailure}
}

// DuplicateStep is raised by the registry when a step name is registered twice.
func DuplicateStep(name string) WastError {
	return newConfigError("a step with the name %q has already been registered", name)
}

// UnknownSteps is raised during selection when a name in steps/only/except
// matches neither a registered definition nor a materialized instance.
func UnknownSteps(names []string) WastError {
	return newConfigError("unknown steps: %s", strings.Join(names, ", "))
}

// CyclicStepDependencies is raised by the graph builder's DFS cycle detector.
// cycle is the ordered path of instance names that closes the loop.
func CyclicStepDependencies(cycle []string) WastError {
	return newConfigError("cyclic dependencies between steps: %s", strings.Join(cycle, " --> "))
}

// DefaultsAlreadySet is raised when a second defaults layer is attached to
// the same step definition.
func DefaultsAlreadySet(stepName string) WastError {
	return newConfigError("step %q already has a defaults layer set", stepName)
}

// MismatchedNumberOfParameters is raised when a parameter layer's tuple
// arity disagrees with the arity of its declared parameter names.
func MismatchedNumberOfParameters(stepName string, namesArity, gotArity int) WastError {
	return newConfigError(
		"step %q: parametrize expected tuples of arity %d, got arity %d",
		stepName, namesArity, gotArity,
	)
}

// ParameterConflict is raised when two attached layers on the same
// definition both name the same parameter.
func ParameterConflict(stepName, paramName string) WastError {
	return newConfigError("step %q: parameter %q is assigned by more than one layer", stepName, paramName)
}

// InvalidColorSetting is raised when PY_COLORS holds a value other than "0" or "1".
func InvalidColorSetting(value string) WastError {
	return newConfigError("PY_COLORS set to %s. This is invalid, only '1' or '0' is supported.", value)
}

// UnavailableInterpreter is raised by the environment cache when the
// requested interpreter cannot be located on PATH.
func UnavailableInterpreter(interpreter string) WastError {
	return newRuntimeError("missing interpreter: %s", interpreter)
}

// DependencyInstallFailed is raised when a managed environment's dependency
// installation subprocess (pip install ...) exits non-zero. Distinct from
// UnavailableInterpreter: the interpreter was found, provisioning just
// failed to install the requested packages into it.
func DependencyInstallFailed(stepName string, exitCode int) WastError {
	return newRuntimeError("failed to install dependencies for step %q (exit code %d)", stepName, exitCode)
}

// CommandNotFound is raised when a step's run() command cannot be resolved
// on the curated PATH of its environment.
func CommandNotFound(command, path string) WastError {
	return newRuntimeError("the following command was not found in PATH: %s.\nPATH was set as: %q", command, path)
}

// CommandNotInEnvironment is raised when a resolved command lives outside
// the step's environment and external_command was not set.
func CommandNotInEnvironment(command string) WastError {
	return newRuntimeError(
		"the command %q is not part of the environment. If this is intentional, use external_command=true",
		command,
	)
}

// FailedPipeline is the aggregate end-of-run report: at least one instance
// terminated in a non-Succeeded terminal state.
type FailedPipeline struct {
	Failed    int
	Blocked   int
	Cancelled int
}

// NewFailedPipeline builds the aggregate error. failed must be > 0; the
// scheduler only constructs this once it knows the run was not clean.
func NewFailedPipeline(failed, blocked, cancelled int) WastError {
	if failed <= 0 {
		panic("taskerr: NewFailedPipeline requires failed > 0")
	}
	msg := pluralize(failed, "job") + " failed"
	if blocked > 0 {
		msg += ", " + pluralize(blocked, "job") + " could not run"
	}
	if cancelled > 0 {
		msg += ", " + pluralize(cancelled, "job") + " were cancelled"
	}
	return &baseError{message: msg, exitCode: ExitFailure}
}

func pluralize(n int, noun string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss", n, noun)
	}
	return fmt.Sprintf("1 %s", noun)
}
