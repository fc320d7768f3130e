// Package builtinsteps ports the original tool's predefined step library
// (isort, black, mypy, pylint, pytest, coverage, package) to Go
// constructors, one per tool, each returning a stepdef.Callable closed over
// its `uses:`-entry `with:` arguments. Grounded file-for-file on
// original_source/src/wast/predefined/*.py.
package builtinsteps

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/benschubert/wast/pkg/stepdef"
)

// Lookup resolves a wastfile.yaml `uses:` name to its Callable and, where
// the original ships one, its Setup callable. Mirrors
// original_source/src/wast/predefined/__init__.py's constructor table.
func Lookup(name string, with map[string]interface{}) (stepdef.Callable, stepdef.Callable, error) {
	switch name {
	case "isort":
		return Isort(with), nil, nil
	case "black":
		return Black(with), nil, nil
	case "mypy":
		return Mypy(with), nil, nil
	case "pylint":
		return Pylint(with), nil, nil
	case "pytest":
		return Pytest(with), nil, nil
	case "coverage":
		return Coverage(with), nil, nil
	case "package":
		return Package(with), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown builtin step %q", name)
	}
}

func stringSlice(with map[string]interface{}, key string, fallback []string) []string {
	raw, ok := with[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = fmt.Sprintf("%v", item)
		}
		return out
	default:
		return fallback
	}
}

func stringValue(with map[string]interface{}, key, fallback string) string {
	raw, ok := with[key]
	if !ok {
		return fallback
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fallback
}

// runChecked executes cmd unmodified and turns a non-zero exit into an
// error, matching the original tool's behavior of letting the subprocess's
// own exit code decide Run vs Failed.
func runChecked(r stepdef.StepRunner, cmd []string, opts stepdef.RunOptions) error {
	result, err := r.Run(cmd, opts)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return errors.Errorf("%s exited %d", cmd[0], result.ExitCode)
	}
	return nil
}

// Isort runs the isort import-sorter. Grounded on predefined/_isort.py:
// defaults files=["."], additional_arguments=["--check-only", "--diff"],
// and appends --color when the runner's Config has colors enabled.
func Isort(with map[string]interface{}) stepdef.Callable {
	files := stringSlice(with, "files", []string{"."})
	args := stringSlice(with, "additional_arguments", []string{"--check-only", "--diff"})

	return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		cmd := append([]string{"isort"}, args...)
		if r.Colors() {
			cmd = append(cmd, "--color")
		}
		cmd = append(cmd, files...)
		return runChecked(r, cmd, stepdef.RunOptions{})
	}
}

// Black runs the black formatter in check mode by default. Grounded on
// predefined/_black.py's shape (same files/additional_arguments contract as
// Isort, black's own --check/--diff flags instead of isort's).
func Black(with map[string]interface{}) stepdef.Callable {
	files := stringSlice(with, "files", []string{"."})
	args := stringSlice(with, "additional_arguments", []string{"--check", "--diff"})

	return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		cmd := append([]string{"black"}, args...)
		if r.Colors() {
			cmd = append(cmd, "--color")
		}
		cmd = append(cmd, files...)
		return runChecked(r, cmd, stepdef.RunOptions{})
	}
}

// Mypy runs the mypy type checker against files (default ["."]).
func Mypy(with map[string]interface{}) stepdef.Callable {
	files := stringSlice(with, "files", []string{"."})
	args := stringSlice(with, "additional_arguments", nil)

	return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		cmd := append([]string{"mypy"}, args...)
		cmd = append(cmd, files...)
		return runChecked(r, cmd, stepdef.RunOptions{})
	}
}

// Pylint runs the pylint linter against files (default ["."]).
func Pylint(with map[string]interface{}) stepdef.Callable {
	files := stringSlice(with, "files", []string{"."})
	args := stringSlice(with, "additional_arguments", nil)

	return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		cmd := append([]string{"pylint"}, args...)
		cmd = append(cmd, files...)
		return runChecked(r, cmd, stepdef.RunOptions{})
	}
}

// Pytest runs the test suite, defaulting to the "tests" directory, and
// publishes the coverage data file it produces as the "coverage_data"
// artifact for a downstream Coverage step to consume.
func Pytest(with map[string]interface{}) stepdef.Callable {
	tests := stringSlice(with, "tests", []string{"tests"})
	args := stringSlice(with, "additional_arguments", nil)

	return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		cmd := append([]string{"pytest"}, args...)
		cmd = append(cmd, tests...)
		if err := runChecked(r, cmd, stepdef.RunOptions{}); err != nil {
			return err
		}
		r.PublishArtifact("coverage_data", r.CachePath()+"/.coverage")
		return nil
	}
}

// Coverage consumes the "coverage_data" artifact published by every direct
// prerequisite Pytest instance and combines then reports on it.
func Coverage(with map[string]interface{}) stepdef.Callable {
	minimum := stringValue(with, "fail_under", "")

	return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		dataFiles := r.GetArtifacts("coverage_data")
		if len(dataFiles) == 0 {
			return errors.New("coverage: no coverage_data artifacts published by any prerequisite")
		}

		combineArgs := []string{"coverage", "combine"}
		for _, f := range dataFiles {
			combineArgs = append(combineArgs, fmt.Sprintf("%v", f))
		}
		if err := runChecked(r, combineArgs, stepdef.RunOptions{}); err != nil {
			return err
		}

		reportArgs := []string{"coverage", "report"}
		if minimum != "" {
			reportArgs = append(reportArgs, "--fail-under="+minimum)
		}
		return runChecked(r, reportArgs, stepdef.RunOptions{})
	}
}

// Package builds a wheel and sdist and publishes their paths as the "wheel"
// and "sdist" artifacts for downstream publish steps.
func Package(with map[string]interface{}) stepdef.Callable {
	outDir := stringValue(with, "out_dir", "dist")

	return func(_ context.Context, r stepdef.StepRunner, _ stepdef.ParameterVector) error {
		cmd := []string{"python", "-m", "build", "--outdir", outDir}
		if err := runChecked(r, cmd, stepdef.RunOptions{}); err != nil {
			return err
		}
		r.PublishArtifact("wheel", outDir+"/*.whl")
		r.PublishArtifact("sdist", outDir+"/*.tar.gz")
		return nil
	}
}
