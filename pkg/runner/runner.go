// Package runner implements the StepRunner façade (component G): the only
// window a step or setup callable has into pipeline internals, collapsing
// config access, environment command execution, and artifact plumbing into
// the single interface defined by pkg/stepdef.
//
// Grounded on the teacher's pkg/runner.Runner facade shape (config, cache
// path, and run collapsed behind one type) and on the original tool's
// VenvRunner.run signature.
package runner

import (
	"context"
	"io"

	"github.com/benschubert/wast/pkg/artifact"
	"github.com/benschubert/wast/pkg/config"
	"github.com/benschubert/wast/pkg/envcache"
	"github.com/benschubert/wast/pkg/stepdef"
)

// Runner is a short-lived façade, constructed fresh for each Setup or Run
// node invocation and bound to that invocation's cancellation context and
// output streams.
type Runner struct {
	ctx    context.Context
	handle *envcache.Handle
	bus    *artifact.Bus
	cfg    *config.Config
	fqName string
	stdout io.Writer
	stderr io.Writer
}

// New returns a Runner for instance fqName, executing against handle, with
// stdout/stderr as the destination for any subprocess output it runs.
func New(ctx context.Context, handle *envcache.Handle, bus *artifact.Bus, cfg *config.Config, fqName string, stdout, stderr io.Writer) *Runner {
	return &Runner{ctx: ctx, handle: handle, bus: bus, cfg: cfg, fqName: fqName, stdout: stdout, stderr: stderr}
}

// CachePath implements stepdef.StepRunner.
func (r *Runner) CachePath() string {
	return r.cfg.InstanceCachePath(r.fqName)
}

// Install implements stepdef.StepRunner.
func (r *Runner) Install(packages ...string) error {
	return r.handle.Install(r.ctx, packages...)
}

// Run implements stepdef.StepRunner.
func (r *Runner) Run(command []string, opts stepdef.RunOptions) (*stepdef.RunResult, error) {
	return r.handle.Run(r.ctx, command, opts, r.stdout, r.stderr)
}

// GetArtifacts implements stepdef.StepRunner.
func (r *Runner) GetArtifacts(name string) []interface{} {
	return r.bus.Get(r.fqName, name)
}

// PublishArtifact implements stepdef.StepRunner.
func (r *Runner) PublishArtifact(name string, value interface{}) {
	r.bus.Publish(r.fqName, name, value)
}

// Verbosity implements stepdef.StepRunner.
func (r *Runner) Verbosity() int { return r.cfg.Verbosity }

// Colors implements stepdef.StepRunner.
func (r *Runner) Colors() bool { return r.cfg.Colors }

var _ stepdef.StepRunner = (*Runner)(nil)
