package envcache

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/benschubert/wast/pkg/config"
	"github.com/benschubert/wast/pkg/logger"
	"github.com/benschubert/wast/pkg/stepdef"
	"github.com/benschubert/wast/pkg/taskerr"
)

// Handle is a prepared, reusable environment. Managed handles are rooted at
// a venv-shaped directory tree; unmanaged handles are a thin pass-through to
// the host PATH with no environment boundary to enforce.
type Handle struct {
	key       stepdef.EnvironmentKey
	path      string
	binDir    string
	pythonBin string
	managed   bool
	cfg       *config.Config
}

// CachePath returns the instance scratch directory this handle's owner
// should expose via StepRunner.CachePath. Environment provisioning and
// instance scratch space are deliberately separate: multiple instances of a
// parametrized step share one environment but never share scratch space.
func (h *Handle) CachePath(fqInstanceName string) string {
	return h.cfg.InstanceCachePath(fqInstanceName)
}

// Install adds packages to this environment. A no-op for unmanaged handles,
// matching the invariant that unmanaged steps declare no dependencies. While
// the install subprocess runs, an indeterminate spinner is rendered to
// stderr (suppressed at higher verbosity, where pip's own streamed output is
// shown instead).
func (h *Handle) Install(ctx context.Context, packages ...string) error {
	if !h.managed || len(packages) == 0 {
		return nil
	}
	argv := append([]string{h.pythonBin, "-m", "pip", "install"}, packages...)

	silent := h.cfg.Verbosity < 2
	stop := h.startInstallSpinner(silent)
	result, err := h.Run(ctx, argv, stepdef.RunOptions{SilentOnSuccess: silent}, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return taskerr.DependencyInstallFailed(h.key.StepName, result.ExitCode)
	}
	return nil
}

// startInstallSpinner renders an indeterminate progressbar.v3 spinner for
// the duration of a dependency install, ticking it on a timer since pip
// reports no byte-count total the bar could track. Returns a func that stops
// and clears it; a no-op spinner is used when silent is false, so pip's own
// streamed output isn't interleaved with spinner frames.
func (h *Handle) startInstallSpinner(silent bool) func() {
	if !silent {
		return func() {}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("installing dependencies for %s", h.key.StepName)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	return func() {
		close(done)
		_ = bar.Finish()
	}
}

// Run validates command against the environment boundary, merges env, and
// executes it, streaming or buffering stdout/stderr per opts.SilentOnSuccess.
func (h *Handle) Run(ctx context.Context, command []string, opts stepdef.RunOptions, stdout, stderr io.Writer) (*stepdef.RunResult, error) {
	if len(command) == 0 {
		return nil, taskerr.CommandNotFound("", "")
	}

	env := h.mergeEnv(opts.Env)
	pathEnv := env["PATH"]

	resolved, err := h.validateCommand(command[0], opts.ExternalCommand, pathEnv)
	if err != nil {
		return nil, err
	}

	argv := append([]string{resolved}, command[1:]...)
	return runSubprocess(ctx, argv, envMapToSlice(env), "", opts.SilentOnSuccess, stdout, stderr)
}

func (h *Handle) validateCommand(command string, externalCommand bool, pathEnv string) (string, error) {
	resolved, err := lookPathIn(command, pathEnv)
	if err != nil {
		return "", taskerr.CommandNotFound(command, pathEnv)
	}

	if !h.managed {
		return resolved, nil
	}

	inEnv := strings.HasPrefix(resolved, h.binDir+string(os.PathSeparator))
	switch {
	case inEnv && externalCommand:
		logger.Get().Warnf("command %q resolved inside the environment but external_command=true was set", command)
	case !inEnv && !externalCommand:
		return "", taskerr.CommandNotInEnvironment(command)
	}
	return resolved, nil
}

func (h *Handle) mergeEnv(additional map[string]string) map[string]string {
	env := make(map[string]string, len(h.cfg.Environ)+len(additional)+2)
	for k, v := range h.cfg.Environ {
		env[k] = v
	}
	if h.managed {
		env["PATH"] = h.binDir + string(os.PathListSeparator) + env["PATH"]
		env["VIRTUAL_ENV"] = h.path
	} else if env["PATH"] == "" {
		env["PATH"] = os.Getenv("PATH")
	}
	for k, v := range additional {
		env[k] = v
	}
	return env
}

func envMapToSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
