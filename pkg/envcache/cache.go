// Package envcache implements the environment cache (component D):
// idempotent provisioning and reuse of per-step hermetic runtime
// environments, and the command validation that guards against
// accidentally using host binaries during a hermetic run.
//
// The interpreter probe and environment materializer are, per spec, an
// external collaborator whose only binding contract is "idempotent
// preparation plus a command-execution contract" — this package satisfies
// that contract using a `python -m venv`-style materializer, grounded on
// the original tool's VenvRunner, since every predefined step in the
// pack targets Python tooling.
package envcache

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	"github.com/benschubert/wast/pkg/config"
	"github.com/benschubert/wast/pkg/logger"
	"github.com/benschubert/wast/pkg/stepdef"
	"github.com/benschubert/wast/pkg/taskerr"
)

// Cache owns the directory tree under cfg.VenvsPath and the per-handle
// locks that serialize preparation of the same (step_name, interpreter_id).
type Cache struct {
	cfg *config.Config

	mu      sync.Mutex
	locks   map[stepdef.EnvironmentKey]*sync.Mutex
	handles map[stepdef.EnvironmentKey]*Handle
}

// New returns a Cache rooted at cfg.VenvsPath.
func New(cfg *config.Config) *Cache {
	return &Cache{
		cfg:     cfg,
		locks:   make(map[stepdef.EnvironmentKey]*sync.Mutex),
		handles: make(map[stepdef.EnvironmentKey]*Handle),
	}
}

func (c *Cache) lockFor(key stepdef.EnvironmentKey) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[key]
	if !ok {
		m = &sync.Mutex{}
		c.locks[key] = m
	}
	return m
}

func (c *Cache) cachedHandle(key stepdef.EnvironmentKey) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[key]
	return h, ok
}

func (c *Cache) storeHandle(key stepdef.EnvironmentKey, h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[key] = h
}

// Prepare returns the environment for (stepName, interpreterID), creating
// it if necessary. Distinct handle identities prepare in parallel; the same
// identity is serialized via a per-key lock, and reuse (directory already
// present) only holds that lock briefly. interpreterID is resolved via
// resolveInterpreter: a literal executable name or a semver constraint.
func (c *Cache) Prepare(ctx context.Context, stepName, interpreterID string, dependencySpecs []string) (*Handle, error) {
	key := stepdef.EnvironmentKey{StepName: stepName, InterpreterID: interpreterID}

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if h, ok := c.cachedHandle(key); ok {
		return h, nil
	}

	interpreterPath, err := resolveInterpreter(interpreterID)
	if err != nil {
		return nil, err
	}

	dirName := sanitizeDirName(stepName + "-" + interpreterID)
	path := filepath.Join(c.cfg.VenvsPath, dirName)

	h := &Handle{
		key:       key,
		path:      path,
		binDir:    filepath.Join(path, "bin"),
		pythonBin: filepath.Join(path, "bin", "python"),
		managed:   true,
		cfg:       c.cfg,
	}

	if _, err := os.Stat(path); err == nil {
		logger.Get().Debugf("environment %s already exists, reusing", path)
		c.storeHandle(key, h)
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating venvs directory for %s", key)
	}

	if err := createEnvironment(ctx, interpreterPath, path, c.cfg); err != nil {
		os.RemoveAll(path)
		return nil, errors.Wrapf(err, "creating environment for %s", stepName)
	}

	if len(dependencySpecs) > 0 {
		if err := h.Install(ctx, dependencySpecs...); err != nil {
			os.RemoveAll(path)
			return nil, errors.Wrapf(err, "installing dependencies for %s", stepName)
		}
	}

	c.storeHandle(key, h)
	return h, nil
}

// Lookup returns the already-prepared handle for (stepName, interpreterID)
// without creating one, for use under --skip-setup where Run must fail
// (UnavailableInterpreter) rather than provision on demand.
func (c *Cache) Lookup(stepName, interpreterID string) (*Handle, bool) {
	return c.cachedHandle(stepdef.EnvironmentKey{StepName: stepName, InterpreterID: interpreterID})
}

// PrepareUnmanaged returns a handle for an unmanaged step: no directory is
// created, and command validation against an environment boundary is
// skipped since there is no environment to stay inside of.
func (c *Cache) PrepareUnmanaged(stepName string) *Handle {
	return &Handle{
		key:     stepdef.EnvironmentKey{StepName: stepName},
		managed: false,
		cfg:     c.cfg,
	}
}

func createEnvironment(ctx context.Context, interpreterPath, path string, cfg *config.Config) error {
	result, err := runSubprocess(ctx, []string{interpreterPath, "-m", "venv", path}, envMapToSlice(cfg.Environ), "", cfg.Verbosity < 2, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return errors.Errorf("interpreter %s exited %d creating venv at %s", interpreterPath, result.ExitCode, path)
	}
	return nil
}

func sanitizeDirName(s string) string {
	return strings.ReplaceAll(s, ":", "-")
}

// pythonVersionName extracts the numeric suffix of a "python3.X"-shaped
// executable name, e.g. "python3.11" -> "3.11".
func pythonVersionName(name string) (string, bool) {
	const prefix = "python"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	rest := name[len(prefix):]
	if rest == "" || (rest[0] != '2' && rest[0] != '3') {
		return "", false
	}
	return rest, true
}

// discoverInterpreters scans every directory on PATH for "pythonX.Y"-shaped
// executables and returns every one it finds, keyed by its parsed semver
// version, so that a constraint can be checked against whichever
// interpreters are actually installed on this machine.
func discoverInterpreters() map[*semver.Version]string {
	found := make(map[*semver.Version]string)
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			versionName, ok := pythonVersionName(entry.Name())
			if !ok {
				continue
			}
			v, err := semver.NewVersion(versionName)
			if err != nil {
				continue
			}
			found[v] = filepath.Join(dir, entry.Name())
		}
	}
	return found
}

// resolveInterpreter resolves interpreterID to an executable path. A literal
// name ("python3.11") is resolved with exec.LookPath, matching the original
// behaviour. A value that parses as a Masterminds/semver constraint is
// instead resolved against every "python3.*" interpreter discovered on PATH,
// picking the highest version that satisfies it.
func resolveInterpreter(interpreterID string) (string, error) {
	constraint, err := semver.NewConstraint(interpreterID)
	if err != nil {
		path, lookErr := exec.LookPath(interpreterID)
		if lookErr != nil {
			return "", taskerr.UnavailableInterpreter(interpreterID)
		}
		return path, nil
	}

	var best *semver.Version
	var bestPath string
	for v, path := range discoverInterpreters() {
		if !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestPath = path
		}
	}
	if best == nil {
		return "", taskerr.UnavailableInterpreter(interpreterID)
	}
	return bestPath, nil
}
