// Package config builds and holds the pipeline's global, immutable
// configuration: CLI-derived options, the curated environment variable
// allow-list, color precedence, and the generated PYTHONHASHSEED-equivalent
// seed, ported from the original tool's Config construction.
package config

import (
	"crypto/rand"
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/fatih/color"

	"github.com/benschubert/wast/pkg/taskerr"
)

// allowedEnvKeys is the filtered allow-list of environment variables
// propagated verbatim into child processes when present in the launching
// environment.
var allowedEnvKeys = []string{
	"URL_CA_BUNDLE", "PATH", "LANG", "LANGUAGE", "LD_LIBRARY_PATH",
	"PIP_INDEX_URL", "PIP_EXTRA_INDEX_URL", "PYTHONHASHSEED",
	"REQUESTS_CA_BUNDLE", "SSL_CERT_FILE", "HTTP_PROXY", "HTTPS_PROXY",
	"NO_PROXY", "TMPDIR",
}

// Options are the as-parsed CLI flags/values passed into New. Colors is nil
// when the user passed neither --colors nor --no-colors, deferring to the
// environment/tty precedence.
type Options struct {
	UserConfig              string
	CachePath               string
	Verbosity               int
	Colors                  *bool
	NJobs                   int
	SkipMissingInterpreters bool
	SkipSetup               bool
	SkipRun                 bool
	FailFast                bool
}

// Config is computed once from CLI options plus the environment, and is
// immutable for the remainder of the process (spec.md §5: "computed once in
// Config construction; immutable thereafter").
type Config struct {
	UserConfig string
	CachePath  string
	VenvsPath  string

	Verbosity               int
	SkipMissingInterpreters bool
	SkipSetup               bool
	SkipRun                 bool
	FailFast                bool
	NJobs                   int

	Colors  bool
	Environ map[string]string
}

// New builds the immutable Config from opts and the current process
// environment.
func New(opts Options) (*Config, error) {
	cachePath, err := filepath.Abs(opts.CachePath)
	if err != nil {
		return nil, err
	}

	njobs := opts.NJobs
	if njobs == 0 {
		njobs = runtime.NumCPU()
	}

	environ := make(map[string]string, len(allowedEnvKeys))
	for _, key := range allowedEnvKeys {
		if v, ok := os.LookupEnv(key); ok {
			environ[key] = v
		}
	}

	if _, ok := environ["PYTHONHASHSEED"]; !ok {
		seed, err := randomHashSeed()
		if err != nil {
			return nil, err
		}
		environ["PYTHONHASHSEED"] = seed
	}

	colors, err := resolveColors(opts.Colors)
	if err != nil {
		return nil, err
	}
	if colors {
		environ["PY_COLORS"] = "1"
		environ["FORCE_COLOR"] = "1"
	} else {
		environ["PY_COLORS"] = "0"
		environ["NO_COLOR"] = "0"
	}

	return &Config{
		UserConfig:              opts.UserConfig,
		CachePath:               cachePath,
		VenvsPath:               filepath.Join(cachePath, "venvs"),
		Verbosity:               opts.Verbosity,
		SkipMissingInterpreters: opts.SkipMissingInterpreters,
		SkipSetup:               opts.SkipSetup,
		SkipRun:                 opts.SkipRun,
		FailFast:                opts.FailFast,
		NJobs:                   njobs,
		Colors:                  colors,
		Environ:                 environ,
	}, nil
}

// Clean deletes the entire cache root, matching the original's
// shutil.rmtree(config.cache_path) — the spec recommends wiping everything
// rather than selectively pruning scratch directories.
func (c *Config) Clean() error {
	return os.RemoveAll(c.CachePath)
}

// InstanceCachePath returns the per-instance scratch directory exposed to
// step callables via StepRunner.CachePath.
func (c *Config) InstanceCachePath(fqInstanceName string) string {
	return filepath.Join(c.CachePath, "steps", fqInstanceName)
}

// LogsPath returns the directory holding one aggregate log file per pipeline
// invocation, named by pkg/scheduler with a generated run ID.
func (c *Config) LogsPath() string {
	return filepath.Join(c.CachePath, "logs")
}

// resolveColors implements the precedence chain: an explicit CLI flag wins;
// else PY_COLORS (0/1, anything else is a usage error); else NO_COLOR (any
// value forces off); else FORCE_COLOR (any value forces on); else tty
// auto-detect.
func resolveColors(forced *bool) (bool, error) {
	if forced != nil {
		return *forced, nil
	}

	if v, ok := os.LookupEnv("PY_COLORS"); ok {
		switch v {
		case "1":
			return true, nil
		case "0":
			return false, nil
		default:
			return false, taskerr.InvalidColorSetting(v)
		}
	}

	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false, nil
	}

	if _, ok := os.LookupEnv("FORCE_COLOR"); ok {
		return true, nil
	}

	return isTerminal(), nil
}

// isTerminal defers to fatih/color's own tty/NO_COLOR detection, performed
// once at its package init against os.Stdout.
func isTerminal() bool {
	return !color.NoColor
}

// randomHashSeed returns a decimal string uniform in [1, 2^32-1], matching
// random.randint(1, 4294967295) from the original _config.py.
func randomHashSeed() (string, error) {
	const max = 4294967295 // 2^32 - 1
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+1, 10), nil
}

// ReportUnusedStepArgs returns, sorted, the names in stepArgs that were
// never consumed — i.e. CLI-style per-step arguments attached to a step
// that was never scheduled to run. Ported from _config.py's
// _report_unused_arguments as a diagnostic warning, not a hard error.
func ReportUnusedStepArgs(stepArgs map[string][]string, consumed map[string]bool) []string {
	var unused []string
	for name := range stepArgs {
		if !consumed[name] {
			unused = append(unused, name)
		}
	}
	sort.Strings(unused)
	return unused
}
