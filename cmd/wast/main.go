// Command wast runs a wastfile.yaml pipeline: resolving the step registry,
// expanding parametrized instances into a dependency graph, selecting a
// subset of it, and driving that subset through the concurrent scheduler.
//
// Grounded on the teacher's cmd/kubexm root command: a single cobra.Command
// whose RunE builds the Config and then initializes pkg/logger from it, flags
// bound directly onto package-level vars, and an Execute/os.Exit split
// between main and the command tree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/benschubert/wast/pkg/artifact"
	"github.com/benschubert/wast/pkg/config"
	"github.com/benschubert/wast/pkg/envcache"
	"github.com/benschubert/wast/pkg/graph"
	"github.com/benschubert/wast/pkg/loader"
	"github.com/benschubert/wast/pkg/logger"
	"github.com/benschubert/wast/pkg/registry"
	"github.com/benschubert/wast/pkg/scheduler"
	"github.com/benschubert/wast/pkg/taskerr"
)

var (
	configPath              string
	cachePath               string
	stepFlag                = &stepListFlag{}
	onlyFlag                = &stepListFlag{}
	exceptFlag              = &stepListFlag{}
	listFlag                bool
	listDepsFlag            bool
	verboseCount            int
	quietCount              int
	jobs                    int
	setupOnly               bool
	noSetup                 bool
	failFast                bool
	clean                   bool
	colorsOn                bool
	colorsOff               bool
	skipMissingInterpreters bool
	showVersion             bool
)

var rootCmd = &cobra.Command{
	Use:   "wast",
	Short: "wast runs a developer task pipeline declared in a wastfile.yaml",
	Long: `wast is a DAG-based task orchestrator: it resolves a registry of
declaratively-defined steps (lint, test, build, ...), expands parametrized
steps into concrete instances, selects a subset of the resulting graph, and
runs that subset concurrently, each instance in its own hermetic cached
interpreter environment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "wastfile.yaml", "path to the pipeline script")
	flags.StringVar(&cachePath, "cache-path", "./.wast", "cache root for environments and instance scratch directories")
	flags.VarP(stepFlag, "step", "s", "base run set (comma-or-repeat); expanded through requires closure")
	flags.VarP(onlyFlag, "only", "o", "exact run set (comma-or-repeat); skips closure expansion of requires")
	flags.VarP(exceptFlag, "except", "e", "subtracted from the run set after closure (comma-or-repeat)")
	flags.BoolVarP(&listFlag, "list", "l", false, "list the selected instances; do not execute")
	flags.BoolVar(&listDepsFlag, "list-dependencies", false, "with --list, also print each instance's direct prerequisites")
	flags.CountVarP(&verboseCount, "verbose", "v", "increase log verbosity (repeatable)")
	flags.CountVarP(&quietCount, "quiet", "q", "decrease log verbosity (repeatable)")
	flags.IntVarP(&jobs, "jobs", "j", 1, "parallelism; 0 means use the detected CPU count")
	flags.BoolVar(&setupOnly, "setup-only", false, "run only the Setup phase of every selected instance")
	flags.BoolVar(&noSetup, "no-setup", false, "skip the Setup phase; environments must already exist")
	flags.BoolVar(&failFast, "ff", false, "cancel remaining work on the first failure")
	flags.BoolVar(&failFast, "fail-fast", false, "cancel remaining work on the first failure")
	flags.BoolVarP(&clean, "clean", "c", false, "delete the cache directory before running")
	flags.BoolVar(&colorsOn, "colors", false, "force colored output on")
	flags.BoolVar(&colorsOff, "no-colors", false, "force colored output off")
	flags.BoolVar(&skipMissingInterpreters, "skip-missing-interpreters", false, "demote a missing-interpreter error to Skipped")
	flags.BoolVar(&showVersion, "version", false, "print the version banner and exit")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(runMain(ctx))
}

func runMain(ctx context.Context) int {
	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		if wastErr, ok := err.(taskerr.WastError); ok {
			logger.Get().Errorf("%s", wastErr.Error())
			return wastErr.ExitCode()
		}
		logger.Get().Errorf("%s", err.Error())
		return taskerr.ExitFailure
	}
	return taskerr.ExitSuccess
}

func run(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Println(figure.NewFigure("wast", "", true).String())
		fmt.Println(versionString())
		return nil
	}

	if setupOnly && noSetup {
		return fmt.Errorf("--setup-only and --no-setup are mutually exclusive")
	}

	colors, err := resolveColorsFlag()
	if err != nil {
		return err
	}

	cfg, err := config.New(config.Options{
		UserConfig:              configPath,
		CachePath:               cachePath,
		Verbosity:               verboseCount - quietCount,
		Colors:                  colors,
		NJobs:                   jobs,
		SkipMissingInterpreters: skipMissingInterpreters,
		SkipSetup:               noSetup,
		SkipRun:                 setupOnly,
		FailFast:                failFast,
	})
	if err != nil {
		return err
	}

	logger.Init(verbosityToLoggerOptions(cfg))

	if cfg.Verbosity >= 2 {
		fmt.Println(figure.NewFigure("wast", "", true).String())
	}

	if clean {
		if err := cfg.Clean(); err != nil {
			return err
		}
	}

	reg := registry.New()
	if err := loader.Load(cfg.UserConfig, reg); err != nil {
		return err
	}

	g, err := graph.Build(reg.All())
	if err != nil {
		return err
	}

	scheduled, err := g.Select(stepFlag.values, onlyFlag.values, exceptFlag.values)
	if err != nil {
		return err
	}

	if listFlag {
		fmt.Print(scheduler.List(g, scheduled, listDepsFlag))
		return nil
	}

	cache := envcache.New(cfg)
	bus := artifact.New(g)
	sched := scheduler.New(g, cache, bus, cfg, scheduler.Options{
		NJobs:                   cfg.NJobs,
		SkipSetup:               cfg.SkipSetup,
		SkipRun:                 cfg.SkipRun,
		FailFast:                cfg.FailFast,
		SkipMissingInterpreters: cfg.SkipMissingInterpreters,
	})

	report, runErr := sched.Run(cmd.Context(), scheduled)
	logReport(report)
	return runErr
}

// resolveColorsFlag turns the two mutually-exclusive boolean flags into the
// *bool pkg/config expects: nil means "neither was passed, defer to the
// environment/tty precedence chain".
func resolveColorsFlag() (*bool, error) {
	if colorsOn && colorsOff {
		return nil, fmt.Errorf("--colors and --no-colors are mutually exclusive")
	}
	if colorsOn {
		v := true
		return &v, nil
	}
	if colorsOff {
		v := false
		return &v, nil
	}
	return nil, nil
}

// verbosityToLoggerOptions maps the verbose/quiet count onto pkg/logger's
// Level scale: InfoLevel is the baseline (verbosity == 0); each -v lowers
// the threshold by one level (toward Debug), each -q raises it.
func verbosityToLoggerOptions(cfg *config.Config) logger.Options {
	opts := logger.DefaultOptions()
	opts.ColorConsole = cfg.Colors

	level := logger.InfoLevel - logger.Level(cfg.Verbosity)
	if level < logger.DebugLevel {
		level = logger.DebugLevel
	}
	if level > logger.FailLevel {
		level = logger.FailLevel
	}
	opts.ConsoleLevel = level
	return opts
}

func logReport(report *scheduler.Report) {
	if report == nil {
		return
	}
	log := logger.Get()
	for _, name := range report.Succeeded {
		log.Successf("%s succeeded", name)
	}
	for _, name := range report.Skipped {
		log.Infof("%s skipped", name)
	}
	for _, name := range report.Failed {
		log.Errorf("%s failed", name)
	}
	for _, name := range report.Blocked {
		log.Warnf("%s blocked", name)
	}
	for _, name := range report.Cancelled {
		log.Warnf("%s cancelled", name)
	}
}

var _ pflag.Value = (*stepListFlag)(nil)

func versionString() string {
	return fmt.Sprintf("wast %s", version)
}
