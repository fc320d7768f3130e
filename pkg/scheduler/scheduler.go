// Package scheduler implements the concurrent ready-queue executor
// (component F): a bounded pool of n_jobs worker goroutines driving each
// instance through its Setup then Run node, with cancellation, fail-fast
// cascading Blocked propagation, and skip_setup/skip_run switches.
//
// Grounded on the teacher's pkg/engine/executor.go dagExecutor: an
// in-degree map plus dependents map feeding a ready queue, dispatched onto a
// semaphore-bounded goroutine pool (here golang.org/x/sync/semaphore,
// replacing the teacher's hand-rolled channel semaphore). Each Run call also
// tags an aggregate transcript of the invocation with a generated
// github.com/google/uuid run ID under cache_path/logs/<uuid>.log; see
// runlog.go.
package scheduler

import (
	"context"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/benschubert/wast/pkg/artifact"
	"github.com/benschubert/wast/pkg/config"
	"github.com/benschubert/wast/pkg/envcache"
	"github.com/benschubert/wast/pkg/logger"
	"github.com/benschubert/wast/pkg/runner"
	"github.com/benschubert/wast/pkg/stepdef"
	"github.com/benschubert/wast/pkg/taskerr"
)

// Options are the scheduling switches of spec.md §4.F/§6.
type Options struct {
	NJobs                   int
	SkipSetup               bool
	SkipRun                 bool
	FailFast                bool
	SkipMissingInterpreters bool
}

// Scheduler drives a Graph's selected instances through Setup then Run.
type Scheduler struct {
	graph graphView
	cache *envcache.Cache
	bus   *artifact.Bus
	cfg   *config.Config
	opts  Options
	sem   *semaphore.Weighted
	log   *logger.Logger
	outMu sync.Mutex
}

// New returns a Scheduler. njobs <= 0 is treated as 1; pkg/config.New already
// maps n_jobs == 0 to the detected CPU count before this is constructed.
func New(g graphView, cache *envcache.Cache, bus *artifact.Bus, cfg *config.Config, opts Options) *Scheduler {
	njobs := opts.NJobs
	if njobs <= 0 {
		njobs = 1
	}
	return &Scheduler{
		graph: g,
		cache: cache,
		bus:   bus,
		cfg:   cfg,
		opts:  opts,
		sem:   semaphore.NewWeighted(int64(njobs)),
		log:   logger.Get(),
	}
}

// Report is the end-of-run accounting, one Run-node outcome per instance.
type Report struct {
	Succeeded []string
	Skipped   []string
	Blocked   []string
	Cancelled []string
	Failed    []string
}

// Run drives every instance in scheduled through Setup then Run and blocks
// until all have reached a terminal state (or the run is cancelled). The
// returned error is a taskerr.WastError (FailedPipeline) iff any instance's
// Run node ended Failed; ctx cancellation or a fail_fast trigger still
// drains in-flight work before Run returns.
func (s *Scheduler) Run(ctx context.Context, scheduled []string) (*Report, error) {
	nodes := buildNodes(s.graph, scheduled)

	rlog := newRunLog(s.cfg.LogsPath())
	defer rlog.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu         sync.Mutex
		states     = make(map[nodeID]stepdef.State, len(nodes))
		failFastOn bool
	)

	// eg drives the per-node fan-out: every Setup/Run invocation runs as its
	// own eg.Go goroutine, bounded by s.sem rather than by eg's own
	// (unbounded) concurrency, mirroring the teacher's host-fan-out errgroup
	// repurposed here for phase fan-out instead of per-host fan-out.
	eg, _ := errgroup.WithContext(context.Background())

	var dispatch func(n *node)
	var finish func(n *node, state stepdef.State)

	dispatch = func(n *node) {
		eg.Go(func() error {
			if err := s.sem.Acquire(runCtx, 1); err != nil {
				finish(n, stepdef.Cancelled)
				return nil
			}
			state := s.execute(runCtx, n)
			s.sem.Release(1)
			finish(n, state)
			return nil
		})
	}

	finish = func(n *node, state stepdef.State) {
		rlog.writef("%s %s -> %s", n.id.kind, n.id.fq, state)

		if n.id.kind == runKind && state == stepdef.Succeeded {
			s.bus.MarkSucceeded(n.id.fq)
		}

		mu.Lock()
		states[n.id] = state
		cascadesBlock := state != stepdef.Succeeded

		if s.opts.FailFast && state == stepdef.Failed && !failFastOn {
			failFastOn = true
			cancel()
		}

		var toDispatch, toBlock []*node
		for _, depID := range n.dependents {
			dn := nodes[depID]
			if cascadesBlock {
				if _, already := states[depID]; !already {
					toBlock = append(toBlock, dn)
				}
				continue
			}
			dn.remaining--
			if dn.remaining == 0 {
				toDispatch = append(toDispatch, dn)
			}
		}
		mu.Unlock()

		for _, dn := range toBlock {
			// A skipped Setup node skips its own instance's Run node; every
			// other dependent is Blocked.
			if state == stepdef.Skipped && n.id.kind == setupKind && dn.id.fq == n.id.fq {
				finish(dn, stepdef.Skipped)
				continue
			}
			finish(dn, stepdef.Blocked)
		}
		for _, dn := range toDispatch {
			if runCtx.Err() != nil {
				finish(dn, stepdef.Cancelled)
				continue
			}
			dispatch(dn)
		}
	}

	var initial []*node
	for _, n := range nodes {
		if n.remaining == 0 {
			initial = append(initial, n)
		}
	}
	for _, n := range initial {
		dispatch(n)
	}

	eg.Wait()

	report, err := s.buildReport(scheduled, states)
	rlog.writef(
		"run finished: %d succeeded, %d skipped, %d blocked, %d cancelled, %d failed",
		len(report.Succeeded), len(report.Skipped), len(report.Blocked), len(report.Cancelled), len(report.Failed),
	)
	return report, err
}

func (s *Scheduler) buildReport(scheduled []string, states map[nodeID]stepdef.State) (*Report, error) {
	report := &Report{}
	for _, fq := range scheduled {
		switch states[nodeID{fq, runKind}] {
		case stepdef.Succeeded:
			report.Succeeded = append(report.Succeeded, fq)
		case stepdef.Skipped:
			report.Skipped = append(report.Skipped, fq)
		case stepdef.Blocked:
			report.Blocked = append(report.Blocked, fq)
		case stepdef.Cancelled:
			report.Cancelled = append(report.Cancelled, fq)
		case stepdef.Failed:
			report.Failed = append(report.Failed, fq)
		}
	}
	sort.Strings(report.Succeeded)
	sort.Strings(report.Skipped)
	sort.Strings(report.Blocked)
	sort.Strings(report.Cancelled)
	sort.Strings(report.Failed)

	if len(report.Failed) > 0 {
		return report, taskerr.NewFailedPipeline(len(report.Failed), len(report.Blocked), len(report.Cancelled))
	}
	return report, nil
}

// execute dispatches to the Setup or Run handler and converts any panic
// escaping a step/setup callable into a Failed terminal state rather than
// letting it unwind across the instance boundary.
func (s *Scheduler) execute(ctx context.Context, n *node) (state stepdef.State) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("%s panicked: %v", n.instance.FQName(), r)
			state = stepdef.Failed
		}
	}()

	if n.id.kind == setupKind {
		return s.executeSetup(ctx, n)
	}
	return s.executeRun(ctx, n)
}

func (s *Scheduler) executeSetup(ctx context.Context, n *node) stepdef.State {
	inst := n.instance
	def := inst.Definition

	if def.IsGroup {
		return stepdef.Succeeded
	}
	if s.opts.SkipSetup {
		return stepdef.Succeeded
	}

	var handle *envcache.Handle
	if def.IsManaged {
		h, err := s.cache.Prepare(ctx, def.Name, def.Python, def.Dependencies)
		if err != nil {
			if s.opts.SkipMissingInterpreters && isUnavailableInterpreter(err) {
				return stepdef.Skipped
			}
			s.log.Errorf("setup failed for %s: %v", inst.FQName(), err)
			return stepdef.Failed
		}
		handle = h
	} else {
		handle = s.cache.PrepareUnmanaged(def.Name)
	}

	if def.Setup == nil {
		return stepdef.Succeeded
	}

	out, errOut := s.instanceWriters(inst.FQName())
	defer out.Close()
	defer errOut.Close()

	r := runner.New(ctx, handle, s.bus, s.cfg, inst.FQName(), out, errOut)
	if err := def.Setup(ctx, r, inst.ParameterVector); err != nil {
		s.log.Errorf("setup failed for %s: %v", inst.FQName(), err)
		return stepdef.Failed
	}
	return stepdef.Succeeded
}

func (s *Scheduler) executeRun(ctx context.Context, n *node) stepdef.State {
	inst := n.instance
	def := inst.Definition

	if def.IsGroup {
		return stepdef.Succeeded
	}
	if s.opts.SkipRun {
		return stepdef.Succeeded
	}

	var handle *envcache.Handle
	if def.IsManaged {
		h, ok := s.cache.Lookup(def.Name, def.Python)
		if !ok {
			if s.opts.SkipMissingInterpreters {
				return stepdef.Skipped
			}
			s.log.Errorf("no prepared environment for %s", inst.FQName())
			return stepdef.Failed
		}
		handle = h
	} else {
		handle = s.cache.PrepareUnmanaged(def.Name)
	}

	out, errOut := s.instanceWriters(inst.FQName())
	defer out.Close()
	defer errOut.Close()

	r := runner.New(ctx, handle, s.bus, s.cfg, inst.FQName(), out, errOut)
	if err := def.Callable(ctx, r, inst.ParameterVector); err != nil {
		s.log.Errorf("%s failed: %v", inst.FQName(), err)
		return stepdef.Failed
	}
	return stepdef.Succeeded
}

func (s *Scheduler) instanceWriters(fqName string) (*prefixWriter, *prefixWriter) {
	return newPrefixWriter(fqName, s.cfg.Colors, os.Stdout, &s.outMu),
		newPrefixWriter(fqName, s.cfg.Colors, os.Stderr, &s.outMu)
}

// isUnavailableInterpreter distinguishes Prepare's "interpreter not on
// PATH" failure (the only WastError it can return) from venv-creation or
// install failures, which are plain wrapped errors.
func isUnavailableInterpreter(err error) bool {
	_, ok := err.(taskerr.WastError)
	return ok
}
