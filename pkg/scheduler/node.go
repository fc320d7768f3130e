package scheduler

import "github.com/benschubert/wast/pkg/stepdef"

type nodeKind int8

const (
	setupKind nodeKind = iota
	runKind
)

func (k nodeKind) String() string {
	if k == setupKind {
		return "setup"
	}
	return "run"
}

type nodeID struct {
	fq   string
	kind nodeKind
}

// node is one Setup or Run node in the scheduler's internal two-phase DAG,
// grounded on the teacher's dagExecutor: an in-degree counter (remaining)
// plus a reverse adjacency list (dependents) driving a ready-queue.
type node struct {
	id         nodeID
	instance   *stepdef.StepInstance
	deps       []nodeID
	dependents []nodeID
	remaining  int
}

// buildNodes constructs the Setup/Run node pair for every instance in
// scheduled, wiring edges only between nodes whose instance is itself in
// scheduled — an instance selected via --only with a prerequisite outside
// the scheduled set is not gated on that prerequisite, since the scheduler
// has no node representing it.
func buildNodes(g graphView, scheduled []string) map[nodeID]*node {
	inSet := make(map[string]bool, len(scheduled))
	for _, fq := range scheduled {
		inSet[fq] = true
	}

	nodes := make(map[nodeID]*node, len(scheduled)*2)
	for _, fq := range scheduled {
		inst := g.Instance(fq)
		nodes[nodeID{fq, setupKind}] = &node{id: nodeID{fq, setupKind}, instance: inst}
		nodes[nodeID{fq, runKind}] = &node{id: nodeID{fq, runKind}, instance: inst}
	}

	addEdge := func(from, to nodeID) {
		nodes[from].deps = append(nodes[from].deps, to)
		nodes[to].dependents = append(nodes[to].dependents, from)
	}

	for _, fq := range scheduled {
		inst := g.Instance(fq)
		def := inst.Definition

		setupID := nodeID{fq, setupKind}
		runID := nodeID{fq, runKind}
		addEdge(runID, setupID)

		var scopedPrereqs []string
		for _, p := range g.Prerequisites(fq) {
			if inSet[p] {
				scopedPrereqs = append(scopedPrereqs, p)
			}
		}

		for _, p := range scopedPrereqs {
			addEdge(runID, nodeID{p, runKind})
			if def.IsSetupDependent {
				addEdge(setupID, nodeID{p, setupKind})
			}
		}
	}

	for _, n := range nodes {
		n.remaining = len(n.deps)
	}
	return nodes
}

// graphView is the subset of *graph.Graph the scheduler needs, kept narrow
// to avoid a scheduler -> graph -> scheduler import cycle concern and to
// keep buildNodes independently testable with a fake.
type graphView interface {
	Instance(fqName string) *stepdef.StepInstance
	Prerequisites(fqName string) []string
}
