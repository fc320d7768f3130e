package scheduler

import (
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/benschubert/wast/pkg/graph"
)

// List renders the `--list`/`--list-dependencies` output: every selected
// instance, in dependency-first order, optionally annotated with its direct
// prerequisites.
func List(g *graph.Graph, selected []string, withDependencies bool) string {
	order := g.TopoOrder()
	selectedSet := make(map[string]bool, len(selected))
	for _, fq := range selected {
		selectedSet[fq] = true
	}

	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	if withDependencies {
		table.SetHeader([]string{"Step", "Kind", "Run by default", "Requires"})
	} else {
		table.SetHeader([]string{"Step", "Kind", "Run by default"})
	}

	for _, fq := range order {
		if !selectedSet[fq] {
			continue
		}
		kind := "step"
		if g.IsGroup(fq) {
			kind = "group"
		}
		runByDefault := "no"
		if g.Instance(fq).Definition.RunByDefault {
			runByDefault = "yes"
		}
		if withDependencies {
			table.Append([]string{fq, kind, runByDefault, strings.Join(g.Prerequisites(fq), ", ")})
		} else {
			table.Append([]string{fq, kind, runByDefault})
		}
	}
	table.Render()
	return sb.String()
}
