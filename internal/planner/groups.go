// Package planner computes parallel execution groups for a manifest's
// tasks, per SPEC_FULL.md §4.3.
package planner

import (
	"sort"

	"github.com/sparkst/qralph/internal/state"
)

// MaxParallelAgents is the parallelism cap named throughout the spec
// (SPEC_FULL.md §4.3, §5, GLOSSARY).
const MaxParallelAgents = 4

// ComputeParallelGroups computes the execution order of tasks: an explicit
// depends_on graph augmented with implicit file-overlap edges, a greedy
// ready-set grouping with lexicographic cycle-breaking, then a flatten/
// rechunk pass capping every emitted group at MaxParallelAgents. Grounded on
// qralph-pipeline.py::compute_parallel_groups plus cmd_execute's separate
// recap pass, kept here as two composed steps mirroring the Python
// original's own structure.
func ComputeParallelGroups(tasks []state.Task) [][]string {
	ready := computeReadyGroups(tasks)
	return rechunk(ready, MaxParallelAgents)
}

// computeReadyGroups builds the dependency graph and repeatedly emits the
// set of not-yet-placed tasks whose predecessors are fully placed, each set
// ordered by task id, shorter ids first and equal-length ids lexicographically
// (so T2 precedes T10). A task set with no ready member (a cycle) is
// broken by placing the lexicographically smallest remaining task alone.
func computeReadyGroups(tasks []state.Task) [][]string {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[string]state.Task, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		order = append(order, t.ID)
	}

	predecessors := make(map[string]map[string]bool, len(tasks))
	for _, id := range order {
		predecessors[id] = map[string]bool{}
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			// An unknown dep is kept in the predecessor set rather than
			// dropped: it can never be in `placed`, so the task stays
			// unready until the cycle-break forces it out alone, matching
			// qralph-pipeline.py::compute_parallel_groups on a malformed
			// manifest referencing a nonexistent depends_on id.
			predecessors[t.ID][dep] = true
		}
	}
	// Implicit file-overlap edges: for i<j in input order with overlapping
	// files, an edge order[i] -> order[j].
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if filesOverlap(byID[order[i]].Files, byID[order[j]].Files) {
				predecessors[order[j]][order[i]] = true
			}
		}
	}

	placed := map[string]bool{}
	remaining := append([]string{}, order...)
	var groups [][]string

	for len(remaining) > 0 {
		var ready []string
		for _, id := range remaining {
			allPlaced := true
			for pred := range predecessors[id] {
				if !placed[pred] {
					allPlaced = false
					break
				}
			}
			if allPlaced {
				ready = append(ready, id)
			}
		}

		if len(ready) == 0 {
			sort.Strings(remaining)
			ready = []string{remaining[0]}
		} else {
			sort.Slice(ready, func(i, j int) bool {
				if len(ready[i]) != len(ready[j]) {
					return len(ready[i]) < len(ready[j])
				}
				return ready[i] < ready[j]
			})
		}

		groups = append(groups, ready)
		for _, id := range ready {
			placed[id] = true
		}
		remaining = removeAll(remaining, ready)
	}

	return groups
}

func filesOverlap(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		if set[f] {
			return true
		}
	}
	return false
}

func removeAll(list, remove []string) []string {
	removeSet := make(map[string]bool, len(remove))
	for _, r := range remove {
		removeSet[r] = true
	}
	var out []string
	for _, v := range list {
		if !removeSet[v] {
			out = append(out, v)
		}
	}
	return out
}

// rechunk flattens oversized groups and re-chunks them so no emitted group
// exceeds max members. Only a group that individually exceeds max is split;
// the excess becomes the head of the next group, preserving relative order,
// exactly as SPEC_FULL.md §4.3 describes. Groups that individually fit are
// emitted unchanged, which is what keeps dependency-separated groups (e.g.
// two tasks sharing a file) from being merged just because both are small.
func rechunk(groups [][]string, max int) [][]string {
	var out [][]string
	var carry []string

	for _, g := range groups {
		combined := append(append([]string{}, carry...), g...)
		carry = nil

		if len(combined) <= max {
			out = append(out, combined)
			continue
		}
		for len(combined) > max {
			out = append(out, combined[:max])
			combined = combined[max:]
		}
		carry = combined
	}

	if len(carry) > 0 {
		out = append(out, carry)
	}

	return out
}
