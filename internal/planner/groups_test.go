package planner

import (
	"reflect"
	"testing"

	"github.com/sparkst/qralph/internal/state"
)

func task(id string, deps, files []string) state.Task {
	return state.Task{ID: id, DependsOn: deps, Files: files}
}

func TestComputeParallelGroupsEmpty(t *testing.T) {
	got := ComputeParallelGroups(nil)
	if got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestComputeParallelGroupsSingleTask(t *testing.T) {
	got := ComputeParallelGroups([]state.Task{task("T1", nil, nil)})
	want := [][]string{{"T1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeParallelGroupsFileOverlapSerializes(t *testing.T) {
	tasks := []state.Task{
		task("T1", nil, []string{"a.go"}),
		task("T2", nil, []string{"a.go"}),
	}
	got := ComputeParallelGroups(tasks)
	want := [][]string{{"T1"}, {"T2"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeParallelGroupsDisjointTenTasksRechunk(t *testing.T) {
	var tasks []state.Task
	ids := []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T8", "T9", "T10"}
	for _, id := range ids {
		tasks = append(tasks, task(id, nil, []string{id + ".go"}))
	}
	got := ComputeParallelGroups(tasks)
	want := [][]string{
		{"T1", "T2", "T3", "T4"},
		{"T5", "T6", "T7", "T8"},
		{"T9", "T10"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeParallelGroupsDependsOnChain(t *testing.T) {
	tasks := []state.Task{
		task("T1", nil, []string{"a.go"}),
		task("T2", nil, []string{"b.go"}),
		task("T3", nil, []string{"c.go"}),
		task("T4", []string{}, []string{"a.go", "b.go"}),
	}
	got := ComputeParallelGroups(tasks)
	want := [][]string{{"T1", "T2", "T3"}, {"T4"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeParallelGroupsExplicitDependsOn(t *testing.T) {
	tasks := []state.Task{
		task("T2", []string{"T1"}, nil),
		task("T1", nil, nil),
	}
	got := ComputeParallelGroups(tasks)
	want := [][]string{{"T1"}, {"T2"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeParallelGroupsCycleBreaksLexicographically(t *testing.T) {
	tasks := []state.Task{
		task("B", []string{"A"}, nil),
		task("A", []string{"B"}, nil),
	}
	got := ComputeParallelGroups(tasks)
	want := [][]string{{"A"}, {"B"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeParallelGroupsEveryTaskAppearsExactlyOnce(t *testing.T) {
	var tasks []state.Task
	for i := 0; i < 13; i++ {
		id := string(rune('A' + i))
		tasks = append(tasks, task(id, nil, []string{id + ".go"}))
	}
	groups := ComputeParallelGroups(tasks)

	seen := map[string]bool{}
	for _, g := range groups {
		if len(g) > MaxParallelAgents {
			t.Fatalf("group %v exceeds cap of %d", g, MaxParallelAgents)
		}
		for _, id := range g {
			if seen[id] {
				t.Fatalf("task %s appears more than once", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != len(tasks) {
		t.Fatalf("expected %d tasks placed, got %d", len(tasks), len(seen))
	}
}

func TestComputeParallelGroupsUnknownDependsOnBlocksUntilCycleBreak(t *testing.T) {
	// A depends_on id with no matching task can never be satisfied, so the
	// referencing task stays unready and is only emitted alone by the
	// cycle-break, never grouped alongside a task that has no such
	// phantom predecessor. Matches qralph-pipeline.py::compute_parallel_groups.
	tasks := []state.Task{
		task("T1", []string{"does-not-exist"}, nil),
		task("T2", nil, nil),
	}
	got := ComputeParallelGroups(tasks)
	want := [][]string{{"T2"}, {"T1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestComputeParallelGroupsUnknownDependsOnAlone(t *testing.T) {
	tasks := []state.Task{task("T1", []string{"does-not-exist"}, nil)}
	got := ComputeParallelGroups(tasks)
	want := [][]string{{"T1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
