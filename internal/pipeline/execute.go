package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/sparkst/qralph/internal/planner"
	"github.com/sparkst/qralph/internal/prompt"
	"github.com/sparkst/qralph/internal/state"
)

// planFinalizeAndExecute runs plan_finalize (compute groups, rewrite
// PLAN.md, transition to EXECUTE) immediately followed by execute (build
// group-0's agent prompts), per SPEC_FULL.md §4.2's PLAN_REVIEW row.
func (m *Machine) planFinalizeAndExecute(st *state.State, manifest *state.Manifest) transitionResult {
	groups := planner.ComputeParallelGroups(manifest.Tasks)
	manifest.ParallelGroups = groups
	if err := state.SaveManifest(m.Layout.ManifestPath(), manifest); err != nil {
		return transitionResult{action: ErrorAction{Message: "writing manifest: " + err.Error()}}
	}
	if err := writeTextFile(m.Layout.PlanPath(), renderFinalPlan(manifest, groups)); err != nil {
		return transitionResult{action: ErrorAction{Message: "writing PLAN.md: " + err.Error()}}
	}

	st.Phase = state.PhaseExecute
	st.Pipeline.SubPhase = state.SubPhaseExecWaiting
	st.Pipeline.ExecutionGroups = groups
	st.Pipeline.CurrentGroupIndex = 0

	action, err := m.buildGroupSpawnAction(manifest, groups[0])
	if err != nil {
		return transitionResult{action: ErrorAction{Message: err.Error()}}
	}
	return transitionResult{changed: true, action: action}
}

func (m *Machine) buildGroupSpawnAction(manifest *state.Manifest, group []string) (Action, error) {
	tasksByID := map[string]state.Task{}
	for _, t := range manifest.Tasks {
		tasksByID[t.ID] = t
	}

	agents := make([]AgentRef, 0, len(group))
	for _, id := range group {
		task, ok := tasksByID[id]
		if !ok {
			return nil, fmt.Errorf("execution group references unknown task %q", id)
		}
		agents = append(agents, AgentRef{
			Name:   "executor",
			Model:  prompt.ExecutionModelTier,
			Prompt: prompt.BuildExecutionPrompt(task, manifest),
			TaskID: task.ID,
		})
	}
	return SpawnAgentsAction{Agents: agents, OutputDir: m.Layout.ExecutionOutputsDir()}, nil
}

// nextExecWaiting handles EXEC_WAITING: wait for the current group's
// outputs, advance to the next group, or (on the last group) run
// execute_collect, the quality gate, and kick off verification.
func (m *Machine) nextExecWaiting(ctx context.Context, st *state.State, ctrl ControlCommand) transitionResult {
	manifest, err := state.LoadManifest(m.Layout.ManifestPath())
	if err != nil {
		return transitionResult{action: ErrorAction{Message: "loading manifest: " + err.Error()}}
	}

	groups := st.Pipeline.ExecutionGroups
	idx := st.Pipeline.CurrentGroupIndex
	if idx < 0 || idx >= len(groups) {
		return transitionResult{action: ErrorAction{Message: "current_group_index out of range"}}
	}
	group := groups[idx]

	forcedSkip := ctrl == ControlSkip
	if !forcedSkip {
		var missing []string
		for _, id := range group {
			if !state.ArtifactPresent(m.Layout.ExecutionOutputPath(id)) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return transitionResult{action: ErrorAction{
				Message:  "missing execution outputs for current group",
				SubPhase: string(st.Pipeline.SubPhase),
				Missing:  missing,
			}}
		}
	} else {
		_ = state.AppendDecision(m.Layout.DecisionsLogPath(), fmt.Sprintf("forced skip of execution group %d via CONTROL.md", idx))
	}

	if idx+1 < len(groups) {
		st.Pipeline.CurrentGroupIndex = idx + 1
		action, err := m.buildGroupSpawnAction(manifest, groups[idx+1])
		if err != nil {
			return transitionResult{action: ErrorAction{Message: err.Error()}}
		}
		return transitionResult{changed: true, action: action}
	}

	return m.executeCollectAndVerify(ctx, st, manifest)
}

// executeCollectAndVerify runs execute_collect (verify every task's output
// exists), the quality gate, and — only once the gate passes — transitions
// to VERIFY_WAIT and spawns the verifier. A failing gate leaves the machine
// in EXEC_WAITING with nothing persisted, per SPEC_FULL.md §4.2.1.
func (m *Machine) executeCollectAndVerify(ctx context.Context, st *state.State, manifest *state.Manifest) transitionResult {
	var missing []string
	outputs := map[string]string{}
	for _, t := range manifest.Tasks {
		path := m.Layout.ExecutionOutputPath(t.ID)
		if !state.ArtifactPresent(path) {
			missing = append(missing, t.ID)
			continue
		}
		outputs[t.ID] = state.ReadArtifact(path)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return transitionResult{action: ErrorAction{
			Message:  "execute_collect: missing execution outputs",
			SubPhase: string(st.Pipeline.SubPhase),
			Missing:  missing,
		}}
	}

	gate := RunQualityGate(ctx, manifest.QualityGateCmd, manifest.TargetDirectory)
	if gate.Skipped {
		_ = state.AppendDecision(m.Layout.DecisionsLogPath(), gate.Message)
	}
	if !gate.Passed {
		return transitionResult{action: ErrorAction{
			Message:  gate.Message,
			SubPhase: string(st.Pipeline.SubPhase),
		}}
	}

	st.Phase = state.PhaseVerify
	st.Pipeline.SubPhase = state.SubPhaseVerifyWait

	verifierPrompt := prompt.BuildVerificationPrompt(manifest, outputs, manifest.TargetDirectory)
	return transitionResult{
		changed: true,
		action: SpawnAgentsAction{
			Agents:    []AgentRef{{Name: "verifier", Model: prompt.VerificationModelTier, Prompt: verifierPrompt}},
			OutputDir: m.Layout.VerificationDir(),
		},
	}
}

func renderFinalPlan(manifest *state.Manifest, groups [][]string) string {
	out := "# Plan: " + manifest.Request + "\n\n## Tasks\n\n"
	for _, t := range manifest.Tasks {
		out += "- **" + t.ID + "**: " + t.Summary + "\n"
	}
	out += "\n## Execution Groups\n\n"
	for i, g := range groups {
		out += fmt.Sprintf("%d. %v\n", i+1, g)
	}
	if manifest.QualityGateCmd != "" {
		out += "\n## Quality Gate\n\n`" + manifest.QualityGateCmd + "`\n"
	}
	return out
}
