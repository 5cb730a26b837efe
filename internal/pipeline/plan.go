package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sparkst/qralph/internal/config"
	"github.com/sparkst/qralph/internal/prompt"
	"github.com/sparkst/qralph/internal/state"
)

// nextInit handles the INIT sub-phase: report the suggested template and
// its plan agents until confirmed, then spawn them.
func (m *Machine) nextInit(st *state.State, confirm bool) transitionResult {
	agents := m.planAgentNames(st.Template)

	if !confirm {
		tmpl := config.Templates[st.Template]
		refs := make([]AgentRef, len(agents))
		for i, name := range agents {
			refs[i] = AgentRef{Name: name, Model: prompt.PlanModelTier}
		}
		return transitionResult{action: ConfirmTemplateAction{
			Template:            st.Template,
			TemplateDescription: tmpl.Description,
			Agents:              refs,
			ProjectPath:         m.Layout.ProjectPath,
		}}
	}

	refs := make([]AgentRef, len(agents))
	planAgents := make([]state.AgentConfig, len(agents))
	for i, name := range agents {
		built := prompt.BuildPlanAgentPrompt(name, st.Request, st.TargetDirectory, m.Research)
		refs[i] = AgentRef{Name: built.Name, Model: built.Model, Prompt: built.Prompt}
		planAgents[i] = state.AgentConfig{Name: built.Name, Model: built.Model, Prompt: built.Prompt}
	}

	st.Pipeline.SubPhase = state.SubPhasePlanWaiting
	st.Pipeline.PlanAgents = planAgents

	return transitionResult{
		changed: true,
		action: SpawnAgentsAction{
			Agents:    refs,
			OutputDir: m.Layout.AgentOutputsDir(),
		},
	}
}

// planAgentNames resolves the template's plan agents with critical agents
// enforced, falling back to the "research" template for an unrecognized
// name (mirroring config.SuggestTemplate's own fallback).
func (m *Machine) planAgentNames(template string) []string {
	tmpl, ok := config.Templates[template]
	if !ok {
		tmpl = config.Templates["research"]
	}
	return prompt.EnforceCriticalAgents(tmpl.PlanAgents)
}

// nextPlanWaiting handles PLAN_WAITING: wait for every plan agent's output,
// then run plan_collect.
func (m *Machine) nextPlanWaiting(st *state.State) transitionResult {
	var missing []string
	outputs := map[string]string{}
	for _, a := range st.Pipeline.PlanAgents {
		path := m.Layout.AgentOutputPath(a.Name)
		if !state.ArtifactPresent(path) {
			missing = append(missing, a.Name)
			continue
		}
		outputs[a.Name] = state.ReadArtifact(path)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return transitionResult{action: ErrorAction{
			Message:  "missing plan agent outputs",
			SubPhase: string(st.Pipeline.SubPhase),
			Missing:  missing,
		}}
	}

	return m.planCollect(st, outputs)
}

// planCollect writes the manifest skeleton and PLAN.md analyses summary
// from the collected plan-agent outputs, grounded on
// qralph-pipeline.py::cmd_plan_collect.
func (m *Machine) planCollect(st *state.State, outputs map[string]string) transitionResult {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var summary strings.Builder
	for _, name := range names {
		summary.WriteString("## " + name + "\n\n")
		summary.WriteString(prompt.SanitizeAgentOutput(outputs[name]))
		summary.WriteString("\n\n")
	}
	analysesSummary := strings.TrimSpace(summary.String())

	gateCmd := m.detectQualityGate(st.TargetDirectory)

	manifest := &state.Manifest{
		Tasks:           []state.Task{},
		ParallelGroups:  [][]string{},
		QualityGateCmd:  gateCmd,
		TargetDirectory: st.TargetDirectory,
		Request:         st.Request,
		Template:        st.Template,
	}
	if err := state.SaveManifest(m.Layout.ManifestPath(), manifest); err != nil {
		return transitionResult{action: ErrorAction{Message: "writing manifest: " + err.Error()}}
	}

	planMD := "# Plan: " + st.Request + "\n\n## Analyses\n\n" + analysesSummary + "\n"
	if err := writeTextFile(m.Layout.PlanPath(), planMD); err != nil {
		return transitionResult{action: ErrorAction{Message: "writing PLAN.md: " + err.Error()}}
	}

	st.Pipeline.SubPhase = state.SubPhasePlanReview

	return transitionResult{
		changed: true,
		action: DefineTasksAction{
			AnalysesSummary: analysesSummary,
			ManifestPath:    m.Layout.ManifestPath(),
			PlanPath:        m.Layout.PlanPath(),
		},
	}
}

// detectQualityGate probes target for a test command, honoring a manual
// override from .qralph/config.yaml per SPEC_FULL.md §6.3.
func (m *Machine) detectQualityGate(target string) string {
	if m.ProjectCfg.QualityGateCmd != "" {
		return m.ProjectCfg.QualityGateCmd
	}
	return config.DetectQualityGate(target)
}

// nextPlanReview handles PLAN_REVIEW: report the manifest's tasks until
// confirmed, then run plan_finalize followed immediately by execute.
func (m *Machine) nextPlanReview(st *state.State, confirm bool) transitionResult {
	manifest, err := state.LoadManifest(m.Layout.ManifestPath())
	if err != nil {
		return transitionResult{action: ErrorAction{Message: "loading manifest: " + err.Error()}}
	}

	if !confirm {
		return transitionResult{action: ConfirmPlanAction{
			PlanPath:     m.Layout.PlanPath(),
			ManifestPath: m.Layout.ManifestPath(),
			Tasks:        taskSummaries(manifest.Tasks),
		}}
	}

	if len(manifest.Tasks) == 0 {
		return transitionResult{action: ErrorAction{
			Message:  "cannot finalize: manifest has no tasks",
			SubPhase: string(st.Pipeline.SubPhase),
		}}
	}

	return m.planFinalizeAndExecute(st, manifest)
}

func taskSummaries(tasks []state.Task) []TaskSummary {
	out := make([]TaskSummary, len(tasks))
	for i, t := range tasks {
		out[i] = TaskSummary{ID: t.ID, Summary: t.Summary}
	}
	return out
}

func writeTextFile(path, content string) error {
	return writeFile(path, []byte(content))
}
