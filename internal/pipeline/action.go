// Package pipeline drives a QRALPH project through its state machine by
// inspecting on-disk artifacts and returning a single next action per call.
package pipeline

import "encoding/json"

// Action is the closed set of things Next can return. Every variant marshals
// to exactly one JSON object with an "action" discriminator, matching the
// single-JSON-object-per-command contract the CLI surface requires.
type Action interface {
	json.Marshaler
	isAction()
}

// AgentRef is one agent the caller must spawn.
type AgentRef struct {
	Name   string `json:"name"`
	Model  string `json:"model"`
	Prompt string `json:"prompt,omitempty"`
	TaskID string `json:"task_id,omitempty"`
}

// ConfirmTemplateAction asks the caller to confirm the suggested template
// before any plan agent is spawned.
type ConfirmTemplateAction struct {
	Template            string     `json:"template"`
	TemplateDescription string     `json:"template_description"`
	Agents              []AgentRef `json:"agents"`
	ProjectPath         string     `json:"project_path"`
}

func (ConfirmTemplateAction) isAction() {}

func (a ConfirmTemplateAction) MarshalJSON() ([]byte, error) {
	type alias ConfirmTemplateAction
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{Action: "confirm_template", alias: alias(a)})
}

// SpawnAgentsAction tells the caller to spawn a set of agents and write each
// output under outputDir.
type SpawnAgentsAction struct {
	Agents    []AgentRef `json:"agents"`
	OutputDir string     `json:"output_dir"`
}

func (SpawnAgentsAction) isAction() {}

func (a SpawnAgentsAction) MarshalJSON() ([]byte, error) {
	type alias SpawnAgentsAction
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{Action: "spawn_agents", alias: alias(a)})
}

// TaskSummary is the minimal {id, summary} pair surfaced for plan review.
type TaskSummary struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// DefineTasksAction reports that plan-agent outputs were collected and asks
// the caller (or a planning agent) to populate manifest.json's tasks.
type DefineTasksAction struct {
	AnalysesSummary string `json:"analyses_summary"`
	ManifestPath    string `json:"manifest_path"`
	PlanPath        string `json:"plan_path"`
}

func (DefineTasksAction) isAction() {}

func (a DefineTasksAction) MarshalJSON() ([]byte, error) {
	type alias DefineTasksAction
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{Action: "define_tasks", alias: alias(a)})
}

// ConfirmPlanAction asks the caller to confirm the populated manifest before
// execution begins.
type ConfirmPlanAction struct {
	PlanPath     string        `json:"plan_path"`
	ManifestPath string        `json:"manifest_path"`
	Tasks        []TaskSummary `json:"tasks"`
}

func (ConfirmPlanAction) isAction() {}

func (a ConfirmPlanAction) MarshalJSON() ([]byte, error) {
	type alias ConfirmPlanAction
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{Action: "confirm_plan", alias: alias(a)})
}

// CompleteAction reports that the project reached COMPLETE.
type CompleteAction struct {
	SummaryPath string `json:"summary_path"`
}

func (CompleteAction) isAction() {}

func (a CompleteAction) MarshalJSON() ([]byte, error) {
	type alias CompleteAction
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{Action: "complete", alias: alias(a)})
}

// ErrorAction reports a blocked transition. SubPhase echoes the sub-phase the
// machine remained in, per SPEC_FULL.md §4.2's transition table.
type ErrorAction struct {
	Message  string   `json:"message"`
	SubPhase string   `json:"sub_phase,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

func (ErrorAction) isAction() {}

func (a ErrorAction) MarshalJSON() ([]byte, error) {
	type alias ErrorAction
	return json.Marshal(struct {
		Action string `json:"action"`
		alias
	}{Action: "error", alias: alias(a)})
}
