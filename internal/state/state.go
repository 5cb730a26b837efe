// Package state implements the QRALPH state store: a typed, checksummed,
// crash-safe persistence layer for the pipeline's State record
// (SPEC_FULL.md §3, §4.1).
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sparkst/qralph/internal/logging"
	"github.com/sparkst/qralph/internal/qerr"
)

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,99}$`)

// Phase is the coarse phase of a project.
type Phase string

const (
	PhasePlan     Phase = "PLAN"
	PhaseExecute  Phase = "EXECUTE"
	PhaseVerify   Phase = "VERIFY"
	PhaseComplete Phase = "COMPLETE"
)

// Valid reports whether p is one of the four enumerated phases.
func (p Phase) Valid() bool {
	switch p {
	case PhasePlan, PhaseExecute, PhaseVerify, PhaseComplete:
		return true
	}
	return false
}

// SubPhase is the fine-grained vertex of the state machine (SPEC_FULL.md §4.2).
type SubPhase string

const (
	SubPhaseInit        SubPhase = "INIT"
	SubPhasePlanWaiting SubPhase = "PLAN_WAITING"
	SubPhasePlanReview  SubPhase = "PLAN_REVIEW"
	SubPhaseExecWaiting SubPhase = "EXEC_WAITING"
	SubPhaseVerifyWait  SubPhase = "VERIFY_WAIT"
	SubPhaseComplete    SubPhase = "COMPLETE"
)

// Valid reports whether sp is one of the six enumerated sub-phases.
func (sp SubPhase) Valid() bool {
	switch sp {
	case SubPhaseInit, SubPhasePlanWaiting, SubPhasePlanReview,
		SubPhaseExecWaiting, SubPhaseVerifyWait, SubPhaseComplete:
		return true
	}
	return false
}

// AgentConfig is the triple (name, model, prompt) the pipeline returns as
// data; it never selects or invokes the model itself.
type AgentConfig struct {
	Name   string `json:"name"`
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	TaskID string `json:"task_id,omitempty"`
}

// CircuitBreakerState is the budget-accounting portion of State.
type CircuitBreakerState struct {
	TotalTokens  int            `json:"total_tokens"`
	TotalCostUSD float64        `json:"total_cost_usd"`
	ErrorCounts  map[string]int `json:"error_counts"`
}

// PipelineState is the nested pipeline-specific portion of State.
type PipelineState struct {
	SubPhase          SubPhase      `json:"sub_phase"`
	PlanAgents        []AgentConfig `json:"plan_agents"`
	ExecutionGroups   [][]string    `json:"execution_groups"`
	CurrentGroupIndex int           `json:"current_group_index"`
}

// State is the single persisted record described in SPEC_FULL.md §3.
type State struct {
	ProjectID       string              `json:"project_id"`
	ProjectPath     string              `json:"project_path"`
	TargetDirectory string              `json:"target_directory"`
	Request         string              `json:"request"`
	Phase           Phase               `json:"phase"`
	Pipeline        PipelineState       `json:"pipeline"`
	Template        string              `json:"template"`
	CircuitBreakers CircuitBreakerState `json:"circuit_breakers"`
	HealAttempts    int                 `json:"heal_attempts"`
	CreatedAt       string              `json:"created_at"`
	CompletedAt     string              `json:"completed_at,omitempty"`
	Checksum        string              `json:"_checksum,omitempty"`
}

// New returns a fresh State in INIT/PLAN for a newly accepted request.
func New(projectID, projectPath, targetDirectory, request, template string) *State {
	return &State{
		ProjectID:       projectID,
		ProjectPath:     projectPath,
		TargetDirectory: targetDirectory,
		Request:         request,
		Phase:           PhasePlan,
		Template:        template,
		Pipeline: PipelineState{
			SubPhase:          SubPhaseInit,
			PlanAgents:        []AgentConfig{},
			ExecutionGroups:   [][]string{},
			CurrentGroupIndex: 0,
		},
		CircuitBreakers: CircuitBreakerState{ErrorCounts: map[string]int{}},
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}

// Load reads and parses the state file at path. A missing or unparseable
// file is treated as empty and returns (nil, nil) — read failures never
// propagate to the caller, per SPEC_FULL.md §4.1's failure semantics. A
// checksum mismatch logs a warning and returns the result of repair; the
// repaired value is returned, the corrupt file is never silently rewritten
// until the next explicit Save.
func Load(lock *Lock, path string) (*State, error) {
	_ = lock // the witness documents that callers hold the exclusive lock

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil
	}

	recorded, _ := m["_checksum"].(string)
	sum, err := checksumOfMap(m)
	if err != nil {
		return nil, nil
	}

	if recorded != "" && recorded != sum {
		logging.Get().Warn("state checksum mismatch, repairing in memory", "path", path)
		return Repair(m)
	}

	return Repair(m)
}

// Save computes the checksum, serializes the state deterministically, and
// writes it atomically. Requires a held exclusive lock.
func Save(lock *Lock, s *State, path string) error {
	if lock == nil {
		return fmt.Errorf("%w: state.Save called without a held lock", qerr.ErrFatalEnvironment)
	}
	sum, err := Checksum(s)
	if err != nil {
		return fmt.Errorf("computing checksum: %w", err)
	}
	s.Checksum = sum
	if err := safeWriteJSON(path, s); err != nil {
		return fmt.Errorf("%w: %v", qerr.ErrFatalEnvironment, err)
	}
	return nil
}

// repairMap fills in the v6.1 required fields with documented defaults
// without overwriting any value already present, mirroring
// qralph-state.py::repair_state restricted to the current schema (Open
// Question 2: the legacy v4/v5 fields are not restored).
func repairMap(m map[string]interface{}) map[string]interface{} {
	defaults := map[string]interface{}{
		"project_id":        "",
		"project_path":      "",
		"target_directory":  "",
		"request":           "",
		"phase":             string(PhasePlan),
		"template":          "",
		"heal_attempts":     0,
		"created_at":        time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range defaults {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}

	pipeline, ok := m["pipeline"].(map[string]interface{})
	if !ok {
		pipeline = map[string]interface{}{}
	}
	pipelineDefaults := map[string]interface{}{
		"sub_phase":           string(SubPhaseInit),
		"plan_agents":         []interface{}{},
		"execution_groups":    []interface{}{},
		"current_group_index": 0,
	}
	for k, v := range pipelineDefaults {
		if _, ok := pipeline[k]; !ok {
			pipeline[k] = v
		}
	}
	m["pipeline"] = pipeline

	cb, ok := m["circuit_breakers"].(map[string]interface{})
	if !ok {
		cb = map[string]interface{}{}
	}
	cbDefaults := map[string]interface{}{
		"total_tokens":   0,
		"total_cost_usd": 0.0,
		"error_counts":   map[string]interface{}{},
	}
	for k, v := range cbDefaults {
		if _, ok := cb[k]; !ok {
			cb[k] = v
		}
	}
	m["circuit_breakers"] = cb

	return m
}

// Repair applies repairMap's fill-missing-only defaults and decodes the
// result into a typed State.
func Repair(raw map[string]interface{}) (*State, error) {
	repaired := repairMap(raw)
	data, err := json.Marshal(repaired)
	if err != nil {
		return nil, fmt.Errorf("%w: re-marshaling repaired state: %v", qerr.ErrIntegrity, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decoding repaired state: %v", qerr.ErrIntegrity, err)
	}
	return &s, nil
}

// Validate type-checks a State against SPEC_FULL.md §3's invariants,
// returning every violation found (not just the first), mirroring
// qralph-state.py::validate_state. projectsRoot may be empty to skip the
// containment check (e.g. when validating a state not yet tied to a root).
func Validate(s *State, projectsRoot string) []error {
	var errs []error

	if !projectIDPattern.MatchString(s.ProjectID) {
		errs = append(errs, fmt.Errorf("project_id %q does not match required pattern", s.ProjectID))
	}
	if !s.Phase.Valid() {
		errs = append(errs, fmt.Errorf("phase %q is not a recognized phase", s.Phase))
	}
	if !s.Pipeline.SubPhase.Valid() {
		errs = append(errs, fmt.Errorf("pipeline.sub_phase %q is not recognized", s.Pipeline.SubPhase))
	}

	switch s.Pipeline.SubPhase {
	case SubPhaseExecWaiting, SubPhaseVerifyWait, SubPhaseComplete:
		if len(s.Pipeline.ExecutionGroups) == 0 {
			errs = append(errs, fmt.Errorf("sub_phase %s requires non-empty execution_groups", s.Pipeline.SubPhase))
		}
	}

	if projectsRoot != "" {
		if err := CheckProjectPathContainment(s.ProjectPath, projectsRoot); err != nil {
			errs = append(errs, err)
		}
	}

	if s.CircuitBreakers.TotalTokens < 0 {
		errs = append(errs, fmt.Errorf("circuit_breakers.total_tokens must be >= 0, got %d", s.CircuitBreakers.TotalTokens))
	}
	if s.CircuitBreakers.TotalCostUSD < 0 {
		errs = append(errs, fmt.Errorf("circuit_breakers.total_cost_usd must be >= 0, got %f", s.CircuitBreakers.TotalCostUSD))
	}
	if len(s.CircuitBreakers.ErrorCounts) > 100 {
		errs = append(errs, fmt.Errorf("circuit_breakers.error_counts has %d entries, exceeds 100", len(s.CircuitBreakers.ErrorCounts)))
	}

	for _, ts := range []string{s.CreatedAt, s.CompletedAt} {
		if ts == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, ts); err != nil {
			errs = append(errs, fmt.Errorf("timestamp %q is not ISO-8601: %w", ts, err))
		}
	}

	return errs
}

// CheckProjectPathContainment verifies that projectPath resolves inside
// projectsRoot after canonicalization, per SPEC_FULL.md §3's "security
// refusal" requirement. Grounded on qralph-pipeline.py::_safe_project_path.
func CheckProjectPathContainment(projectPath, projectsRoot string) error {
	absRoot, err := filepath.Abs(projectsRoot)
	if err != nil {
		return fmt.Errorf("%w: resolving projects root: %v", qerr.ErrSecurityRefusal, err)
	}
	absProject, err := filepath.Abs(projectPath)
	if err != nil {
		return fmt.Errorf("%w: resolving project_path: %v", qerr.ErrSecurityRefusal, err)
	}
	rel, err := filepath.Rel(absRoot, absProject)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: project_path %q escapes projects root %q", qerr.ErrSecurityRefusal, projectPath, projectsRoot)
	}
	return nil
}
