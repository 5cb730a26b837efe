package state

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest is written during PLAN_REVIEW (SPEC_FULL.md §3). It holds the
// computed task list, the capped parallel execution plan, and the quality
// gate command that must pass before the verifier is spawned.
type Manifest struct {
	Tasks           []Task     `json:"tasks"`
	ParallelGroups  [][]string `json:"parallel_groups"`
	QualityGateCmd  string     `json:"quality_gate_cmd"`
	TargetDirectory string     `json:"target_directory"`
	Request         string     `json:"request"`
	Template        string     `json:"template"`
}

// Task is one unit of implementation work in the manifest.
type Task struct {
	ID                 string   `json:"id"`
	Summary            string   `json:"summary"`
	Description        string   `json:"description"`
	Files              []string `json:"files"`
	DependsOn          []string `json:"depends_on"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	TestsNeeded        bool     `json:"tests_needed"`
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// SaveManifest writes the manifest atomically, round-trip-validated.
func SaveManifest(path string, m *Manifest) error {
	if err := safeWriteJSON(path, m); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
