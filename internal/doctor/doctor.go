// Package doctor assembles a diagnostic bundle for a stuck or failing
// project: phase context, token and cost totals, a decisions-log tail, and
// PLAN.md. Quality-gate and verifier output are not included. Adapted from the teacher's internal/doctor,
// minus the in-process claude invocation — per SPEC_FULL.md §6.1 this
// writes to artifacts/ for a human or an external spawner to read.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sparkst/qralph/internal/state"
)

const maxLogLines = 200

// Bundle is the gathered diagnostic context, written as a plain-text file.
type Bundle struct {
	ProjectID     string
	Phase         state.Phase
	SubPhase      state.SubPhase
	HealAttempts  int
	TotalTokens   int
	TotalCostUSD  float64
	DecisionsTail string
	PlanExcerpt   string
}

// Gather reads a project's current state plus its decisions log and PLAN.md
// (when present) into a Bundle. Grounded on the teacher's gatherLog/
// gatherPhaseConfig shape.
func Gather(layout state.Layout, st *state.State) Bundle {
	return Bundle{
		ProjectID:     st.ProjectID,
		Phase:         st.Phase,
		SubPhase:      st.Pipeline.SubPhase,
		HealAttempts:  st.HealAttempts,
		TotalTokens:   st.CircuitBreakers.TotalTokens,
		TotalCostUSD:  st.CircuitBreakers.TotalCostUSD,
		DecisionsTail: tailLines(layout.DecisionsLogPath(), maxLogLines),
		PlanExcerpt:   readOrNote(layout.PlanPath()),
	}
}

// Render formats the bundle as the plain-text report written to
// artifacts/, grounded on the teacher's buildPrompt section layout.
func (b Bundle) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Diagnostic bundle: %s\n\n", b.ProjectID)
	fmt.Fprintf(&sb, "## Project State\nPhase: %s\nSub-phase: %s\nHeal attempts: %d\nTotal tokens: %d\nTotal cost: $%.2f\n\n",
		b.Phase, b.SubPhase, b.HealAttempts, b.TotalTokens, b.TotalCostUSD)
	fmt.Fprintf(&sb, "## Decisions Log (last %d lines)\n%s\n\n", maxLogLines, b.DecisionsTail)
	fmt.Fprintf(&sb, "## Current Plan\n%s\n", b.PlanExcerpt)
	return sb.String()
}

// Write renders the bundle and writes it under layout.ArtifactsDir(),
// returning the path written.
func Write(layout state.Layout, st *state.State) (string, error) {
	bundle := Gather(layout, st)
	if err := os.MkdirAll(layout.ArtifactsDir(), 0755); err != nil {
		return "", fmt.Errorf("creating artifacts dir: %w", err)
	}
	path := filepath.Join(layout.ArtifactsDir(), fmt.Sprintf("diagnostic-%s.md", time.Now().UTC().Format("20060102T150405Z")))
	if err := os.WriteFile(path, []byte(bundle.Render()), 0644); err != nil {
		return "", fmt.Errorf("writing diagnostic bundle: %w", err)
	}
	return path, nil
}

func tailLines(path string, n int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "(no decisions log found)"
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func readOrNote(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "(no PLAN.md found)"
	}
	return string(data)
}
