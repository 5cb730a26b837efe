package pipeline

import (
	"regexp"
	"time"

	"github.com/sparkst/qralph/internal/state"
)

var (
	verdictFailPattern = regexp.MustCompile(`(?i)"verdict"\s*:\s*"fail"`)
	verdictPassPattern = regexp.MustCompile(`(?i)"verdict"\s*:\s*"pass"`)
)

// nextVerifyWait handles VERIFY_WAIT: wait for the verifier's result, then
// require an explicit PASS verdict before running finalize.
func (m *Machine) nextVerifyWait(st *state.State, ctrl ControlCommand) transitionResult {
	if ctrl == ControlSkip {
		_ = state.AppendDecision(m.Layout.DecisionsLogPath(), "forced skip of verification via CONTROL.md")
		return m.finalize(st)
	}

	result := state.ReadArtifact(m.Layout.VerificationResult())
	if result == "" {
		return transitionResult{action: ErrorAction{
			Message:  "verification result missing or empty",
			SubPhase: string(st.Pipeline.SubPhase),
		}}
	}

	if verdictFailPattern.MatchString(result) {
		_ = state.AppendDecision(m.Layout.DecisionsLogPath(), "verifier reported FAIL")
		return transitionResult{action: ErrorAction{
			Message:  "Verifier reported FAIL",
			SubPhase: string(st.Pipeline.SubPhase),
		}}
	}

	if !verdictPassPattern.MatchString(result) {
		_ = state.AppendDecision(m.Layout.DecisionsLogPath(), "verification result has no explicit PASS/FAIL verdict")
		return transitionResult{action: ErrorAction{
			Message:  "No PASS/FAIL verdict found in verification result",
			SubPhase: string(st.Pipeline.SubPhase),
		}}
	}

	return m.finalize(st)
}

// finalize writes SUMMARY.md and transitions the project to COMPLETE.
// Grounded on qralph-pipeline.py::cmd_finalize.
func (m *Machine) finalize(st *state.State) transitionResult {
	summary := "# Summary\n\n" +
		"**Request:** " + st.Request + "\n\n" +
		"**Project:** " + st.ProjectID + "\n\n" +
		"Status: COMPLETE\n"
	if err := writeTextFile(m.Layout.SummaryPath(), summary); err != nil {
		return transitionResult{action: ErrorAction{Message: "writing SUMMARY.md: " + err.Error()}}
	}

	st.Phase = state.PhaseComplete
	st.Pipeline.SubPhase = state.SubPhaseComplete
	st.CompletedAt = time.Now().UTC().Format(time.RFC3339)

	return transitionResult{changed: true, action: CompleteAction{SummaryPath: m.Layout.SummaryPath()}}
}
