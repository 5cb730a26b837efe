package prompt

import (
	"sort"
	"strings"

	"github.com/sparkst/qralph/internal/state"
)

// VerificationModelTier is the model tier the verification agent is
// assigned. The verification agent reasons over the whole change set with
// no prior context, so it runs at the same capability tier as plan agents.
const VerificationModelTier = PlanModelTier

// BuildVerificationPrompt generates the fresh-context verification prompt:
// the request, a bulleted acceptance-criteria list keyed by task id, the
// sanitized concatenation of execution outputs, and the gate command.
// Grounded on qralph-pipeline.py::cmd_verify's prompt assembly.
func BuildVerificationPrompt(manifest *state.Manifest, executionOutputs map[string]string, workingDir string) string {
	var results strings.Builder
	ids := make([]string, 0, len(executionOutputs))
	for id := range executionOutputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		results.WriteString("### " + id + "\n\n")
		results.WriteString(SanitizeAgentOutput(strings.TrimSpace(executionOutputs[id])))
		results.WriteString("\n\n---\n\n")
	}

	var criteria []string
	for _, t := range manifest.Tasks {
		for _, ac := range t.AcceptanceCriteria {
			criteria = append(criteria, "- ["+t.ID+"] "+ac)
		}
	}
	criteriaText := "No acceptance criteria defined."
	if len(criteria) > 0 {
		criteriaText = strings.Join(criteria, "\n")
	}

	var b strings.Builder
	b.WriteString("You are a fresh-context verification agent. You have NO knowledge of how ")
	b.WriteString("the implementation was done. Your job is to independently verify the work.\n\n")
	b.WriteString("## Working Directory\n")
	b.WriteString("The project codebase is at: " + workingDir + "\n")
	b.WriteString("Read files from this directory to verify the implementation.\n\n")
	b.WriteString("## Original Request\n" + manifest.Request + "\n\n")
	b.WriteString("## Acceptance Criteria\n" + criteriaText + "\n\n")
	b.WriteString("## What Was Reported Done\n" + results.String() + "\n")

	if manifest.QualityGateCmd != "" {
		b.WriteString("## Quality Gate\nRun: `" + manifest.QualityGateCmd + "`\n\n")
	}

	b.WriteString("## Your Job\n")
	b.WriteString("1. Read the changed files directly from the codebase\n")
	b.WriteString("2. For each acceptance criterion, verify it is actually met (not just claimed)\n")
	b.WriteString("3. Run the quality gate command\n")
	b.WriteString("4. Report your verdict:\n\n")
	b.WriteString("```json\n")
	b.WriteString(`{"verdict": "PASS" or "FAIL", "criteria_results": [{"criterion": "...", "status": "pass/fail", "evidence": "..."}], "quality_gate": "pass/fail", "issues": ["..."]}` + "\n")
	b.WriteString("```\n")

	return b.String()
}
