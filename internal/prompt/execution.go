package prompt

import (
	"strings"

	"github.com/sparkst/qralph/internal/state"
)

// ExecutionModelTier is the model tier every execution-phase agent is
// assigned, per SPEC_FULL.md §4.4.
const ExecutionModelTier = "sonnet"

// BuildExecutionPrompt generates a deterministic prompt for one task's
// implementation agent. Grounded on
// qralph-pipeline.py::_generate_execute_agent_prompt.
func BuildExecutionPrompt(task state.Task, manifest *state.Manifest) string {
	acceptance := strings.Join(prefixEach(task.AcceptanceCriteria, "- "), "\n")
	files := strings.Join(task.Files, ", ")

	var b strings.Builder
	b.WriteString("You are implementing a specific task for this project.\n\n")
	b.WriteString("## Working Directory\n")
	b.WriteString("IMPORTANT: All files MUST be created/modified in: " + manifest.TargetDirectory + "\n")
	b.WriteString("Do NOT write files anywhere else. Use absolute paths based on this directory.\n\n")
	b.WriteString("## Original Request\n" + manifest.Request + "\n\n")
	summary := task.Summary
	if summary == "" {
		summary = "Untitled"
	}
	b.WriteString("## Your Task: " + summary + "\n\n")
	b.WriteString(task.Description + "\n\n")
	b.WriteString("## Files to Modify\n" + files + "\n\n")
	b.WriteString("## Acceptance Criteria\n" + acceptance + "\n\n")

	if task.TestsNeeded {
		b.WriteString("## Testing\n")
		b.WriteString("Write tests BEFORE implementation (TDD). Tests must:\n")
		b.WriteString("- Cover each acceptance criterion\n")
		b.WriteString("- Be co-located with the code (*.spec.ts or *.test.ts)\n")
		b.WriteString("- Pass after implementation\n\n")
	}

	if manifest.QualityGateCmd != "" {
		b.WriteString("## Quality Gate\n")
		b.WriteString("After implementation, run: `" + manifest.QualityGateCmd + "`\n")
		b.WriteString("All checks must pass.\n\n")
	}

	b.WriteString("## Output Format\n")
	b.WriteString("When done, report:\n")
	b.WriteString("1. Files changed (with brief description of each change)\n")
	b.WriteString("2. Tests written (file paths)\n")
	b.WriteString("3. Quality gate results (pass/fail with output)\n")
	b.WriteString("4. Any issues or concerns\n")

	return b.String()
}

func prefixEach(items []string, prefix string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = prefix + it
	}
	return out
}
