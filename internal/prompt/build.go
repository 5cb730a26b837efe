package prompt

import "strings"

// CriticalAgents must be present in every template's plan_agents list,
// regardless of template, per SPEC_FULL.md §4.4's critical-agents rule.
var CriticalAgents = []string{"sde-iii", "architecture-advisor"}

// EnforceCriticalAgents appends any missing critical agent to agents,
// preserving the input order and never duplicating an agent already
// present. Grounded on qralph-pipeline.py::_enforce_critical_agents.
func EnforceCriticalAgents(agents []string) []string {
	result := append([]string{}, agents...)
	present := map[string]bool{}
	for _, a := range result {
		present[a] = true
	}
	for _, critical := range CriticalAgents {
		if !present[critical] {
			result = append(result, critical)
			present[critical] = true
		}
	}
	return result
}

// ResearchConfig is the subset of project configuration the research-tool
// instruction block depends on.
type ResearchConfig struct {
	Detected []string
}

func (c ResearchConfig) has(tool string) bool {
	for _, d := range c.Detected {
		if d == tool {
			return true
		}
	}
	return false
}

// buildResearchInstructions lists the detected research MCP tools, always
// ending with the built-in web-search/fetch fallback. Grounded on
// qralph-pipeline.py::_build_research_instructions.
func buildResearchInstructions(cfg ResearchConfig) string {
	var lines []string
	if cfg.has("context7") {
		lines = append(lines, "- For library/API documentation: use Context7 MCP (resolve-library-id -> query-docs)")
	}
	if cfg.has("tavily") {
		lines = append(lines, "- For web research on bugs/design/patterns: use Tavily MCP")
	}
	if cfg.has("brave_search") {
		lines = append(lines, "- For web search: use Brave Search MCP")
	}
	lines = append(lines,
		"- Fallback: use WebSearch for anything the above tools don't cover",
		"- Use WebFetch to read specific URLs when needed",
	)
	return strings.Join(lines, "\n")
}

// PlanAgentPrompt is one plan-phase agent's generated config.
type PlanAgentPrompt struct {
	Name   string
	Model  string
	Prompt string
}

// planDeliverables holds each role's verbatim deliverable checklist, kept
// as Go string constants since §8's round-trip law requires byte-identical
// output across runs. Grounded on qralph-pipeline.py::generate_plan_agent_prompt.
var planDeliverables = map[string]string{
	"researcher": "## Your Deliverable\n" +
		"1. **Codebase Analysis**: Key files, patterns, dependencies relevant to the request\n" +
		"2. **External Research**: Relevant documentation, known issues, best practices\n" +
		"3. **Constraints**: Technical limitations, compatibility concerns, breaking changes\n" +
		"4. **Recommendations**: Specific suggestions based on your research",
	"sde-iii": "## Your Deliverable\n" +
		"1. **Files to Change**: List every file that needs modification with specific changes\n" +
		"2. **Implementation Steps**: Ordered list of changes with dependencies between them\n" +
		"3. **Testing Strategy**: What tests to write, what to verify\n" +
		"4. **Risk Assessment**: What could go wrong, edge cases, breaking changes\n" +
		"5. **Acceptance Criteria**: Testable conditions that prove the work is done",
	"security-reviewer": "## Your Deliverable\n" +
		"1. **Current Vulnerabilities**: Security issues in existing code (with file:line)\n" +
		"2. **Change Risks**: Security implications of the proposed changes\n" +
		"3. **Recommendations**: Specific security improvements, ordered by severity\n" +
		"4. **Compliance**: OWASP Top 10, input validation, auth/authz concerns",
	"ux-designer": "## Your Deliverable\n" +
		"1. **Current UX Assessment**: How the current UI/UX works\n" +
		"2. **Proposed Changes**: UX improvements aligned with the request\n" +
		"3. **Accessibility**: WCAG compliance considerations\n" +
		"4. **User Flows**: Key interaction paths affected by the changes",
	"architecture-advisor": "## Your Deliverable\n" +
		"1. **Current Architecture**: How the system is structured\n" +
		"2. **Impact Analysis**: How the proposed changes affect the architecture\n" +
		"3. **Alternatives**: Different approaches with trade-offs\n" +
		"4. **Recommendations**: Preferred approach with justification",
}

var roleIntros = map[string]string{
	"researcher": "You are a technical researcher. Your job is to gather facts about the codebase " +
		"and external documentation relevant to the request.",
	"sde-iii": "You are a senior software engineer (SDE-III). Your job is to analyze the codebase " +
		"and create a concrete implementation plan.",
	"security-reviewer": "You are a security reviewer. Your job is to identify security concerns " +
		"in the current code and in the proposed changes.",
	"ux-designer": "You are a UX designer. Your job is to evaluate the user experience " +
		"implications of the proposed changes.",
	"architecture-advisor": "You are a system architect. Your job is to evaluate the architectural " +
		"implications of the proposed changes.",
}

// PlanModelTier is the model tier every plan agent is assigned: the
// highest-capability tier, per SPEC_FULL.md §4.4.
const PlanModelTier = "opus"

// BuildPlanAgentPrompt generates a deterministic prompt for one plan-phase
// agent. An agentType outside the five named roles falls back to a generic
// analyst framing, matching the Python original's dict.get default.
func BuildPlanAgentPrompt(agentType, request, projectPath string, cfg ResearchConfig) PlanAgentPrompt {
	baseContext := "You are analyzing a codebase to help plan work on this request:\n\n" +
		"REQUEST: " + request + "\n\n" +
		"PROJECT PATH: " + projectPath + "\n\n" +
		"Write your analysis as markdown. Be specific about file paths, line numbers, " +
		"and concrete findings. Keep your response under 3000 words.\n\n" +
		"IMPORTANT: Do NOT write any files to disk. Return your entire analysis as your " +
		"response text. The orchestrator will save your output."

	intro, known := roleIntros[agentType]
	if !known {
		return PlanAgentPrompt{
			Name:   agentType,
			Model:  PlanModelTier,
			Prompt: "You are a " + agentType + ". Analyze the codebase for this request.\n\n" + baseContext,
		}
	}

	var sections []string
	sections = append(sections, intro, "", baseContext, "")
	if agentType == "researcher" {
		sections = append(sections, "## Research Tools\n"+buildResearchInstructions(cfg), "")
	}
	sections = append(sections, planDeliverables[agentType])

	return PlanAgentPrompt{
		Name:   agentType,
		Model:  PlanModelTier,
		Prompt: strings.Join(sections, "\n"),
	}
}
