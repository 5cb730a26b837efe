// Package config holds the project template registry, quality-gate
// detection probes, and the optional per-project YAML override file, per
// SPEC_FULL.md §4.2.1/§6.3.
package config

import (
	"sort"
	"strings"
)

// Template is one named request template: a human-readable description and
// the ordered list of plan-phase agent roles it spawns (before critical
// agents are enforced by internal/prompt).
type Template struct {
	Description string
	PlanAgents  []string
}

// Templates is the built-in template registry. Grounded on
// qralph-pipeline.py::TASK_TEMPLATES.
var Templates = map[string]Template{
	"code-audit": {
		Description: "Analyze code for bugs, security issues, and quality problems",
		PlanAgents:  []string{"researcher", "sde-iii", "security-reviewer"},
	},
	"bug-fix": {
		Description: "Debug and fix a specific issue",
		PlanAgents:  []string{"researcher", "sde-iii"},
	},
	"ui-change": {
		Description: "Modify user interface components",
		PlanAgents:  []string{"researcher", "sde-iii", "ux-designer"},
	},
	"new-feature": {
		Description: "Build new functionality end-to-end",
		PlanAgents:  []string{"researcher", "sde-iii", "security-reviewer", "ux-designer"},
	},
	"security": {
		Description: "Security audit and hardening",
		PlanAgents:  []string{"researcher", "security-reviewer", "sde-iii"},
	},
	"architecture": {
		Description: "System design and architecture review",
		PlanAgents:  []string{"researcher", "sde-iii", "architecture-advisor"},
	},
	"research": {
		Description: "Research a topic, produce options and recommendations",
		PlanAgents:  []string{"researcher", "sde-iii"},
	},
}

// templateKeywords drives SuggestTemplate's deterministic keyword matching.
// Grounded on qralph-pipeline.py::TEMPLATE_KEYWORDS.
var templateKeywords = map[string][]string{
	"code-audit":   {"audit", "review", "analyze", "quality", "lint", "check"},
	"bug-fix":      {"bug", "fix", "error", "broken", "crash", "fail", "issue", "debug"},
	"ui-change":    {"ui", "ux", "interface", "design", "layout", "component", "page", "button", "form", "css", "style"},
	"new-feature":  {"add", "create", "build", "implement", "new", "feature"},
	"security":     {"security", "vulnerability", "cve", "xss", "injection", "auth", "encrypt", "pentest"},
	"architecture": {"architecture", "design", "scale", "refactor", "migrate", "pattern", "system"},
	"research":     {"research", "compare", "evaluate", "investigate", "options", "recommend"},
}

// SuggestTemplate scores request against each template's keyword set and
// returns the highest-scoring template name plus the full score map. Ties
// are broken by the lexicographically smallest template name, since Go map
// iteration order is not stable across runs and the Python original's
// max(scores, key=scores.get) is itself only stable by insertion order in
// CPython — we make the tie-break explicit rather than rely on that.
// Defaults to "research" when nothing matches. Grounded on
// qralph-pipeline.py::suggest_template.
func SuggestTemplate(request string) (string, map[string]int) {
	lower := strings.ToLower(request)
	scores := map[string]int{}

	for name, keywords := range templateKeywords {
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > 0 {
			scores[name] = score
		}
	}

	if len(scores) == 0 {
		return "research", scores
	}

	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if scores[names[i]] != scores[names[j]] {
			return scores[names[i]] > scores[names[j]]
		}
		return names[i] < names[j]
	})

	return names[0], scores
}
