// Package prompt builds the deterministic, role-specific prompts the
// pipeline hands to plan, execution, and verification agents, per
// SPEC_FULL.md §4.4. Every builder here is a pure function of its inputs —
// identical inputs must yield byte-identical output across runs.
package prompt

import (
	"fmt"
	"regexp"
)

const (
	// MaxAgentOutputEmbed bounds how much of an agent's prior output is
	// embedded verbatim into a later prompt.
	MaxAgentOutputEmbed = 8000
	// MaxRequestLength bounds the user-supplied request string.
	MaxRequestLength = 2000
)

type sanitizeRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// injectionRules mirrors qralph-pipeline.py's _INJECTION_PATTERNS list in
// order — later patterns run against text already rewritten by earlier
// ones, so reordering changes behavior.
var injectionRules = []sanitizeRule{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous\s+|prior\s+)?(instructions?|prompts?|context)`), "[REDACTED]"},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous\s+)?(instructions?|prompts?)`), "[REDACTED]"},
	{regexp.MustCompile(`(?i)you\s+are\s+now\b`), "[REDACTED]"},
	{regexp.MustCompile(`(?i)new\s+(system\s+)?prompt`), "[REDACTED]"},
	{regexp.MustCompile(`(?i)act\s+as\b`), "[REDACTED]"},
}

var secretLikePattern = regexp.MustCompile(`(?i)(key|token|secret|password)\s*[=:]\s*\S{8,}`)

// SanitizeAgentOutput truncates content to MaxAgentOutputEmbed characters
// and strips prompt-injection patterns before it is embedded into a later
// prompt. Grounded on qralph-pipeline.py::_sanitize_agent_output.
func SanitizeAgentOutput(content string) string {
	runes := []rune(content)
	if len(runes) > MaxAgentOutputEmbed {
		content = string(runes[:MaxAgentOutputEmbed])
	}
	for _, rule := range injectionRules {
		content = rule.pattern.ReplaceAllString(content, rule.replacement)
	}
	return content
}

// SanitizeRequest validates the request length and warns (without
// rewriting) on an apparent secret. The warning return value carries the
// message, if any, so the caller can route it through hclog rather than
// this package reaching for a logger directly.
func SanitizeRequest(request string) (sanitized string, warning string, err error) {
	if len([]rune(request)) > MaxRequestLength {
		return "", "", fmt.Errorf("request too long (%d chars, max %d)", len([]rune(request)), MaxRequestLength)
	}
	if secretLikePattern.MatchString(request) {
		warning = "request may contain sensitive data; review before proceeding"
	}
	return request, warning, nil
}
