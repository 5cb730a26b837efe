package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// DetectQualityGate probes projectRoot's filesystem for test infrastructure
// and returns the quality gate command to run, or "" if nothing is
// detected. Order matters: package.json is checked first, then
// pytest/pyproject, Cargo.toml, go.mod, and finally a Makefile with a
// test: target. Grounded on qralph-pipeline.py::detect_quality_gate, with
// the Makefile probe narrowed to require an actual "test:" target per
// SPEC_FULL.md §4.2.1's tightened wording.
func DetectQualityGate(projectRoot string) string {
	if cmd, ok := detectNodeGate(projectRoot); ok {
		return cmd
	}
	if fileExists(filepath.Join(projectRoot, "pytest.ini")) || fileExists(filepath.Join(projectRoot, "pyproject.toml")) {
		return "python3 -m pytest"
	}
	if fileExists(filepath.Join(projectRoot, "Cargo.toml")) {
		return "cargo test"
	}
	if fileExists(filepath.Join(projectRoot, "go.mod")) {
		return "go test ./..."
	}
	if hasMakeTestTarget(filepath.Join(projectRoot, "Makefile")) {
		return "make test"
	}
	return ""
}

func detectNodeGate(projectRoot string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(projectRoot, "package.json"))
	if err != nil {
		return "", false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", false
	}

	var parts []string
	if _, ok := pkg.Scripts["typecheck"]; ok {
		parts = append(parts, "npm run typecheck")
	}
	if _, ok := pkg.Scripts["lint"]; ok {
		parts = append(parts, "npm run lint")
	}
	if _, ok := pkg.Scripts["test"]; ok {
		parts = append(parts, "npm run test")
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " && "), true
}

func hasMakeTestTarget(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "test:") {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// researchToolServerNames maps an .mcp.json server name to the research-tool
// identifier prompt.ResearchConfig recognizes.
var researchToolServerNames = map[string]string{
	"context7":     "context7",
	"tavily":       "tavily",
	"brave-search": "brave_search",
	"brave_search": "brave_search",
}

// DetectResearchTools probes projectRoot for a `.mcp.json` (the Claude Code
// MCP server manifest) and reports which of the three research tools
// generate_plan_agent_prompt knows about are configured. Grounded on
// qralph-pipeline.py's config["detected"] list, populated externally by the
// invoking skill from the same MCP server manifest this probes directly.
func DetectResearchTools(projectRoot string) []string {
	data, err := os.ReadFile(filepath.Join(projectRoot, ".mcp.json"))
	if err != nil {
		return nil
	}
	var manifest struct {
		McpServers map[string]json.RawMessage `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}

	var detected []string
	seen := map[string]bool{}
	for name := range manifest.McpServers {
		tool, ok := researchToolServerNames[strings.ToLower(name)]
		if !ok || seen[tool] {
			continue
		}
		seen[tool] = true
		detected = append(detected, tool)
	}
	return detected
}
