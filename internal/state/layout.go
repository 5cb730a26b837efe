package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves the well-known file paths within one project directory,
// per SPEC_FULL.md §6's filesystem layout. Grounded on the teacher's
// internal/state/artifacts.go directory-helper shape.
type Layout struct {
	ProjectPath string
}

func (l Layout) AgentOutputsDir() string     { return filepath.Join(l.ProjectPath, "agent-outputs") }
func (l Layout) ExecutionOutputsDir() string { return filepath.Join(l.ProjectPath, "execution-outputs") }
func (l Layout) VerificationDir() string     { return filepath.Join(l.ProjectPath, "verification") }
func (l Layout) VerificationResult() string  { return filepath.Join(l.VerificationDir(), "result.md") }
func (l Layout) ManifestPath() string        { return filepath.Join(l.ProjectPath, "manifest.json") }
func (l Layout) PlanPath() string            { return filepath.Join(l.ProjectPath, "PLAN.md") }
func (l Layout) SummaryPath() string         { return filepath.Join(l.ProjectPath, "SUMMARY.md") }
func (l Layout) CheckpointsDir() string      { return filepath.Join(l.ProjectPath, "checkpoints") }
func (l Layout) CheckpointPath() string      { return filepath.Join(l.CheckpointsDir(), "state.json") }
func (l Layout) DecisionsLogPath() string    { return filepath.Join(l.ProjectPath, "decisions.log") }
func (l Layout) ControlPath() string         { return filepath.Join(l.ProjectPath, "CONTROL.md") }
func (l Layout) ArtifactsDir() string        { return filepath.Join(l.ProjectPath, "artifacts") }
func (l Layout) ProjectConfigPath() string   { return filepath.Join(l.ProjectPath, ".qralph", "config.yaml") }

func (l Layout) AgentOutputPath(role string) string {
	return filepath.Join(l.AgentOutputsDir(), role+".md")
}

func (l Layout) ExecutionOutputPath(taskID string) string {
	return filepath.Join(l.ExecutionOutputsDir(), taskID+".md")
}

// EnsureDirs creates every directory this project owns.
func (l Layout) EnsureDirs() error {
	dirs := []string{
		l.ProjectPath,
		l.AgentOutputsDir(),
		l.ExecutionOutputsDir(),
		l.VerificationDir(),
		l.CheckpointsDir(),
		l.ArtifactsDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}

// RootLayout resolves the global, cross-project files under the projects
// root (SPEC_FULL.md §6).
type RootLayout struct {
	Root string
}

func (r RootLayout) CurrentProjectPath() string      { return filepath.Join(r.Root, "current-project.json") }
func (r RootLayout) StateLockPath() string           { return filepath.Join(r.Root, "state.lock") }
func (r RootLayout) ProjectsDir() string             { return filepath.Join(r.Root, "projects") }
func (r RootLayout) ProcessRegistryPath() string     { return filepath.Join(r.Root, "process-registry.json") }
func (r RootLayout) ProcessRegistryLockPath() string { return filepath.Join(r.Root, "process-registry.lock") }
func (r RootLayout) ProcessKillsLogPath() string     { return filepath.Join(r.Root, "process-kills.log") }
