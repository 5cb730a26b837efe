package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sparkst/qralph/internal/config"
	"github.com/sparkst/qralph/internal/prompt"
	"github.com/sparkst/qralph/internal/qerr"
	"github.com/sparkst/qralph/internal/state"
)

var slugCollapse = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a free-form request into the short, filesystem-safe suffix
// used in a project directory name.
func slugify(request string) string {
	s := slugCollapse.ReplaceAllString(strings.ToLower(request), "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	if s == "" {
		s = "project"
	}
	return s
}

// CreateProject backs the `plan <request>` subcommand: it validates and
// sanitizes the request, allocates a project directory under projectsRoot,
// suggests a template, persists a fresh State in INIT, and returns the same
// confirm_template action the state machine would report for that state.
// Grounded on qralph-pipeline.py::cmd_plan.
func CreateProject(ctx context.Context, projectsRoot, targetDirectory, request string) (Action, *Machine, string, error) {
	sanitized, warning, err := prompt.SanitizeRequest(request)
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", qerr.ErrSecurityRefusal, err)
	}

	root := state.RootLayout{Root: projectsRoot}

	id := uuid.New().String()[:8]
	projectID := id + "-" + slugify(sanitized)
	projectPath := filepath.Join(root.ProjectsDir(), projectID)

	if err := state.CheckProjectPathContainment(projectPath, projectsRoot); err != nil {
		return nil, nil, "", err
	}

	template, _ := config.SuggestTemplate(sanitized)

	layout := state.Layout{ProjectPath: projectPath}
	if err := layout.EnsureDirs(); err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", qerr.ErrFatalEnvironment, err)
	}

	lock, err := state.Acquire(ctx, root.StateLockPath())
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", qerr.ErrFatalEnvironment, err)
	}
	defer lock.Release()

	st := state.New(projectID, projectPath, targetDirectory, sanitized, template)
	if err := state.Save(lock, st, root.CurrentProjectPath()); err != nil {
		return nil, nil, "", err
	}
	if err := state.SafeWriteJSON(layout.CheckpointPath(), st); err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", qerr.ErrFatalEnvironment, err)
	}

	m := New(projectsRoot, projectPath)
	action, err := m.Next(ctx, false)
	return action, m, warning, err
}

// DryRunReport is what `plan --dry-run` reports: what CreateProject would do,
// computed without creating a project directory or touching any state file.
type DryRunReport struct {
	SuggestedTemplate   string
	TemplateDescription string
	Agents              []string
	QualityGateCmd      string
	Warning             string
}

// DryRunPlan computes a plan preview with no filesystem mutation beyond
// reading the target directory to suggest a quality gate, per §6's `--dry-run`
// flag and SPEC_FULL.md §8 seed test 1.
func DryRunPlan(request, targetDirectory string) (DryRunReport, error) {
	sanitized, warning, err := prompt.SanitizeRequest(request)
	if err != nil {
		return DryRunReport{}, fmt.Errorf("%w: %v", qerr.ErrSecurityRefusal, err)
	}

	template, _ := config.SuggestTemplate(sanitized)
	tmpl, ok := config.Templates[template]
	if !ok {
		tmpl = config.Templates["research"]
	}
	agents := prompt.EnforceCriticalAgents(tmpl.PlanAgents)

	return DryRunReport{
		SuggestedTemplate:   template,
		TemplateDescription: tmpl.Description,
		Agents:              agents,
		QualityGateCmd:      config.DetectQualityGate(targetDirectory),
		Warning:             warning,
	}, nil
}
