package pipeline

import (
	"context"
	"fmt"

	"github.com/sparkst/qralph/internal/breaker"
	"github.com/sparkst/qralph/internal/config"
	"github.com/sparkst/qralph/internal/prompt"
	"github.com/sparkst/qralph/internal/state"
)

// Machine drives one project through PLAN -> EXECUTE -> VERIFY -> COMPLETE.
// Grounded on the teacher's runner.Runner (state persisted every step,
// error-returning step helpers) and on qralph-pipeline.py's cmd_next family,
// one Go method per Python helper (nextInit <-> _next_init, and so on).
type Machine struct {
	Root       state.RootLayout
	Layout     state.Layout
	Prices     breaker.PriceTable
	Research   prompt.ResearchConfig
	ProjectCfg config.ProjectConfig
}

// New wires a Machine for the project at projectPath under projectsRoot,
// using built-in pricing and an empty research-tool configuration (callers
// that have detected MCP research tools or a .qralph/config.yaml override
// set Research/ProjectCfg/Prices before calling Next).
func New(projectsRoot, projectPath string) *Machine {
	return &Machine{
		Root:   state.RootLayout{Root: projectsRoot},
		Layout: state.Layout{ProjectPath: projectPath},
		Prices: breaker.DefaultPriceTable(),
	}
}

// transitionResult is what a sub-phase handler returns: the action to report
// and whether the in-memory state, which the handler updates in place, must
// be persisted.
type transitionResult struct {
	action  Action
	changed bool
}

// Next evaluates the single next transition for the active project and
// returns the action the caller (the CLI layer) must perform. It owns the
// full critical section described in SPEC_FULL.md §5's ordering guarantee:
// acquire lock -> load state -> inspect artifacts -> decide -> mutate ->
// save state -> write checkpoint -> append decisions-log line -> release
// lock -> return action.
func (m *Machine) Next(ctx context.Context, confirm bool) (Action, error) {
	return m.nextInternal(ctx, confirm, nil)
}

// NextFor is the named-subcommand counterpart to Next (plan-collect,
// plan-finalize, execute, execute-collect, verify, finalize per SPEC_FULL.md
// §6): it runs the identical transition logic but first requires the
// project to already be in the named command's expected sub-phase, reporting
// a precondition error instead of silently doing whatever the actual
// current sub-phase calls for. Next itself remains the sole dispatch logic,
// per §4.2.2 — this only adds the expectation check the CLI layer needs.
func (m *Machine) NextFor(ctx context.Context, expected state.SubPhase, confirm bool) (Action, error) {
	return m.nextInternal(ctx, confirm, &expected)
}

func (m *Machine) nextInternal(ctx context.Context, confirm bool, expected *state.SubPhase) (Action, error) {
	lock, err := state.Acquire(ctx, m.Root.StateLockPath())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", "acquiring state lock", err)
	}
	defer lock.Release()

	st, err := state.Load(lock, m.Root.CurrentProjectPath())
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if st == nil {
		return ErrorAction{Message: "no active project: run plan first"}, nil
	}

	if errs := state.Validate(st, m.Root.ProjectsDir()); len(errs) > 0 {
		return nil, fmt.Errorf("loaded state failed validation: %w", errs[0])
	}

	if expected != nil && st.Pipeline.SubPhase != *expected {
		return ErrorAction{
			Message:  fmt.Sprintf("precondition failed: expected sub_phase %s, found %s", *expected, st.Pipeline.SubPhase),
			SubPhase: string(st.Pipeline.SubPhase),
		}, nil
	}

	ctrl := ReadControl(m.Layout.ControlPath())
	switch ctrl {
	case ControlPause:
		return ErrorAction{Message: "blocked: CONTROL.md says PAUSE", SubPhase: string(st.Pipeline.SubPhase)}, nil
	case ControlAbort:
		return ErrorAction{Message: "blocked: CONTROL.md says ABORT", SubPhase: string(st.Pipeline.SubPhase)}, nil
	case ControlStatus, ControlEscalate:
		_ = state.AppendDecision(m.Layout.DecisionsLogPath(), fmt.Sprintf("CONTROL.md %s observed, not blocking", ctrl))
	}

	if tripped, reason := breaker.Check(lock, st); tripped {
		_ = state.AppendDecision(m.Layout.DecisionsLogPath(), "circuit breaker tripped: "+reason)
		return ErrorAction{Message: "circuit breaker tripped: " + reason, SubPhase: string(st.Pipeline.SubPhase)}, nil
	}

	var result transitionResult
	switch st.Pipeline.SubPhase {
	case state.SubPhaseInit:
		result = m.nextInit(st, confirm)
	case state.SubPhasePlanWaiting:
		result = m.nextPlanWaiting(st)
	case state.SubPhasePlanReview:
		result = m.nextPlanReview(st, confirm)
	case state.SubPhaseExecWaiting:
		result = m.nextExecWaiting(ctx, st, ctrl)
	case state.SubPhaseVerifyWait:
		result = m.nextVerifyWait(st, ctrl)
	case state.SubPhaseComplete:
		result = transitionResult{action: CompleteAction{SummaryPath: m.Layout.SummaryPath()}}
	default:
		result = transitionResult{action: ErrorAction{Message: fmt.Sprintf("unknown sub_phase %q", st.Pipeline.SubPhase)}}
	}

	if result.changed {
		if err := state.Save(lock, st, m.Root.CurrentProjectPath()); err != nil {
			return nil, err
		}
		if err := state.SafeWriteJSON(m.Layout.CheckpointPath(), st); err != nil {
			return nil, fmt.Errorf("writing checkpoint: %w", err)
		}
	}

	logMsg := fmt.Sprintf("sub_phase=%s confirm=%t -> %s", st.Pipeline.SubPhase, confirm, actionName(result.action))
	_ = state.AppendDecision(m.Layout.DecisionsLogPath(), logMsg)

	return result.action, nil
}

func actionName(a Action) string {
	switch a.(type) {
	case ConfirmTemplateAction:
		return "confirm_template"
	case SpawnAgentsAction:
		return "spawn_agents"
	case DefineTasksAction:
		return "define_tasks"
	case ConfirmPlanAction:
		return "confirm_plan"
	case CompleteAction:
		return "complete"
	default:
		return "error"
	}
}
