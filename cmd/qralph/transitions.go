package main

import (
	"context"

	cli "github.com/urfave/cli/v3"

	"github.com/sparkst/qralph/internal/state"
)

// namedTransitionCmd builds one of the named subcommands (plan-collect,
// plan-finalize, execute, execute-collect, verify, finalize) that require
// the project to already be in a specific sub-phase, per SPEC_FULL.md §6's
// table. Each shares Next's dispatch logic via Machine.NextFor.
func namedTransitionCmd(name, usage string, expected state.SubPhase) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := findRoot(cmd)
			if err != nil {
				return err
			}
			m, err := loadMachine(root)
			if err != nil {
				return err
			}
			action, err := m.NextFor(ctx, expected, true)
			emitAction(action, err)
			return nil
		},
	}
}

func planCollectCmd() *cli.Command {
	return namedTransitionCmd("plan-collect", "Read agent-outputs/ and write the manifest skeleton and PLAN.md analyses", state.SubPhasePlanWaiting)
}

func planFinalizeCmd() *cli.Command {
	return namedTransitionCmd("plan-finalize", "Require a non-empty manifest, compute execution groups, and transition to EXECUTE", state.SubPhasePlanReview)
}

func executeCmd() *cli.Command {
	return namedTransitionCmd("execute", "Emit execution-agent configs for the current group", state.SubPhaseExecWaiting)
}

func executeCollectCmd() *cli.Command {
	return namedTransitionCmd("execute-collect", "Check execution completeness and transition to VERIFY", state.SubPhaseExecWaiting)
}

func verifyCmd() *cli.Command {
	return namedTransitionCmd("verify", "Emit the verifier config", state.SubPhaseVerifyWait)
}

func finalizeCmd() *cli.Command {
	return namedTransitionCmd("finalize", "Write SUMMARY.md, require a non-FAIL verdict, and transition to COMPLETE", state.SubPhaseVerifyWait)
}

// nextCmd backs `next [--confirm]`, the canonical driver: it runs whatever
// transition the project's current sub-phase calls for.
func nextCmd() *cli.Command {
	return &cli.Command{
		Name:  "next",
		Usage: "Execute the single next transition for the active project",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "confirm", Usage: "confirm the pending template or plan"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := findRoot(cmd)
			if err != nil {
				return err
			}
			m, err := loadMachine(root)
			if err != nil {
				return err
			}
			action, err := m.Next(ctx, cmd.Bool("confirm"))
			emitAction(action, err)
			return nil
		},
	}
}

// resumeCmd runs Next without --confirm and reports the resulting action:
// transitions that need no confirmation are performed, and a pending
// template or plan confirmation is reported rather than applied.
func resumeCmd() *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Run the next transition without --confirm and report the resulting action",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := findRoot(cmd)
			if err != nil {
				return err
			}
			m, err := loadMachine(root)
			if err != nil {
				return err
			}
			action, err := m.Next(ctx, false)
			emitAction(action, err)
			return nil
		},
	}
}

// statusCmd reports the active project's raw state, without attempting any
// transition.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Report the active project's state",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := findRoot(cmd)
			if err != nil {
				return err
			}
			rootLayout := state.RootLayout{Root: root}
			lock, err := state.Acquire(ctx, rootLayout.StateLockPath())
			if err != nil {
				return err
			}
			st, err := state.Load(lock, rootLayout.CurrentProjectPath())
			lock.Release()
			if err != nil {
				return err
			}
			if st == nil {
				return emitJSON(map[string]string{"status": "no active project"})
			}
			return emitJSON(st)
		},
	}
}
