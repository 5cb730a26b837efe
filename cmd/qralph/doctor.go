package main

import (
	"context"

	cli "github.com/urfave/cli/v3"

	"github.com/sparkst/qralph/internal/doctor"
	"github.com/sparkst/qralph/internal/state"
)

// doctorCmd emits a diagnostic bundle for the active project, per
// SPEC_FULL.md §6.1. Read-only: it performs no state transition.
func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Emit a diagnostic bundle for the active project's current failure",
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

			layout := state.Layout{ProjectPath: st.ProjectPath}
			path, err := doctor.Write(layout, st)
			if err != nil {
				return err
			}
			return emitJSON(map[string]string{"status": "written", "path": path})
		},
	}
}
