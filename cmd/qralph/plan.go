package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/sparkst/qralph/internal/pipeline"
)

// planCmd backs `plan <request>`: allocates a new project and reports the
// first action (or, under --dry-run, a preview with no mutation).
func planCmd() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Create a project for a request and report the first action",
		ArgsUsage: "<request>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "target-dir", Usage: "directory the work applies to (default: cwd)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "preview the suggested template/agents without creating a project"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			request := cmd.Args().First()
			if request == "" {
				return fmt.Errorf("request argument is required")
			}
			targetDir := cmd.String("target-dir")
			if targetDir == "" {
				targetDir = "."
			}

			if cmd.Bool("dry-run") {
				report, err := pipeline.DryRunPlan(request, targetDir)
				if err != nil {
					return err
				}
				return emitJSON(report)
			}

			root, err := findRoot(cmd)
			if err != nil {
				return err
			}

			action, _, warning, err := pipeline.CreateProject(ctx, root, targetDir, request)
			if warning != "" {
				fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
			}
			emitAction(action, err)
			return nil
		},
	}
}
