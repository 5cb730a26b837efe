package main

import (
	"context"
	"fmt"
	"path/filepath"

	cli "github.com/urfave/cli/v3"

	"github.com/sparkst/qralph/internal/config"
	"github.com/sparkst/qralph/internal/registry"
	"github.com/sparkst/qralph/internal/state"
)

// applyGracePeriodOverrides loads the active project's `.qralph/config.yaml`
// (if any) and merges its grace-period overrides into r, per SPEC_FULL.md
// §6.3. A registry with no associated project, or a project with no config
// file, is left at its built-in defaults.
func applyGracePeriodOverrides(r *registry.Registry, rootLayout state.RootLayout) error {
	if r.ProjectID == "" {
		return nil
	}
	projLayout := state.Layout{ProjectPath: filepath.Join(rootLayout.ProjectsDir(), r.ProjectID)}
	cfg, err := config.LoadProjectConfig(projLayout.ProjectConfigPath())
	if err != nil {
		return err
	}
	for kind, seconds := range cfg.GracePeriods {
		r.GracePeriods[kind] = seconds
	}
	return nil
}

// registryCmd groups the process-lifecycle subcommands supplemented from
// process-monitor.py's own CLI surface per SPEC_FULL.md §6.1.
func registryCmd() *cli.Command {
	return &cli.Command{
		Name:  "registry",
		Usage: "Process registry: register, sweep, cleanup, status (§4.6)",
		Commands: []*cli.Command{
			registryRegisterCmd(),
			registrySweepCmd(),
			registryCleanupCmd(),
			registryStatusCmd(),
		},
	}
}

// currentProjectID reads the active project's id, or "" if none.
func currentProjectID(ctx context.Context, root string) (string, error) {
	rootLayout := state.RootLayout{Root: root}
	lock, err := state.Acquire(ctx, rootLayout.StateLockPath())
	if err != nil {
		return "", err
	}
	st, err := state.Load(lock, rootLayout.CurrentProjectPath())
	lock.Release()
	if err != nil {
		return "", err
	}
	if st == nil {
		return "", nil
	}
	return st.ProjectID, nil
}

func registryRegisterCmd() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Register a spawned child process",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "pid", Required: true, Usage: "process id"},
			&cli.StringFlag{Name: "kind", Required: true, Usage: "process type (e.g. node, vitest, claude)"},
			&cli.StringFlag{Name: "purpose", Required: true, Usage: "purpose description"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := findRoot(cmd)
			if err != nil {
				return err
			}
			rootLayout := state.RootLayout{Root: root}

			lock, err := registry.Acquire(ctx, rootLayout.ProcessRegistryLockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			r := registry.Load(rootLayout.ProcessRegistryPath())
			if r.ProjectID == "" {
				if id, err := currentProjectID(ctx, root); err == nil {
					r.ProjectID = id
				}
			}

			pid := int(cmd.Int("pid"))
			if err := registry.Register(lock, r, rootLayout.ProcessRegistryPath(), pid, cmd.String("kind"), cmd.String("purpose")); err != nil {
				return err
			}

			return emitJSON(map[string]interface{}{
				"status":  "registered",
				"pid":     pid,
				"type":    cmd.String("kind"),
				"purpose": cmd.String("purpose"),
			})
		},
	}
}

func registrySweepCmd() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run the orphan sweep, tripping the breaker at 3+ orphans",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run"},
			&cli.BoolFlag{Name: "force"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := findRoot(cmd)
			if err != nil {
				return err
			}
			rootLayout := state.RootLayout{Root: root}

			lock, err := registry.Acquire(ctx, rootLayout.ProcessRegistryLockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			r := registry.Load(rootLayout.ProcessRegistryPath())
			if err := applyGracePeriodOverrides(r, rootLayout); err != nil {
				return err
			}
			controlPath := ""
			if r.ProjectID != "" {
				controlPath = state.Layout{ProjectPath: filepath.Join(rootLayout.ProjectsDir(), r.ProjectID)}.ControlPath()
			}

			result, err := registry.Sweep(lock, r, rootLayout.ProcessRegistryPath(), rootLayout.ProcessKillsLogPath(), controlPath, cmd.Bool("dry-run"), cmd.Bool("force"))
			if err != nil {
				return err
			}
			return emitJSON(result)
		},
	}
}

func registryCleanupCmd() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Kill all live registered processes for the active project",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := findRoot(cmd)
			if err != nil {
				return err
			}
			projectID, err := currentProjectID(ctx, root)
			if err != nil {
				return err
			}
			if projectID == "" {
				return fmt.Errorf("no active project: run plan first")
			}

			rootLayout := state.RootLayout{Root: root}
			lock, err := registry.Acquire(ctx, rootLayout.ProcessRegistryLockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			r := registry.Load(rootLayout.ProcessRegistryPath())
			result, err := registry.Cleanup(lock, r, rootLayout.ProcessRegistryPath(), rootLayout.ProcessKillsLogPath(), projectID)
			if err != nil {
				return err
			}
			return emitJSON(result)
		},
	}
}

func registryStatusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Report registered processes and their liveness/age",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := findRoot(cmd)
			if err != nil {
				return err
			}
			rootLayout := state.RootLayout{Root: root}
			r := registry.Load(rootLayout.ProcessRegistryPath())
			return emitJSON(registry.Status(r))
		},
	}
}
