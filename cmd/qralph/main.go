// Command qralph is the single-binary CLI surface for the deterministic
// QRALPH pipeline: every subcommand prints exactly one JSON object to
// stdout and exits non-zero on error, per SPEC_FULL.md §6.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/sparkst/qralph/internal/breaker"
	"github.com/sparkst/qralph/internal/config"
	"github.com/sparkst/qralph/internal/pipeline"
	"github.com/sparkst/qralph/internal/prompt"
	"github.com/sparkst/qralph/internal/qerr"
	"github.com/sparkst/qralph/internal/state"
)

func main() {
	app := &cli.Command{
		Name:  "qralph",
		Usage: "Deterministic plan/execute/verify pipeline orchestrator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:       "root",
				Usage:      "projects root directory (default: $QRALPH_ROOT or $HOME/.qralph)",
				Persistent: true,
			},
		},
		Commands: []*cli.Command{
			planCmd(),
			planCollectCmd(),
			planFinalizeCmd(),
			executeCmd(),
			executeCollectCmd(),
			verifyCmd(),
			finalizeCmd(),
			resumeCmd(),
			statusCmd(),
			nextCmd(),
			doctorCmd(),
			reportUsageCmd(),
			registryCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a bootstrap-time error (one not already classified and
// printed as an `error` action by a subcommand) to an exit code. Subcommand
// Actions never reach here: they print their own JSON and call os.Exit via
// emitAction below.
func exitCodeFor(err error) int {
	code := qerr.ExitCode(err)
	if code == 1 {
		return 1
	}
	return 2
}

// findRoot resolves the projects root per DESIGN.md's Open Question
// decision: --root flag, then QRALPH_ROOT, then $HOME/.qralph.
func findRoot(cmd *cli.Command) (string, error) {
	if r := cmd.String("root"); r != "" {
		return r, nil
	}
	if r := os.Getenv("QRALPH_ROOT"); r != "" {
		return r, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving default root: %w", err)
	}
	return filepath.Join(home, ".qralph"), nil
}

// loadMachine wires a pipeline.Machine for the currently active project
// under root, applying any .qralph/config.yaml pricing/quality-gate
// overrides and detected research tools. Grounded on qralph-pipeline.py's
// per-invocation config/state load at the top of every cmd_* handler.
func loadMachine(root string) (*pipeline.Machine, error) {
	rootLayout := state.RootLayout{Root: root}

	lock, err := state.Acquire(context.Background(), rootLayout.StateLockPath())
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring state lock: %v", qerr.ErrFatalEnvironment, err)
	}
	st, err := state.Load(lock, rootLayout.CurrentProjectPath())
	lock.Release()
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: no active project: run plan first", qerr.ErrPrecondition)
	}

	m := pipeline.New(root, st.ProjectPath)

	projCfg, err := config.LoadProjectConfig(m.Layout.ProjectConfigPath())
	if err != nil {
		return nil, err
	}
	m.ProjectCfg = *projCfg
	for tier, override := range projCfg.Pricing {
		m.Prices[tier] = breaker.ModelPrice{InputPerMTok: override.InputPerMTok, OutputPerMTok: override.OutputPerMTok}
	}

	m.Research = prompt.ResearchConfig{Detected: config.DetectResearchTools(st.TargetDirectory)}

	return m, nil
}

// emitAction prints action as the single required JSON object and exits
// with the code its action/error kind implies.
func emitAction(action pipeline.Action, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
	data, merr := json.MarshalIndent(action, "", "  ")
	if merr != nil {
		fmt.Fprintf(os.Stderr, "error: marshaling action: %v\n", merr)
		os.Exit(2)
	}
	fmt.Println(string(data))
	if _, isErr := action.(pipeline.ErrorAction); isErr {
		os.Exit(1)
	}
}

// emitJSON prints any other single JSON object (registry/doctor/report-usage
// results) and exits 0.
func emitJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
