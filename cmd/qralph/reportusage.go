package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/sparkst/qralph/internal/breaker"
	"github.com/sparkst/qralph/internal/config"
	"github.com/sparkst/qralph/internal/state"
)

// reportUsageCmd is a supplemented subcommand: the captured qralph-pipeline.py
// initializes circuit_breakers fields but never calls the equivalent of
// breaker.Update anywhere in its own source, leaving token/cost accounting
// permanently at zero. A spawning caller (the agent harness invoking an
// agent's model) is the natural place to report what that agent actually
// consumed, so this gives breaker.Update a real call site and keeps the
// token/cost circuit breaker reachable.
func reportUsageCmd() *cli.Command {
	return &cli.Command{
		Name:  "report-usage",
		Usage: "Record an agent invocation's token usage against the cost/token circuit breaker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model-tier", Required: true, Usage: "opus, sonnet, or haiku"},
			&cli.IntFlag{Name: "input-tokens", Required: true},
			&cli.IntFlag{Name: "output-tokens", Required: true},
			&cli.StringFlag{Name: "error", Usage: "error text observed, if any, counted toward the repeated-error breaker"},
		},
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
			defer lock.Release()

			st, err := state.Load(lock, rootLayout.CurrentProjectPath())
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("no active project: run plan first")
			}

			prices := breaker.DefaultPriceTable()
			projCfg, err := config.LoadProjectConfig(state.Layout{ProjectPath: st.ProjectPath}.ProjectConfigPath())
			if err != nil {
				return err
			}
			for tier, override := range projCfg.Pricing {
				prices[tier] = breaker.ModelPrice{InputPerMTok: override.InputPerMTok, OutputPerMTok: override.OutputPerMTok}
			}

			breaker.Update(lock, st, prices, cmd.String("model-tier"), int(cmd.Int("input-tokens")), int(cmd.Int("output-tokens")), cmd.String("error"))

			if err := state.Save(lock, st, rootLayout.CurrentProjectPath()); err != nil {
				return err
			}
			if err := state.SafeWriteJSON(state.Layout{ProjectPath: st.ProjectPath}.CheckpointPath(), st); err != nil {
				return err
			}

			tripped, reason := breaker.Check(lock, st)
			return emitJSON(map[string]interface{}{
				"status":          "recorded",
				"total_tokens":    st.CircuitBreakers.TotalTokens,
				"total_cost_usd":  st.CircuitBreakers.TotalCostUSD,
				"breaker_tripped": tripped,
				"breaker_reason":  reason,
			})
		},
	}
}
