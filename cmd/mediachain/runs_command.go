package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediachain/internal/quality"
	"mediachain/internal/runsink"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	runsCmd := &cobra.Command{
		Use:   "runs [job-id]",
		Short: "List recorded chain runs from the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = strings.TrimSpace(args[0])
			}
			return withLedger(ctx, cmd.OutOrStdout(), func(ledger *runsink.Ledger) error {
				runs, err := ledger.Recent(cmd.Context(), jobID, limit)
				if err != nil {
					return err
				}
				printRuns(cmd.OutOrStdout(), runs, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	runsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	runsCmd.AddCommand(newRunsShowCommand(ctx))
	return runsCmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the steps of one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			return withLedger(ctx, cmd.OutOrStdout(), func(ledger *runsink.Ledger) error {
				steps, err := ledger.Steps(cmd.Context(), runID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(steps) == 0 {
					fmt.Fprintf(out, "Run %d has no recorded steps\n", runID)
					return nil
				}
				rows := make([][]string, 0, len(steps))
				for _, step := range steps {
					rows = append(rows, []string{
						step.Step,
						yesNo(step.CacheHit),
						formatDuration(step.Duration),
						shortHash(step.CacheKey),
						shortHash(step.OutputHash),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Step", "Cached", "Duration", "Cache Key", "Output Hash"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func withLedger(ctx *commandContext, out io.Writer, fn func(*runsink.Ledger) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.Ledger.Enabled {
		fmt.Fprintln(out, "Run ledger is disabled (set [ledger] enabled = true in config.toml)")
		return nil
	}
	ledger, err := runsink.OpenLedger(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer ledger.Close()
	return fn(ledger)
}

func printRuns(out io.Writer, runs []runsink.RunSummary, colorize bool) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		result := "ok"
		if !run.Success {
			result = "failed: " + run.ErrorStep
		}
		tier := "-"
		if run.QualityTier != "" {
			tier = tierLabel(quality.Tier(run.QualityTier), colorize)
		}
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			run.JobID,
			result,
			fmt.Sprintf("%d/%d", run.CacheHits, run.CacheHits+run.CacheMisses),
			tier,
			formatDuration(run.Duration),
			formatStamp(run.StartedAt),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Job", "Result", "Cached", "Quality", "Duration", "Started"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	))
}
