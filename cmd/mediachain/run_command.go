package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"mediachain/internal/chain"
	"mediachain/internal/pipeline"
	"mediachain/internal/services"
)

var errRunFailed = errors.New("chain run failed")

func newRunCommand(ctx *commandContext) *cobra.Command {
	var req pipeline.Request
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run <media-file>",
		Short: "Run the analysis chain over a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			p, err := pipeline.New(cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			req.Source = args[0]
			result, err := p.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
			} else {
				printRunResult(cmd.OutOrStdout(), result, shouldColorize(cmd.OutOrStdout()))
			}
			if !result.Success {
				return fmt.Errorf("%w: %s", errRunFailed, services.Details(result.Err).Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.JobID, "job-id", "", "Job identifier (defaults to a new uuid)")
	cmd.Flags().StringVar(&req.EpisodeID, "episode", "", "Episode identifier recorded with the run")
	cmd.Flags().BoolVarP(&req.Force, "force", "f", false, "Recompute steps even when cached")
	cmd.Flags().StringVar(&req.StartFrom, "start-from", "", "First step to run; earlier prerequisites must be cached")
	cmd.Flags().StringVar(&req.StopAt, "stop-at", "", "Last step to run")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run result as JSON")
	return cmd
}

func printRunResult(out io.Writer, result *chain.Result, colorize bool) {
	meta := result.Metadata
	status := "succeeded"
	if !result.Success {
		status = "failed at " + result.ErrorStep
	}
	fmt.Fprintf(out, "Job %s %s in %s (%d cached, %d computed)\n",
		meta.JobID, status, formatDuration(meta.Duration), meta.CacheHits, meta.CacheMisses)

	rows := make([][]string, 0, len(meta.Metrics))
	for _, m := range meta.Metrics {
		outcome := "computed"
		switch {
		case slices.Contains(meta.StepsFailed, m.Step):
			outcome = "failed"
		case m.CacheHit:
			outcome = "cached"
		}
		tier := "-"
		if result.Quality != nil {
			if assessment, ok := result.Quality.Step(m.Step); ok {
				tier = tierLabel(assessment.Tier, colorize)
			}
		}
		rows = append(rows, []string{m.Step, outcome, formatDuration(m.Duration), tier, shortHash(m.CacheKey)})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"Step", "Outcome", "Duration", "Quality", "Cache Key"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		))
	}

	if result.Quality != nil {
		fmt.Fprintf(out, "Overall quality: %s\n", tierLabel(result.Quality.OverallTier, colorize))
		for _, rec := range result.Quality.Recommendations {
			fmt.Fprintf(out, "  - %s: %s\n", rec.Step, rec.Advice)
		}
	}
	for _, w := range meta.Warnings {
		if w.Severity == chain.SeverityInfo {
			continue
		}
		fmt.Fprintf(out, "%s [%s] %s\n", strings.ToUpper(string(w.Severity)), w.Step, w.Message)
	}
}
