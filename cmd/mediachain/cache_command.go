package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediachain/internal/config"
	"mediachain/internal/pipeline"
	"mediachain/internal/stepcache"
)

const cacheDisabledMessage = "Step cache is disabled (set [cache] enabled = true in config.toml)"

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the step cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheClearStepCommand(ctx))
	cacheCmd.AddCommand(newCacheInvalidateCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show step cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := stepCache(ctx)
			if err != nil {
				return err
			}
			stats := cache.Stats()
			if jsonOutput {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			if !stats.Enabled {
				fmt.Fprintln(out, cacheDisabledMessage)
				return nil
			}
			printCacheStats(out, stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print statistics as JSON")
	return cmd
}

func printCacheStats(out io.Writer, stats stepcache.Stats) {
	fmt.Fprintf(out, "Root:    %s\n", stats.Root)
	fmt.Fprintf(out, "Entries: %d\n", stats.TotalEntries)
	fmt.Fprintf(out, "Size:    %s\n", humanBytes(stats.TotalBytes))
	if stats.TotalFSBytes > 0 {
		ratio := float64(stats.FreeBytes) / float64(stats.TotalFSBytes)
		fmt.Fprintf(out, "Disk:    %s free (%.1f%%)\n", humanBytes(int64(stats.FreeBytes)), ratio*100)
	}
	if len(stats.Steps) == 0 {
		fmt.Fprintln(out, "Cached steps: none")
		return
	}
	rows := make([][]string, 0, len(stats.Steps))
	for _, step := range stats.Steps {
		rows = append(rows, []string{step.Step, strconv.Itoa(step.Entries), humanBytes(step.Bytes)})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Step", "Entries", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	))
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached step output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := stepCache(ctx)
			if err != nil {
				return err
			}
			if !cache.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), cacheDisabledMessage)
				return nil
			}
			removed := cache.ClearAll()
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache %s\n", removed, plural(removed, "entry", "entries"))
			return nil
		},
	}
}

func newCacheClearStepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-step <step>",
		Short: "Remove every cached output of one step",
		Long:  "Remove every cached output of one step. Steps: " + stageNames() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := stepCache(ctx)
			if err != nil {
				return err
			}
			if !cache.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), cacheDisabledMessage)
				return nil
			}
			step := strings.TrimSpace(args[0])
			removed := cache.ClearStep(step)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s %s\n", removed, step, plural(removed, "entry", "entries"))
			return nil
		},
	}
}

func newCacheInvalidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <step> <media-file>",
		Short: "Remove the cached output of one step for one media file",
		Long:  "Remove the cached output of one step for one media file under the current configuration. Steps: " + stageNames() + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache, err := stepCache(ctx)
			if err != nil {
				return err
			}
			if !cache.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), cacheDisabledMessage)
				return nil
			}
			key, err := pipeline.CacheKey(cfg, strings.TrimSpace(args[0]), args[1])
			if err != nil {
				return err
			}
			if cache.Invalidate(key) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No cached %s output for %s\n", key.Step, args[1])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s (%s)\n", key.Step, shortHash(key.String()))
			return nil
		},
	}
}

func stepCache(ctx *commandContext) (*stepcache.Cache, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, err
	}
	return stepcache.NewFromConfig(cfg, logger), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// stageNames lists configured stages for help text.
func stageNames() string {
	return strings.Join(config.StageNames(), ", ")
}
