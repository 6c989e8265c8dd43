package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediachain/internal/pipeline"
)

func newOrderCommand(ctx *commandContext) *cobra.Command {
	var startFrom, stopAt string

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Show the step execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			reg, err := pipeline.BuildRegistry(cfg, logger, nil)
			if err != nil {
				return err
			}
			order, err := reg.ExecutionOrder(startFrom, stopAt)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(order))
			for i, def := range order {
				deps := strings.Join(def.Dependencies(), ", ")
				if deps == "" {
					deps = "-"
				}
				stage, _ := cfg.Stage(def.Name())
				rows = append(rows, []string{strconv.Itoa(i + 1), def.Name(), def.Version(), deps, stage.Command})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Step", "Version", "Depends On", "Command"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&startFrom, "start-from", "", "First step of the window")
	cmd.Flags().StringVar(&stopAt, "stop-at", "", "Last step of the window")
	return cmd
}
