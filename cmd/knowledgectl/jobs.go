package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/substratelabs/failurelens-backend/internal/app"
)

func aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild failure patterns from analyses with verified feedback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.ModeJobs, func(ctx context.Context, a *app.App) error {
				summary, err := a.Knowledge.Aggregator.Run(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Raise alerts for recurring failure patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.ModeJobs, func(ctx context.Context, a *app.App) error {
				summary, err := a.Knowledge.Detector.Detect(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
}
