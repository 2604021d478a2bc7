package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/substratelabs/failurelens-backend/internal/app"
	"github.com/substratelabs/failurelens-backend/internal/temporalx/knowledgerefresh"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Host the Temporal knowledge refresh worker until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.ModeWorker, func(ctx context.Context, a *app.App) error {
				runner, err := a.NewWorker()
				if err != nil {
					return err
				}
				if err := runner.Start(ctx); err != nil {
					return err
				}
				a.Log.Info("Knowledge worker running", "task_queue", a.Cfg.Temporal.TaskQueue)
				<-ctx.Done()
				return nil
			})
		},
	}
}

func scheduleCmd() *cobra.Command {
	var cron string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create the recurring knowledge refresh schedule if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.ModeWorker, func(ctx context.Context, a *app.App) error {
				if a.Clients.Temporal == nil {
					return fmt.Errorf("TEMPORAL_ADDRESS is not configured")
				}
				spec := cron
				if spec == "" {
					spec = a.Cfg.KnowledgeCron
				}
				created, err := knowledgerefresh.EnsureSchedule(ctx, a.Clients.Temporal, a.Cfg.Temporal.TaskQueue, spec)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"schedule_id": knowledgerefresh.ScheduleID,
					"cron":        spec,
					"created":     created,
				})
			})
		},
	}
	cmd.Flags().StringVar(&cron, "cron", "", "cron expression (defaults to knowledge_refresh_cron)")
	return cmd
}

func refreshCmd() *cobra.Command {
	var skipDetection, wait bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Start one knowledge refresh workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, app.ModeWorker, func(ctx context.Context, a *app.App) error {
				if a.Clients.Temporal == nil {
					return fmt.Errorf("TEMPORAL_ADDRESS is not configured")
				}
				run, err := knowledgerefresh.Start(ctx, a.Clients.Temporal, a.Cfg.Temporal.TaskQueue, knowledgerefresh.Input{SkipDetection: skipDetection})
				if err != nil {
					return err
				}
				if !wait {
					return printJSON(cmd, map[string]any{"workflow_id": run.GetID(), "run_id": run.GetRunID()})
				}
				var res knowledgerefresh.Result
				if err := run.Get(ctx, &res); err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().BoolVar(&skipDetection, "skip-detection", false, "only aggregate patterns")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the workflow completes and print its result")
	return cmd
}
