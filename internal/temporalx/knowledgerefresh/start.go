package knowledgerefresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
)

// Start launches one refresh run.
func Start(ctx context.Context, c client.Client, taskQueue string, in Input) (client.WorkflowRun, error) {
	if c == nil {
		return nil, fmt.Errorf("knowledgerefresh: temporal client is not configured")
	}
	return c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "knowledge-refresh-" + time.Now().UTC().Format("20060102T150405"),
		TaskQueue: taskQueue,
	}, WorkflowName, in)
}

// EnsureSchedule registers a cron schedule for the refresh workflow. An
// existing schedule with the same id is left alone.
func EnsureSchedule(ctx context.Context, c client.Client, taskQueue, cron string) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("knowledgerefresh: temporal client is not configured")
	}
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: ScheduleID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cron},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        ScheduleID + "-run",
			Workflow:  WorkflowName,
			Args:      []interface{}{Input{}},
			TaskQueue: taskQueue,
		},
	})
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create schedule: %w", err)
	}
	return true, nil
}
