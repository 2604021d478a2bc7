package knowledgerefresh

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/substratelabs/failurelens-backend/internal/knowledge"
)

// Workflow aggregates feedback into knowledge patterns, then scans recent
// analyses for anomalies.
func Workflow(ctx workflow.Context, in Input) (Result, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})

	var out Result
	if err := workflow.ExecuteActivity(ctx, ActivityAggregate).Get(ctx, &out.Aggregation); err != nil {
		return out, err
	}
	workflow.GetLogger(ctx).Info("Knowledge aggregation finished",
		"patterns_upserted", out.Aggregation.Summary.PatternsUpserted,
		"skipped", out.Aggregation.Skipped,
	)
	if in.SkipDetection {
		return out, nil
	}

	var det knowledge.DetectionSummary
	if err := workflow.ExecuteActivity(ctx, ActivityDetect).Get(ctx, &det); err != nil {
		return out, err
	}
	out.Detection = &det
	return out, nil
}
