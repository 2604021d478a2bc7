package knowledgerefresh

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/substratelabs/failurelens-backend/internal/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type Aggregator interface {
	Run(ctx context.Context) (knowledge.AggregationSummary, error)
}

type Detector interface {
	Detect(ctx context.Context) (knowledge.DetectionSummary, error)
}

type Activities struct {
	Log        *logger.Logger
	Aggregator Aggregator
	Detector   Detector
}

func (a *Activities) AggregateKnowledge(ctx context.Context) (AggregateResult, error) {
	if a == nil || a.Aggregator == nil {
		return AggregateResult{}, fmt.Errorf("knowledgerefresh: aggregator not configured")
	}
	summary, err := a.Aggregator.Run(ctx)
	if errors.Is(err, knowledge.ErrAggregationInProgress) {
		a.logger(ctx).Info("Knowledge aggregation already running elsewhere; skipping")
		return AggregateResult{Summary: summary, Skipped: true}, nil
	}
	if err != nil {
		return AggregateResult{}, err
	}
	return AggregateResult{Summary: summary}, nil
}

func (a *Activities) DetectPatterns(ctx context.Context) (knowledge.DetectionSummary, error) {
	if a == nil || a.Detector == nil {
		return knowledge.DetectionSummary{}, fmt.Errorf("knowledgerefresh: detector not configured")
	}
	return a.Detector.Detect(ctx)
}

func (a *Activities) logger(ctx context.Context) *logger.Logger {
	if a.Log == nil {
		return logger.Nop()
	}
	if activity.IsActivity(ctx) {
		info := activity.GetInfo(ctx)
		return a.Log.With("workflow_id", info.WorkflowExecution.ID, "activity", info.ActivityType.Name)
	}
	return a.Log
}
