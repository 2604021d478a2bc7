package knowledgerefresh

import "github.com/substratelabs/failurelens-backend/internal/knowledge"

const (
	WorkflowName      = "knowledge_refresh"
	ActivityAggregate = "knowledge_aggregate"
	ActivityDetect    = "knowledge_detect_patterns"

	ScheduleID = "failurelens-knowledge-refresh"
)

type Input struct {
	SkipDetection bool `json:"skip_detection,omitempty"`
}

type AggregateResult struct {
	Summary knowledge.AggregationSummary `json:"summary"`
	// Skipped is set when another process held the run lock.
	Skipped bool `json:"skipped,omitempty"`
}

type Result struct {
	Aggregation AggregateResult             `json:"aggregation"`
	Detection   *knowledge.DetectionSummary `json:"detection,omitempty"`
}
