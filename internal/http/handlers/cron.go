package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/knowledge"
	"github.com/substratelabs/failurelens-backend/internal/platform/logger"
)

type KnowledgeAggregator interface {
	Run(ctx context.Context) (knowledge.AggregationSummary, error)
}

type PatternDetector interface {
	Detect(ctx context.Context) (knowledge.DetectionSummary, error)
}

// CronHandler serves the scheduler-triggered knowledge jobs.
type CronHandler struct {
	log        *logger.Logger
	aggregator KnowledgeAggregator
	detector   PatternDetector
}

func NewCronHandler(log *logger.Logger, aggregator KnowledgeAggregator, detector PatternDetector) *CronHandler {
	return &CronHandler{log: log.With("handler", "CronHandler"), aggregator: aggregator, detector: detector}
}

// POST /api/cron/aggregate-knowledge
func (h *CronHandler) AggregateKnowledge(c *gin.Context) {
	summary, err := h.aggregator.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, knowledge.ErrAggregationInProgress) {
			response.RespondError(c, http.StatusConflict, "aggregation_in_progress", err)
			return
		}
		h.log.Error("Knowledge aggregation failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "aggregation_failed", err)
		return
	}
	response.RespondOK(c, summary)
}

// POST /api/cron/detect-patterns
func (h *CronHandler) DetectPatterns(c *gin.Context) {
	summary, err := h.detector.Detect(c.Request.Context())
	if err != nil {
		h.log.Error("Pattern detection failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "detection_failed", err)
		return
	}
	response.RespondOK(c, summary)
}
