package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

type FeedbackHandler struct {
	feedback services.FeedbackService
}

func NewFeedbackHandler(feedback services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// POST /api/feedback
// body: { "analysis_id" | "spec_id", "was_helpful", "outcome", "actual_root_cause", "what_worked", "rating" }
func (h *FeedbackHandler) Submit(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var req services.FeedbackInput
	if !bindJSON(c, &req) {
		return
	}
	row, err := h.feedback.Submit(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"feedback": row})
}

// GET /api/feedback/:analysis_id
func (h *FeedbackHandler) GetForAnalysis(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	analysisID, ok := uuidParam(c, "analysis_id", "invalid_analysis_id")
	if !ok {
		return
	}
	row, err := h.feedback.GetForAnalysis(c.Request.Context(), userID, analysisID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"feedback": row})
}
