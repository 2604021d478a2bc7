package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

type AnalysisHandler struct {
	analyses services.AnalysisService
}

func NewAnalysisHandler(analyses services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analyses: analyses}
}

// POST /api/analyses
func (h *AnalysisHandler) Create(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var req services.AnalysisInput
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.analyses.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"analysis": a})
}

// GET /api/analyses?limit=&offset=
func (h *AnalysisHandler) List(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", defaultPageSize, maxPageSize)
	offset := intQuery(c, "offset", 0, 0)
	rows, err := h.analyses.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"analyses": rows, "limit": limit, "offset": offset})
}

// GET /api/analyses/:id
func (h *AnalysisHandler) Get(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "invalid_analysis_id")
	if !ok {
		return
	}
	a, err := h.analyses.Get(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"analysis": a})
}
