package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

type InvestigationHandler struct {
	investigations services.InvestigationService
}

func NewInvestigationHandler(investigations services.InvestigationService) *InvestigationHandler {
	return &InvestigationHandler{investigations: investigations}
}

// POST /api/investigations
func (h *InvestigationHandler) Create(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var req services.InvestigationInput
	if !bindJSON(c, &req) {
		return
	}
	inv, err := h.investigations.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"investigation": inv})
}

// GET /api/investigations
func (h *InvestigationHandler) List(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	rows, err := h.investigations.List(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"investigations": rows})
}

// GET /api/investigations/:id
func (h *InvestigationHandler) Get(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "invalid_investigation_id")
	if !ok {
		return
	}
	inv, err := h.investigations.Get(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"investigation": inv})
}

// PATCH /api/investigations/:id/status
// body: { "status": "containment", "notes": "..." }
func (h *InvestigationHandler) UpdateStatus(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "invalid_investigation_id")
	if !ok {
		return
	}
	var req struct {
		Status string  `json:"status" binding:"required"`
		Notes  *string `json:"notes"`
	}
	if !bindJSON(c, &req) {
		return
	}
	inv, err := h.investigations.Transition(c.Request.Context(), userID, id, req.Status, req.Notes)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"investigation": inv})
}
