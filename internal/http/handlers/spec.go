package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

type SpecHandler struct {
	specs services.SpecService
}

func NewSpecHandler(specs services.SpecService) *SpecHandler {
	return &SpecHandler{specs: specs}
}

// POST /api/specs
func (h *SpecHandler) Create(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var req services.SpecInput
	if !bindJSON(c, &req) {
		return
	}
	sr, err := h.specs.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"spec": sr})
}

// GET /api/specs
func (h *SpecHandler) List(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", defaultPageSize, maxPageSize)
	offset := intQuery(c, "offset", 0, 0)
	rows, err := h.specs.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"specs": rows, "limit": limit, "offset": offset})
}

// GET /api/specs/:id
func (h *SpecHandler) Get(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "invalid_spec_id")
	if !ok {
		return
	}
	sr, err := h.specs.Get(c.Request.Context(), userID, id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"spec": sr})
}
