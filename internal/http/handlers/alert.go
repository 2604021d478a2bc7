package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

type AlertHandler struct {
	alerts services.AlertService
}

func NewAlertHandler(alerts services.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// GET /api/admin/alerts?status=active&limit=50
func (h *AlertHandler) List(c *gin.Context) {
	rows, err := h.alerts.List(c.Request.Context(), c.Query("status"), intQuery(c, "limit", 50, 200))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"alerts": rows})
}

// PATCH /api/admin/alerts/:id
// body: { "status": "acknowledged" | "resolved" }
func (h *AlertHandler) Update(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id", "invalid_alert_id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	alert, err := h.alerts.Transition(c.Request.Context(), id, req.Status, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"alert": alert})
}
