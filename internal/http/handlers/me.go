package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
	"github.com/substratelabs/failurelens-backend/internal/services"
)

type MeHandler struct {
	profiles services.ProfileService
}

func NewMeHandler(profiles services.ProfileService) *MeHandler {
	return &MeHandler{profiles: profiles}
}

// GET /api/me
func (h *MeHandler) GetMe(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	me, err := h.profiles.GetMe(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": me})
}

// GET /api/usage
func (h *MeHandler) GetUsage(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	usage, err := h.profiles.Usage(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"usage": usage})
}
