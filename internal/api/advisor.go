package api

import (
	"net/http"
	"strconv"

	"advisor-marketplace/backend/internal/service"
	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// AdvisorHandler serves the public advisor directory and advisor
// self-service endpoints.
type AdvisorHandler struct {
	advisors *service.AdvisorService
}

func NewAdvisorHandler(advisors *service.AdvisorService) *AdvisorHandler {
	return &AdvisorHandler{advisors: advisors}
}

// List handles GET /api/advisors.
func (h *AdvisorHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	advisors, err := h.advisors.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"advisors": advisors})
}

// Get handles GET /api/advisors/:id.
func (h *AdvisorHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.Error(apperrors.BadRequest("invalid advisor id"))
		return
	}

	advisor, err := h.advisors.Get(c.Request.Context(), uint(id))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, advisor)
}

// UpdateSelf handles PUT /api/advisors/me.
func (h *AdvisorHandler) UpdateSelf(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	advisor, err := h.advisors.UpdateSelf(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, advisor)
}

// Heartbeat handles POST /api/advisors/me/heartbeat.
func (h *AdvisorHandler) Heartbeat(c *gin.Context) {
	if err := h.advisors.Heartbeat(c.Request.Context(), middleware.UserID(c)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
