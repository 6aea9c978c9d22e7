package api

import (
	"net/http"
	"strconv"

	"advisor-marketplace/backend/internal/gate"
	"advisor-marketplace/backend/internal/service"
	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ConsultationHandler exposes the session lifecycle. Every mutating
// endpoint runs the reconciliation gate first: a request arriving against
// stale client state is swallowed, the cursor is repaired, and the caller
// gets a STALE_STATE response telling it to refresh.
type ConsultationHandler struct {
	consultations *service.ConsultationService
	gate          *gate.Gate
}

func NewConsultationHandler(consultations *service.ConsultationService, g *gate.Gate) *ConsultationHandler {
	return &ConsultationHandler{consultations: consultations, gate: g}
}

// checkGate returns false and writes the response when the event must be
// dropped.
func (h *ConsultationHandler) checkGate(c *gin.Context) bool {
	if h.gate.Check(c.Request.Context(), middleware.UserID(c)) {
		return true
	}
	c.Error(apperrors.StaleState("your view was out of date and has been refreshed, please retry"))
	return false
}

type requestConsultationRequest struct {
	AdvisorID uint   `json:"advisor_id" binding:"required"`
	Theme     string `json:"theme"`
}

// Request handles POST /api/consultations.
func (h *ConsultationHandler) Request(c *gin.Context) {
	if !h.checkGate(c) {
		return
	}

	var req requestConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	session, err := h.consultations.Request(c.Request.Context(), middleware.UserID(c), req.AdvisorID, req.Theme)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// Accept handles POST /api/consultations/:id/accept.
func (h *ConsultationHandler) Accept(c *gin.Context) {
	if !h.checkGate(c) {
		return
	}

	session, err := h.consultations.Accept(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Decline handles POST /api/consultations/:id/decline.
func (h *ConsultationHandler) Decline(c *gin.Context) {
	if !h.checkGate(c) {
		return
	}

	session, err := h.consultations.Decline(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Cancel handles POST /api/consultations/:id/cancel.
func (h *ConsultationHandler) Cancel(c *gin.Context) {
	if !h.checkGate(c) {
		return
	}

	session, err := h.consultations.Cancel(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

type sendMessageRequest struct {
	Content  string `json:"content" binding:"required"`
	MediaRef string `json:"media_ref"`
}

// Send handles POST /api/consultations/:id/messages.
func (h *ConsultationHandler) Send(c *gin.Context) {
	if !h.checkGate(c) {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	msg, buffered, err := h.consultations.Send(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Content, req.MediaRef)
	if err != nil {
		c.Error(err)
		return
	}

	if buffered {
		c.JSON(http.StatusAccepted, gin.H{"buffered": true})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Complete handles POST /api/consultations/:id/complete.
func (h *ConsultationHandler) Complete(c *gin.Context) {
	if !h.checkGate(c) {
		return
	}

	session, err := h.consultations.Complete(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

type rateRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// Rate handles POST /api/consultations/:id/reviews.
func (h *ConsultationHandler) Rate(c *gin.Context) {
	if !h.checkGate(c) {
		return
	}

	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	review, err := h.consultations.Rate(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Rating, req.Comment)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

// Get handles GET /api/consultations/:id.
func (h *ConsultationHandler) Get(c *gin.Context) {
	session, err := h.consultations.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Open handles GET /api/consultations/open.
func (h *ConsultationHandler) Open(c *gin.Context) {
	session, err := h.consultations.Open(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// Messages handles GET /api/consultations/:id/messages.
func (h *ConsultationHandler) Messages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.consultations.Messages(c.Request.Context(), c.Param("id"), middleware.UserID(c), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
