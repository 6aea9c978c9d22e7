package api

import (
	"encoding/json"
	"net/http"

	"advisor-marketplace/backend/internal/gate"
	"advisor-marketplace/backend/internal/service"
	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// inboundEvent is the envelope the chat platform posts for user actions.
// The payload shape depends on the kind.
type inboundEvent struct {
	UserID    uint            `json:"user_id" binding:"required"`
	Kind      string          `json:"kind" binding:"required"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

type requestEventPayload struct {
	AdvisorID uint   `json:"advisor_id"`
	Theme     string `json:"theme"`
}

type sendEventPayload struct {
	Content  string `json:"content"`
	MediaRef string `json:"media_ref"`
}

type rateEventPayload struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// EventHandler is the inbound boundary for the external chat transport.
// Every event runs the reconciliation gate before it reaches the engine;
// a gated event is dropped here and the user already received a
// corrective notice out of band.
type EventHandler struct {
	consultations *service.ConsultationService
	gate          *gate.Gate
	token         string
	log           *logger.Logger
}

func NewEventHandler(consultations *service.ConsultationService, g *gate.Gate, token string, log *logger.Logger) *EventHandler {
	return &EventHandler{consultations: consultations, gate: g, token: token, log: log}
}

// Handle processes POST /api/v1/events.
func (h *EventHandler) Handle(c *gin.Context) {
	if h.token != "" && c.GetHeader("X-Webhook-Token") != h.token {
		c.Error(apperrors.Unauthorized("invalid webhook token"))
		return
	}

	var event inboundEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.Error(apperrors.BadRequest(err.Error()))
		return
	}

	ctx := c.Request.Context()

	if !h.gate.Check(ctx, event.UserID) {
		// Swallowed: cursor repaired, corrective notice sent.
		c.JSON(http.StatusAccepted, gin.H{"dropped": true})
		return
	}

	switch event.Kind {
	case "request":
		var p requestEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.Error(apperrors.BadRequest("invalid request payload"))
			return
		}
		session, err := h.consultations.Request(ctx, event.UserID, p.AdvisorID, p.Theme)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusCreated, session)

	case "accept":
		session, err := h.consultations.Accept(ctx, event.SessionID, event.UserID)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, session)

	case "decline":
		session, err := h.consultations.Decline(ctx, event.SessionID, event.UserID)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, session)

	case "cancel":
		session, err := h.consultations.Cancel(ctx, event.SessionID, event.UserID)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, session)

	case "send":
		var p sendEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.Error(apperrors.BadRequest("invalid message payload"))
			return
		}
		msg, buffered, err := h.consultations.Send(ctx, event.SessionID, event.UserID, p.Content, p.MediaRef)
		if err != nil {
			c.Error(err)
			return
		}
		if buffered {
			c.JSON(http.StatusAccepted, gin.H{"buffered": true})
			return
		}
		c.JSON(http.StatusCreated, msg)

	case "complete":
		session, err := h.consultations.Complete(ctx, event.SessionID, event.UserID)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, session)

	case "rate":
		var p rateEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.Error(apperrors.BadRequest("invalid rating payload"))
			return
		}
		review, err := h.consultations.Rate(ctx, event.SessionID, event.UserID, p.Rating, p.Comment)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusCreated, review)

	default:
		c.Error(apperrors.BadRequest("unknown event kind: " + event.Kind))
	}
}
