package service

import (
	"context"
	"math"
	"time"

	"advisor-marketplace/backend/internal/buffer"
	"advisor-marketplace/backend/internal/cursor"
	"advisor-marketplace/backend/internal/idempotency"
	"advisor-marketplace/backend/internal/models"
	"advisor-marketplace/backend/internal/repository"
	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// UserDirectory resolves display names for notification templates.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID uint) string
}

// ConsultationConfig carries the engine's tunable windows.
type ConsultationConfig struct {
	// PendingWindow is how long a request waits for the advisor.
	PendingWindow time.Duration
	// KeyBucket is the idempotency-key time bucket.
	KeyBucket time.Duration
}

// ConsultationService implements the session lifecycle: request, accept,
// decline, cancel, send, complete, rate, expire. All writes to the session
// record go through the store's conditional transition, so concurrent
// actors on one session resolve deterministically.
type ConsultationService struct {
	sessions  repository.SessionStore
	messages  repository.MessageRepository
	reviews   repository.ReviewRepository
	advisors  repository.AdvisorRepository
	buffer    buffer.Store
	cursors   cursor.Store
	notifier  Notifier
	archiver  Archiver
	scheduler ExpiryScheduler
	directory UserDirectory
	log       *logger.Logger
	cfg       ConsultationConfig

	now         func() time.Time
	transitions metric.Int64Counter
}

// NewConsultationService wires the lifecycle engine.
func NewConsultationService(
	sessions repository.SessionStore,
	messages repository.MessageRepository,
	reviews repository.ReviewRepository,
	advisors repository.AdvisorRepository,
	buf buffer.Store,
	cursors cursor.Store,
	notifier Notifier,
	archiver Archiver,
	scheduler ExpiryScheduler,
	directory UserDirectory,
	log *logger.Logger,
	cfg ConsultationConfig,
) *ConsultationService {
	if cfg.PendingWindow == 0 {
		cfg.PendingWindow = 15 * time.Minute
	}
	if cfg.KeyBucket == 0 {
		cfg.KeyBucket = idempotency.DefaultBucket
	}

	meter := otel.Meter("advisor-marketplace/consultation")
	transitions, _ := meter.Int64Counter("consultation_transitions_total",
		metric.WithDescription("Session lifecycle transitions by target status"))

	return &ConsultationService{
		sessions:    sessions,
		messages:    messages,
		reviews:     reviews,
		advisors:    advisors,
		buffer:      buf,
		cursors:     cursors,
		notifier:    notifier,
		archiver:    archiver,
		scheduler:   scheduler,
		directory:   directory,
		log:         log,
		cfg:         cfg,
		now:         time.Now,
		transitions: transitions,
	}
}

// PendingWindow exposes the configured wait window.
func (s *ConsultationService) PendingWindow() time.Duration {
	return s.cfg.PendingWindow
}

// Request opens a pending consultation from client to advisor. Duplicate
// submissions within the key bucket collapse onto the original session and
// return it as an idempotent success.
func (s *ConsultationService) Request(ctx context.Context, clientID, advisorID uint, theme string) (*models.Session, error) {
	now := s.now()
	key := idempotency.Key(clientID, advisorID, now, s.cfg.KeyBucket)

	if open, err := s.sessions.FindOpenByUser(ctx, clientID); err != nil {
		return nil, err
	} else if open != nil {
		// A re-submission within the key bucket replays the original
		// pending session instead of erroring.
		if open.ClientID == clientID && open.Status == models.StatusPending &&
			open.RequestKey != nil && *open.RequestKey == key {
			return open, nil
		}
		return nil, apperrors.AlreadyInSession("you already have an open consultation")
	}

	if _, err := s.advisors.GetProfile(ctx, advisorID); err != nil {
		return nil, err
	}

	// Fast pre-check for a friendly error; the partial unique index on
	// advisor+open-status is the actual guarantee against the race.
	if open, err := s.sessions.FindOpenByUser(ctx, advisorID); err != nil {
		return nil, err
	} else if open != nil && open.AdvisorID == advisorID {
		return nil, apperrors.AdvisorBusy("advisor is in another consultation")
	}

	expiresAt := now.Add(s.cfg.PendingWindow)

	session := &models.Session{
		ID:         uuid.New().String(),
		ClientID:   clientID,
		AdvisorID:  advisorID,
		Status:     models.StatusPending,
		RequestKey: &key,
		Theme:      theme,
		ExpiresAt:  &expiresAt,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			return s.resolveConflict(ctx, clientID, advisorID, key)
		}
		return nil, err
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", "pending")))
	s.scheduler.Schedule(session.ID, expiresAt)
	s.setCursor(ctx, clientID, cursor.State{Phase: cursor.PhaseWaiting, SessionID: session.ID})
	s.notifier.Notify(ctx, advisorID, Notification{
		Kind:      NotifyNewRequest,
		SessionID: session.ID,
		PeerName:  s.displayName(ctx, clientID),
	})

	return session, nil
}

// resolveConflict maps a store Conflict on create back to its cause: an
// idempotent replay returns the original session, otherwise the losing side
// of a uniqueness race gets the matching typed error.
func (s *ConsultationService) resolveConflict(ctx context.Context, clientID, advisorID uint, key string) (*models.Session, error) {
	if existing, err := s.sessions.GetByRequestKey(ctx, key); err == nil {
		return existing, nil
	}

	open, err := s.sessions.FindOpenByUser(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if open != nil && open.ClientID == clientID {
		return nil, apperrors.AlreadyInSession("you already have an open consultation")
	}
	return nil, apperrors.AdvisorBusy("advisor is in another consultation")
}

// Accept moves a pending session to active and flushes the pre-accept
// buffer into durable messages in original order.
func (s *ConsultationService) Accept(ctx context.Context, sessionID string, advisorID uint) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.AdvisorID != advisorID {
		return nil, apperrors.Forbidden("consultation belongs to another advisor")
	}
	if session.Status != models.StatusPending {
		return nil, apperrors.InvalidState("consultation is not pending")
	}

	updated, err := s.sessions.Transition(ctx, sessionID, models.StatusPending, models.StatusActive,
		map[string]interface{}{"expires_at": nil})
	if err != nil {
		return nil, err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", "active")))

	s.flushBuffer(ctx, sessionID)

	if err := s.advisors.TouchActivity(ctx, advisorID, s.now()); err != nil {
		s.log.Warn("failed to touch advisor activity", "advisor_id", advisorID, "error", err.Error())
	}

	s.setCursor(ctx, updated.ClientID, cursor.State{Phase: cursor.PhaseChatting, SessionID: sessionID})
	s.setCursor(ctx, advisorID, cursor.State{Phase: cursor.PhaseChatting, SessionID: sessionID})
	s.notifier.Notify(ctx, updated.ClientID, Notification{
		Kind:      NotifyAccepted,
		SessionID: sessionID,
		PeerName:  s.displayName(ctx, advisorID),
	})

	return updated, nil
}

// flushBuffer drains pre-accept messages and persists them with their
// original sender and timestamp, preserving append order.
func (s *ConsultationService) flushBuffer(ctx context.Context, sessionID string) {
	buffered, err := s.buffer.Drain(ctx, sessionID)
	if err != nil {
		s.log.Warn("failed to drain message buffer", "session_id", sessionID, "error", err.Error())
		return
	}
	if len(buffered) == 0 {
		return
	}

	msgs := make([]models.Message, len(buffered))
	for i, b := range buffered {
		msgs[i] = models.Message{
			SessionID: sessionID,
			SenderID:  b.SenderID,
			Content:   b.Content,
			MediaRef:  b.MediaRef,
			SentAt:    b.SentAt,
		}
	}
	if err := s.messages.CreateInOrder(ctx, msgs); err != nil {
		s.log.LogError(err, "failed to persist buffered messages", "session_id", sessionID, "count", len(msgs))
	}
}

// Decline rejects a pending request. The buffer is discarded, not migrated.
func (s *ConsultationService) Decline(ctx context.Context, sessionID string, advisorID uint) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.AdvisorID != advisorID {
		return nil, apperrors.Forbidden("consultation belongs to another advisor")
	}

	updated, err := s.sessions.Transition(ctx, sessionID, models.StatusPending, models.StatusDeclined, nil)
	if err != nil {
		return nil, err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", "declined")))

	s.discardBuffer(ctx, sessionID)
	s.clearCursor(ctx, updated.ClientID)
	s.notifier.Notify(ctx, updated.ClientID, Notification{
		Kind:      NotifyDeclined,
		SessionID: sessionID,
		PeerName:  s.displayName(ctx, advisorID),
	})

	return updated, nil
}

// Cancel withdraws a pending request. Only the requesting client may cancel.
func (s *ConsultationService) Cancel(ctx context.Context, sessionID string, clientID uint) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ClientID != clientID {
		return nil, apperrors.Forbidden("only the requesting client may cancel")
	}

	updated, err := s.sessions.Transition(ctx, sessionID, models.StatusPending, models.StatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", "cancelled")))

	s.discardBuffer(ctx, sessionID)
	s.clearCursor(ctx, clientID)

	return updated, nil
}

// Send routes a message according to session state: persisted and forwarded
// when active, buffered when pending. The boolean result distinguishes the
// two so callers can render different confirmations.
func (s *ConsultationService) Send(ctx context.Context, sessionID string, senderID uint, content, mediaRef string) (*models.Message, bool, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if !session.Participant(senderID) {
		return nil, false, apperrors.Forbidden("not a participant of this consultation")
	}

	switch session.Status {
	case models.StatusActive:
		msg := &models.Message{
			SessionID: sessionID,
			SenderID:  senderID,
			Content:   content,
			MediaRef:  mediaRef,
			SentAt:    s.now(),
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return nil, false, err
		}
		if senderID == session.AdvisorID {
			if err := s.advisors.TouchActivity(ctx, senderID, s.now()); err != nil {
				s.log.Warn("failed to touch advisor activity", "advisor_id", senderID, "error", err.Error())
			}
		}
		s.notifier.Notify(ctx, session.Peer(senderID), Notification{
			Kind:      NotifyMessage,
			SessionID: sessionID,
			PeerName:  s.displayName(ctx, senderID),
			Body:      content,
		})
		return msg, false, nil

	case models.StatusPending:
		err := s.buffer.Append(ctx, sessionID, buffer.Message{
			SenderID: senderID,
			Content:  content,
			MediaRef: mediaRef,
			SentAt:   s.now(),
		})
		if err != nil {
			return nil, false, err
		}
		return nil, true, nil

	default:
		return nil, false, apperrors.InvalidState("consultation is " + string(session.Status))
	}
}

// Complete ends an active session. Either participant may complete; a
// second completion of an already-terminal session is a no-op success so
// duplicate events from both sides stay benign.
func (s *ConsultationService) Complete(ctx context.Context, sessionID string, userID uint) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Participant(userID) {
		return nil, apperrors.Forbidden("not a participant of this consultation")
	}
	if session.Status.Terminal() {
		return session, nil
	}
	if session.Status != models.StatusActive {
		return nil, apperrors.InvalidState("consultation is not active")
	}

	completedAt := s.now()
	updated, err := s.sessions.Transition(ctx, sessionID, models.StatusActive, models.StatusCompleted,
		map[string]interface{}{"completed_at": completedAt})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeStaleState) && updated != nil && updated.Status.Terminal() {
			// Lost the race to the other participant; same outcome.
			return updated, nil
		}
		return nil, err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", "completed")))

	s.archiveTranscript(ctx, updated)

	s.setCursor(ctx, updated.ClientID, cursor.State{Phase: cursor.PhaseRating, SessionID: sessionID})
	s.clearCursor(ctx, updated.AdvisorID)
	s.notifier.Notify(ctx, updated.Peer(userID), Notification{
		Kind:      NotifyCompleted,
		SessionID: sessionID,
		PeerName:  s.displayName(ctx, userID),
	})

	return updated, nil
}

// archiveTranscript hands the message history to the archive collaborator.
// Best effort: failure never fails the completion.
func (s *ConsultationService) archiveTranscript(ctx context.Context, session *models.Session) {
	history, err := s.messages.GetBySession(ctx, session.ID)
	if err != nil {
		s.log.Warn("failed to load transcript for archive", "session_id", session.ID, "error", err.Error())
		return
	}

	archiveID, err := s.archiver.Archive(ctx, session, history)
	if err != nil {
		s.log.Warn("transcript archive failed", "session_id", session.ID, "error", err.Error())
		return
	}
	if archiveID == "" {
		return
	}

	if err := s.sessions.SetArchiveID(ctx, session.ID, archiveID); err != nil {
		s.log.Warn("failed to store archive id", "session_id", session.ID, "error", err.Error())
	}
}

// Rate records the client's one-time rating of a completed session and
// recomputes the advisor's rolling aggregate.
func (s *ConsultationService) Rate(ctx context.Context, sessionID string, clientID uint, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.BadRequest("rating must be between 1 and 5")
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ClientID != clientID {
		return nil, apperrors.Forbidden("only the client may rate a consultation")
	}
	if session.Status != models.StatusCompleted {
		return nil, apperrors.InvalidState("consultation is not completed")
	}

	review := &models.Review{
		SessionID: sessionID,
		AdvisorID: session.AdvisorID,
		ClientID:  clientID,
		Rating:    rating,
		Comment:   comment,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, err
	}

	s.recomputeAggregate(ctx, session.AdvisorID)

	s.clearCursor(ctx, clientID)
	s.notifier.Notify(ctx, session.AdvisorID, Notification{
		Kind:      NotifyReviewReceived,
		SessionID: sessionID,
		PeerName:  s.displayName(ctx, clientID),
	})

	return review, nil
}

// recomputeAggregate sets the advisor's rolling rating to the arithmetic
// mean of all their ratings, rounded to two decimals.
func (s *ConsultationService) recomputeAggregate(ctx context.Context, advisorID uint) {
	ratings, err := s.reviews.RatingsByAdvisor(ctx, advisorID)
	if err != nil || len(ratings) == 0 {
		if err != nil {
			s.log.Warn("failed to load ratings for aggregate", "advisor_id", advisorID, "error", err.Error())
		}
		return
	}

	sum := 0
	for _, r := range ratings {
		sum += r
	}
	mean := math.Round(float64(sum)/float64(len(ratings))*100) / 100

	if err := s.advisors.UpdateAggregate(ctx, advisorID, mean, len(ratings)); err != nil {
		s.log.Warn("failed to update advisor aggregate", "advisor_id", advisorID, "error", err.Error())
	}
}

// Expire moves a still-pending session past its deadline to expired. Safe
// to run redundantly with the sweep: the loser of the conditional
// transition observes StaleState and treats it as a benign no-op.
func (s *ConsultationService) Expire(ctx context.Context, sessionID string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if session.Status != models.StatusPending || !session.Deadline(s.now()) {
		return nil
	}

	if _, err := s.sessions.Transition(ctx, sessionID, models.StatusPending, models.StatusExpired, nil); err != nil {
		if apperrors.IsCode(err, apperrors.CodeStaleState) {
			return nil
		}
		return err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", "expired")))

	s.FinalizeExpired(ctx, sessionID)
	return nil
}

// FinalizeExpired performs the post-transition cleanup for an expired
// session: buffer discard, cursor clear, client notification. The sweep
// calls this directly for sessions it transitioned in bulk.
func (s *ConsultationService) FinalizeExpired(ctx context.Context, sessionID string) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		s.log.Warn("failed to load expired session", "session_id", sessionID, "error", err.Error())
		return
	}

	s.discardBuffer(ctx, sessionID)
	s.clearCursor(ctx, session.ClientID)
	s.notifier.Notify(ctx, session.ClientID, Notification{
		Kind:      NotifyExpired,
		SessionID: sessionID,
		PeerName:  s.displayName(ctx, session.AdvisorID),
	})
}

// Get returns a session to one of its participants.
func (s *ConsultationService) Get(ctx context.Context, sessionID string, userID uint) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Participant(userID) {
		return nil, apperrors.Forbidden("not a participant of this consultation")
	}
	return session, nil
}

// Open returns the user's current pending or active session, or nil.
func (s *ConsultationService) Open(ctx context.Context, userID uint) (*models.Session, error) {
	return s.sessions.FindOpenByUser(ctx, userID)
}

// Messages lists a session's history to one of its participants.
func (s *ConsultationService) Messages(ctx context.Context, sessionID string, userID uint, limit, offset int) ([]models.Message, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Participant(userID) {
		return nil, apperrors.Forbidden("not a participant of this consultation")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.messages.GetBySessionPaginated(ctx, sessionID, limit, offset)
}

func (s *ConsultationService) discardBuffer(ctx context.Context, sessionID string) {
	if err := s.buffer.Discard(ctx, sessionID); err != nil {
		s.log.Warn("failed to discard message buffer", "session_id", sessionID, "error", err.Error())
	}
}

func (s *ConsultationService) setCursor(ctx context.Context, userID uint, state cursor.State) {
	if err := s.cursors.Set(ctx, userID, state); err != nil {
		s.log.Warn("failed to set cursor", "user_id", userID, "error", err.Error())
	}
}

func (s *ConsultationService) clearCursor(ctx context.Context, userID uint) {
	if err := s.cursors.Clear(ctx, userID); err != nil {
		s.log.Warn("failed to clear cursor", "user_id", userID, "error", err.Error())
	}
}

func (s *ConsultationService) displayName(ctx context.Context, userID uint) string {
	if s.directory == nil {
		return ""
	}
	return s.directory.DisplayName(ctx, userID)
}
