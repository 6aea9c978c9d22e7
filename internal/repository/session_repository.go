package repository

import (
	"context"
	"errors"
	"time"

	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/internal/models"

	"gorm.io/gorm"
)

// SessionStore is the durable session record. All lifecycle writes go
// through Create and Transition; Transition is the conditional-update
// primitive that serializes concurrent actors on one session.
type SessionStore interface {
	// Create inserts a new session. A unique-index violation (duplicate
	// request key, or an open session already held by the client or
	// advisor) surfaces as a typed Conflict.
	Create(ctx context.Context, session *models.Session) error
	// GetByID returns the session or a typed NotFound.
	GetByID(ctx context.Context, id string) (*models.Session, error)
	// GetByRequestKey resolves an idempotent replay to its original session.
	GetByRequestKey(ctx context.Context, key string) (*models.Session, error)
	// FindOpenByUser returns the pending or active session where userID is
	// client or advisor, or (nil, nil) when there is none.
	FindOpenByUser(ctx context.Context, userID uint) (*models.Session, error)
	// Transition conditionally moves the session from one status to another,
	// applying extra fields in the same write. Returns StaleState when the
	// current status no longer matches, NotFound when the row is missing.
	Transition(ctx context.Context, id string, from, to models.SessionStatus, fields map[string]interface{}) (*models.Session, error)
	// SetArchiveID records the external archive handle on a completed session.
	SetArchiveID(ctx context.Context, id, archiveID string) error
	// SweepExpired moves every pending session past its deadline to expired
	// and returns the ids it transitioned (only those — sessions already
	// expired by their own timer are not re-reported).
	SweepExpired(ctx context.Context, now time.Time) ([]string, error)
}

// sessionIndexDDL holds the partial unique indexes enforcing at most one
// open session per client and per advisor. gorm index tags split settings
// on commas and would truncate the status predicate, so these run as raw
// DDL after AutoMigrate.
var sessionIndexDDL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_sessions_client_open ON sessions (client_id) WHERE status IN ('pending', 'active')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_sessions_advisor_open ON sessions (advisor_id) WHERE status IN ('pending', 'active')`,
}

// EnsureSessionIndexes creates the open-session uniqueness indexes.
func EnsureSessionIndexes(db *gorm.DB) error {
	for _, ddl := range sessionIndexDDL {
		if err := db.Exec(ddl).Error; err != nil {
			return err
		}
	}
	return nil
}

type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (r *GormSessionStore) Create(ctx context.Context, session *models.Session) error {
	err := r.db.WithContext(ctx).Create(session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("session already exists for this request")
		}
		return apperrors.StoreUnavailable(err.Error())
	}
	return nil
}

func (r *GormSessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("session not found")
		}
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return &session, nil
}

func (r *GormSessionStore) GetByRequestKey(ctx context.Context, key string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).First(&session, "request_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("session not found")
		}
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return &session, nil
}

func (r *GormSessionStore) FindOpenByUser(ctx context.Context, userID uint) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("(client_id = ? OR advisor_id = ?) AND status IN ?",
			userID, userID, []models.SessionStatus{models.StatusPending, models.StatusActive}).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return &session, nil
}

func (r *GormSessionStore) Transition(ctx context.Context, id string, from, to models.SessionStatus, fields map[string]interface{}) (*models.Session, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return nil, apperrors.StoreUnavailable(result.Error.Error())
	}

	if result.RowsAffected == 0 {
		// Distinguish a missing row from a lost race.
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return current, apperrors.StaleState("session is no longer " + string(from))
	}

	return r.GetByID(ctx, id)
}

func (r *GormSessionStore) SetArchiveID(ctx context.Context, id, archiveID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Update("archive_id", archiveID)
	if result.Error != nil {
		return apperrors.StoreUnavailable(result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("session not found")
	}
	return nil
}

func (r *GormSessionStore) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Raw(`UPDATE sessions SET status = ?, updated_at = ? WHERE status = ? AND expires_at < ? RETURNING id`,
			models.StatusExpired, now, models.StatusPending, now).
		Scan(&ids).Error
	if err != nil {
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return ids, nil
}
