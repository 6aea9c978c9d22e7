// Package di wires the application graph: stores, services, the
// reconciliation gate, expiry scheduling and the notification hub.
package di

import (
	"context"
	"time"

	"advisor-marketplace/backend/internal/archive"
	"advisor-marketplace/backend/internal/buffer"
	"advisor-marketplace/backend/internal/cursor"
	"advisor-marketplace/backend/internal/gate"
	"advisor-marketplace/backend/internal/repository"
	"advisor-marketplace/backend/internal/scheduler"
	"advisor-marketplace/backend/internal/service"
	"advisor-marketplace/backend/internal/ws"
	"advisor-marketplace/backend/pkg/config"
	"advisor-marketplace/backend/pkg/health"
	"advisor-marketplace/backend/pkg/jwt"
	"advisor-marketplace/backend/pkg/logger"
	sharedredis "advisor-marketplace/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application.
type Container struct {
	DB     *gorm.DB
	Config *config.Config
	Logger *logger.Logger

	JWTService *jwt.Service

	Sessions repository.SessionStore
	Buffer   buffer.Store
	Cursors  cursor.Store

	UserService         *service.UserService
	AdvisorService      *service.AdvisorService
	ConsultationService *service.ConsultationService

	Gate    *gate.Gate
	Hub     *ws.Hub
	Timers  *scheduler.ExpiryTimers
	Sweeper *scheduler.Sweeper
	Health  *health.Checker

	redisOK   bool
	memBuffer *buffer.MemoryStore
}

// New builds the container. Redis availability is probed once at startup:
// when unreachable, buffer and cursor stores run in-process and the engine
// keeps working with reduced durability.
func New(db *gorm.DB, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{
		DB:     db,
		Config: cfg,
		Logger: log,
	}

	c.JWTService = jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)

	redisClient := sharedredis.NewClient()
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c.redisOK = redisClient.Ping(pingCtx) == nil

	c.memBuffer = buffer.NewMemoryStore(cfg.Consultation.BufferTTL)
	if c.redisOK {
		c.Buffer = buffer.NewFailoverStore(
			buffer.NewRedisStore(redisClient, cfg.Consultation.BufferTTL),
			c.memBuffer,
			log,
		)
		c.Cursors = cursor.NewRedisStore(redisClient, cfg.Consultation.CursorTTL)
	} else {
		log.Warn("redis unreachable at startup, using in-process buffer and cursor stores")
		c.Buffer = c.memBuffer
		c.Cursors = cursor.NewMemoryStore()
	}

	c.Sessions = repository.NewGormSessionStore(db)
	messages := repository.NewGormMessageRepository(db)
	reviews := repository.NewGormReviewRepository(db)
	advisors := repository.NewGormAdvisorRepository(db)
	users := repository.NewGormUserRepository(db)

	c.UserService = service.NewUserService(users, advisors, c.JWTService, log)
	c.AdvisorService = service.NewAdvisorService(advisors, log, cfg.Consultation.OnlineThreshold)

	c.Hub = ws.NewHub(log)

	archiver := archive.NewClient(cfg.Archive.URL, cfg.Archive.Timeout, log)

	// The timers and the consultation service reference each other; the
	// timer side goes through a closure resolved after construction.
	var consultations *service.ConsultationService
	c.Timers = scheduler.NewExpiryTimers(func(ctx context.Context, sessionID string) error {
		return consultations.Expire(ctx, sessionID)
	}, log)

	consultations = service.NewConsultationService(
		c.Sessions, messages, reviews, advisors,
		c.Buffer, c.Cursors,
		c.Hub, archiver, c.Timers,
		c.UserService,
		log,
		service.ConsultationConfig{
			PendingWindow: cfg.Consultation.PendingWindow,
			KeyBucket:     cfg.Consultation.RequestKeyBucket,
		},
	)
	c.ConsultationService = consultations

	c.Sweeper = scheduler.NewSweeper(c.Sessions, consultations.FinalizeExpired, cfg.Consultation.SweepInterval, log)

	c.Gate = gate.New(c.Sessions, c.Cursors, c.Hub, consultations.Expire, log)

	c.Health = health.NewChecker(log, 30*time.Second)
	c.Health.RegisterDatabaseCheck(func() error {
		return config.TestConnection(db)
	})
	c.Health.RegisterRedisCheck(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return redisClient.Ping(ctx)
	})

	return c, nil
}

// Close tears down background workers and open connections.
func (c *Container) Close() {
	c.Timers.Stop()
	c.Hub.Close()
	c.Health.Stop()
	c.memBuffer.Stop()
}
