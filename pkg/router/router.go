package router

import (
	"net/http"

	"advisor-marketplace/backend/internal/api"
	"advisor-marketplace/backend/pkg/config"
	"advisor-marketplace/backend/pkg/di"
	"advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/jwt"
	"advisor-marketplace/backend/pkg/logger"
	"advisor-marketplace/backend/pkg/middleware"
	"advisor-marketplace/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// Router is the main HTTP surface of the consultation engine.
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config

	metricsHandler http.Handler
}

// New creates a router over the given container. metricsHandler serves the
// Prometheus scrape endpoint; pass nil to skip mounting /metrics.
func New(container *di.Container, metricsHandler http.Handler) *Router {
	logger.SetGlobal(container.Logger)

	cfg := container.Config
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rateLimiter := middleware.NewRateLimiter(container.Logger)
	engine.Use(rateLimiter.Middleware())

	// Request validation against the published contract when a schema
	// file is configured.
	if schemaPath := cfg.Server.OpenAPISchema; schemaPath != "" {
		if v, err := validator.NewOpenAPIValidator(schemaPath); err != nil {
			container.Logger.Warn("openapi validation disabled", "error", err.Error())
		} else {
			engine.Use(v.Middleware())
		}
	}

	return &Router{
		Engine:         engine,
		Container:      container,
		Logger:         container.Logger,
		Config:         cfg,
		metricsHandler: metricsHandler,
	}
}

// SetupRoutes registers all application routes.
func (r *Router) SetupRoutes() {
	r.Engine.Use(corsMiddleware())

	jwtAuth := middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger)

	authHandler := api.NewAuthHandler(r.Container.UserService)
	advisorHandler := api.NewAdvisorHandler(r.Container.AdvisorService)
	consultationHandler := api.NewConsultationHandler(r.Container.ConsultationService, r.Container.Gate)
	eventHandler := api.NewEventHandler(r.Container.ConsultationService, r.Container.Gate, r.Config.Security.WebhookToken, r.Logger)

	// Operational endpoints.
	r.Engine.GET("/health", gin.WrapF(r.Container.Health.HTTPHandler()))
	if r.metricsHandler != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.metricsHandler))
	}

	v1 := r.Engine.Group("/api/v1")
	v1.GET("/health", gin.WrapF(r.Container.Health.HTTPHandler()))

	// Inbound user events from the chat platform; token-authenticated,
	// not JWT (the platform posts on behalf of users).
	v1.POST("/events", eventHandler.Handle)

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/me", jwtAuth, authHandler.Me)
	}

	advisorRoutes := v1.Group("/advisors")
	advisorRoutes.Use(jwtAuth)
	{
		advisorRoutes.GET("", advisorHandler.List)
		advisorRoutes.GET("/:id", advisorHandler.Get)

		selfRoutes := advisorRoutes.Group("/me")
		selfRoutes.Use(middleware.RequireRole(jwt.RoleAdvisor))
		{
			selfRoutes.PUT("", advisorHandler.UpdateSelf)
			selfRoutes.POST("/heartbeat", advisorHandler.Heartbeat)
		}
	}

	consultationRoutes := v1.Group("/consultations")
	consultationRoutes.Use(jwtAuth)
	{
		consultationRoutes.POST("", middleware.RequireRole(jwt.RoleClient), consultationHandler.Request)
		consultationRoutes.GET("/open", consultationHandler.Open)
		consultationRoutes.GET("/:id", consultationHandler.Get)
		consultationRoutes.GET("/:id/messages", consultationHandler.Messages)
		consultationRoutes.POST("/:id/messages", consultationHandler.Send)
		consultationRoutes.POST("/:id/accept", middleware.RequireRole(jwt.RoleAdvisor), consultationHandler.Accept)
		consultationRoutes.POST("/:id/decline", middleware.RequireRole(jwt.RoleAdvisor), consultationHandler.Decline)
		consultationRoutes.POST("/:id/cancel", middleware.RequireRole(jwt.RoleClient), consultationHandler.Cancel)
		consultationRoutes.POST("/:id/complete", consultationHandler.Complete)
		consultationRoutes.POST("/:id/reviews", middleware.RequireRole(jwt.RoleClient), consultationHandler.Rate)
	}

	// WebSocket notification channel.
	r.Engine.GET("/ws", jwtAuth, r.Container.Hub.HandleConnection)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Upgrade, Connection, Cache-Control")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
