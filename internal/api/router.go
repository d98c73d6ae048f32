package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/pledgerhq/pledger/internal/app"
	iauth "github.com/pledgerhq/pledger/internal/auth"
	"github.com/pledgerhq/pledger/internal/handlers"
	"github.com/pledgerhq/pledger/internal/middleware"
	"github.com/pledgerhq/pledger/internal/realtime"
	"github.com/pledgerhq/pledger/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, hub *realtime.Hub, mailer mail.Mailer) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler, err := handlers.NewAuthHandler(db, jwt)
	if err != nil {
		return nil, err
	}

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	api.GET("/auth/me", authHandler.Me)

	promiseHandler, err := handlers.NewPromiseHandler(db, hub, mailer)
	if err != nil {
		return nil, err
	}
	milestoneHandler, err := handlers.NewMilestoneHandler(db, hub)
	if err != nil {
		return nil, err
	}
	noteHandler, err := handlers.NewNoteHandler(db, hub)
	if err != nil {
		return nil, err
	}

	promises := api.Group("/promises")
	{
		promises.POST("", promiseHandler.Create)
		promises.GET("", promiseHandler.List)
		promises.GET("/:id", promiseHandler.Get)
		promises.PATCH("/:id", promiseHandler.Update)
		promises.DELETE("/:id", promiseHandler.Delete)
		promises.POST("/:id/decline", promiseHandler.Decline)
		promises.GET("/:id/progress", promiseHandler.Progress)

		promises.POST("/:id/milestones", milestoneHandler.Create)
		promises.GET("/:id/milestones", milestoneHandler.List)

		promises.POST("/:id/notes", noteHandler.Create)
		promises.GET("/:id/notes", noteHandler.List)
	}

	api.PATCH("/milestones/:milestoneId", milestoneHandler.Update)
	api.DELETE("/milestones/:milestoneId", milestoneHandler.Delete)
	api.DELETE("/notes/:noteId", noteHandler.Delete)

	notificationHandler, err := handlers.NewNotificationHandler(db, hub)
	if err != nil {
		return nil, err
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread_count", notificationHandler.UnreadCount)
		notifications.POST("/read_all", notificationHandler.MarkAllRead)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
		if hub != nil {
			notifications.GET("/stream", notificationHandler.Stream)
		}
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
