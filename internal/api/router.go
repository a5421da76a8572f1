package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/jaemin-s/eventsync/internal/app"
	iauth "github.com/jaemin-s/eventsync/internal/auth"
	"github.com/jaemin-s/eventsync/internal/handlers"
	"github.com/jaemin-s/eventsync/internal/middleware"
	"github.com/jaemin-s/eventsync/internal/monitoring"
	"github.com/jaemin-s/eventsync/internal/realtime"
	"github.com/jaemin-s/eventsync/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers the events routes.
// hub may be nil, in which case no change stream is served and writes are not broadcast.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, hub *realtime.Hub) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	metricsPath := metricsEndpoint(cfg)

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(metricsPath))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	health := monitoring.NewHealthManager(0)
	health.Register(monitoring.Database(db))
	if hub != nil && cfg.Realtime.Enabled {
		health.Register(monitoring.Realtime(hub, realtime.StreamEvents))
	}
	r.GET("/health", handlers.Health(health))

	var notifier services.ChangeNotifier
	if hub != nil {
		notifier = hub
	}
	eventSvc, err := services.NewEventService(db, notifier)
	if err != nil {
		return nil, err
	}
	registerEventRoutes(r, handlers.NewEventHandler(eventSvc), jwt, cfg.Auth.RequireWrites)

	if hub != nil && cfg.Realtime.Enabled {
		stream := handlers.NewRealtimeHandler(hub, jwt, cfg.Realtime.RequireAuth, realtime.StreamEvents)
		r.GET("/ws/events", stream.Stream)
	}

	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerEventRoutes(r gin.IRouter, handler *handlers.EventHandler, jwt *iauth.JWTService, requireWrites bool) {
	events := r.Group("/events")
	events.Use(middleware.OptionalAuth(jwt))

	events.GET("", handler.List)
	events.GET("/:id", handler.Get)

	writes := events.Group("")
	if requireWrites {
		writes.Use(middleware.Auth(jwt), middleware.RequireScope(iauth.ScopeEventsWrite))
	}
	writes.POST("", handler.Create)
	writes.PUT("/:id", handler.Update)
	writes.DELETE("/:id", handler.Delete)
}

func metricsEndpoint(cfg *app.Config) string {
	path := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if path == "" {
		return "/metrics"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
