package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/mirador-remedy/internal/alerts"
	"github.com/platformbuilds/mirador-remedy/internal/anomaly"
	"github.com/platformbuilds/mirador-remedy/internal/api/handlers"
	"github.com/platformbuilds/mirador-remedy/internal/api/middleware"
	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/monitoring"
	"github.com/platformbuilds/mirador-remedy/internal/remediation"
	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

type Server struct {
	config       *config.Config
	logger       logger.Logger
	cache        cache.ValkeyStore
	engine       *anomaly.Engine
	manager      *alerts.Manager
	orchestrator *remediation.Orchestrator
	stream       *handlers.StreamHandler
	router       *gin.Engine
	httpServer   *http.Server
}

func NewServer(
	cfg *config.Config,
	log logger.Logger,
	valkeyCache cache.ValkeyStore,
	engine *anomaly.Engine,
	manager *alerts.Manager,
	orchestrator *remediation.Orchestrator,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	server := &Server{
		config:       cfg,
		logger:       log,
		cache:        valkeyCache,
		engine:       engine,
		manager:      manager,
		orchestrator: orchestrator,
		router:       router,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// Stream exposes the websocket handler so main can register it as an alert
// state-change listener.
func (s *Server) Stream() *handlers.StreamHandler {
	return s.stream
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Request logging
	s.router.Use(middleware.RequestLogger(s.logger))

	// Prometheus request metrics
	s.router.Use(monitoring.HTTPMetricsMiddleware())

	// Prometheus metrics endpoint
	monitoring.SetupPrometheusMetrics(s.router)
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.cache, s.logger)

	// Public health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)

	// API v1 group
	v1 := s.router.Group("/api/v1")

	// Back-compat: expose health under /api/v1 as well
	v1.GET("/health", healthHandler.HealthCheck)
	v1.GET("/ready", healthHandler.ReadinessCheck)

	// Ingestion endpoints (fire-and-forget, 202)
	ingestHandler := handlers.NewIngestHandler(s.engine, s.manager, s.orchestrator, s.logger)
	v1.POST("/ingest/metrics", ingestHandler.IngestMetric)
	v1.POST("/ingest/alerts", ingestHandler.IngestAlert)

	// Alert lifecycle endpoints
	alertHandler := handlers.NewAlertHandler(s.manager, s.logger)
	v1.GET("/alerts", alertHandler.GetActiveAlerts)
	v1.POST("/alerts/:id/acknowledge", alertHandler.AcknowledgeAlert)
	v1.POST("/alerts/:id/silence", alertHandler.SilenceAlert)

	// Alert rules CRUD
	v1.GET("/rules", alertHandler.GetRules)
	v1.POST("/rules", alertHandler.CreateRule)
	v1.DELETE("/rules/:id", alertHandler.DeleteRule)

	// Remediation endpoints
	remediationHandler := handlers.NewRemediationHandler(s.orchestrator, s.logger)
	v1.GET("/remediation/actions", remediationHandler.GetActions)
	v1.POST("/remediation/actions", remediationHandler.CreateAction)
	v1.DELETE("/remediation/actions/:id", remediationHandler.DeleteAction)
	v1.GET("/remediation/history", remediationHandler.GetHistory)

	// Autoscaling endpoints
	v1.GET("/autoscaling/configs", remediationHandler.GetAutoscalingConfigs)
	v1.POST("/autoscaling/configs", remediationHandler.UpsertAutoscalingConfig)
	v1.DELETE("/autoscaling/configs/:service", remediationHandler.DeleteAutoscalingConfig)

	// WebSocket stream of alert state changes
	if s.config.WebSocket.Enabled {
		s.stream = handlers.NewStreamHandler(
			s.config.WebSocket.MaxConnections,
			s.config.WebSocket.ReadBufferSize,
			s.config.WebSocket.WriteBufferSize,
			s.logger,
		)
		v1.GET("/alerts/stream", s.stream.HandleAlertsStream)
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("MIRADOR-REMEDY REST API server starting", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down MIRADOR-REMEDY gracefully")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the underlying Gin engine so tests (or embedders) can mount it.
func (s *Server) Handler() http.Handler {
	return s.router
}
