// Package api exposes the dataset generation pipeline over HTTP: run
// management, export, estimation and a websocket progress stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fhir-dataset-forge/internal/domain"
	"github.com/fhir-dataset-forge/internal/middleware"
	"github.com/fhir-dataset-forge/internal/service"
	"github.com/fhir-dataset-forge/pkg/llm"
)

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	store         domain.RunStore
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	hub           *ProgressHub
	runs          *runRegistry
	responses     *llm.ResponseCache
	contexts      *service.ContextCache
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, store domain.RunStore, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if logger == nil {
		logger = logrus.New()
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())

	server := &Server{
		configManager: configManager,
		store:         store,
		logger:        logger,
		router:        router,
		hub:           NewProgressHub(logger),
		runs:          newRunRegistry(),
	}

	if cfg.Cache.Enabled {
		responses, err := llm.NewResponseCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Response cache unavailable, generating without it")
		} else {
			server.responses = responses
		}
	}

	if cfg.Cache.ContextEntries > 0 {
		contexts, err := service.NewContextCache(cfg.Cache.ContextEntries)
		if err != nil {
			logger.WithError(err).Warn("Context cache disabled")
		} else {
			server.contexts = contexts
		}
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.WithField("addr", addr).Info("HTTP server started")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.responses != nil {
		if err := s.responses.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close response cache")
		}
	}

	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/runs", s.handleCreateRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.GET("/runs/:id/examples", s.handleGetExamples)
		v1.GET("/runs/:id/export", s.handleExportRun)
		v1.DELETE("/runs/:id", s.handleDeleteRun)
		v1.GET("/runs/:id/progress", s.handleProgressStream)

		v1.POST("/estimate", s.handleEstimate)

		v1.GET("/usecases", s.handleUseCases)
		v1.GET("/formats", s.handleFormats)
		v1.GET("/providers", s.handleProviders)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   "1.0.0",
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
