// Package http is the reference HTTP facade over the engine. It is a thin
// adapter: all approval semantics live in the application layer, and other
// deployments may embed the engine directly without this package.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/engine"
	"github.com/nick-gallo-ethico/approvalflow/internal/application/service"
	"github.com/nick-gallo-ethico/approvalflow/internal/report"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter.
type Server struct {
	config      ServerConfig
	httpServer  *http.Server
	router      *gin.Engine
	engine      engine.Engine
	definitions *service.DefinitionService
	exporter    *report.HistoryExporter
	logger      *zap.Logger
}

// NewServer creates a new HTTP server over the engine.
func NewServer(
	config ServerConfig,
	eng engine.Engine,
	definitions *service.DefinitionService,
	exporter *report.HistoryExporter,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:      config,
		router:      gin.New(),
		engine:      eng,
		definitions: definitions,
		exporter:    exporter,
		logger:      logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("latency", time.Since(start).String()),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.engine, s.definitions, s.exporter, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api/v1")
	{
		api.PUT("/definitions", handlers.PutDefinition)
		api.GET("/definitions/:entityType", handlers.GetDefinition)

		api.POST("/workflows", handlers.StartWorkflow)
		api.GET("/workflows/status", handlers.GetStatus)
		api.GET("/workflows/:id", handlers.GetWorkflow)
		api.POST("/workflows/:id/activate", handlers.ActivateWorkflow)
		api.POST("/workflows/:id/cancel", handlers.CancelWorkflow)
		api.POST("/workflows/:id/decisions", handlers.SubmitDecision)
		api.GET("/workflows/:id/history", handlers.GetHistory)
		api.GET("/workflows/:id/history/export", handlers.ExportHistory)
	}
}

// Start starts the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing).
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
