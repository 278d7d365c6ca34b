// Package http serves the vector store API over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/service"
)

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	svc     *service.Service
	logger  *logging.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	MaxUploadMB int
}

// NewServer creates a new HTTP server.
func NewServer(svc *service.Service, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 512
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger.Named("http"),
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger)
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadMB)))

	s.registerRoutes()
	return s, nil
}

// requestLogger carries the request id into the request context and logs
// each request when it completes.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(req.Context(), id)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")

	v1.POST("/vector_stores", s.handleCreateVectorStore)
	v1.GET("/vector_stores", s.handleListVectorStores)
	v1.GET("/vector_stores/:id", s.handleGetVectorStore)
	v1.POST("/vector_stores/:id", s.handleModifyVectorStore)
	v1.DELETE("/vector_stores/:id", s.handleDeleteVectorStore)
	v1.POST("/vector_stores/:id/search", s.handleSearch)

	v1.POST("/vector_stores/:id/files", s.handleCreateVectorStoreFile)
	v1.GET("/vector_stores/:id/files", s.handleListVectorStoreFiles)
	v1.GET("/vector_stores/:id/files/:file_id", s.handleGetVectorStoreFile)
	v1.DELETE("/vector_stores/:id/files/:file_id", s.handleDeleteVectorStoreFile)
	v1.POST("/vector_stores/:id/files/:file_id/cancel", s.handleCancelVectorStoreFile)

	v1.POST("/files", s.handleUploadFile)
	v1.GET("/files", s.handleListFiles)
	v1.GET("/files/:id", s.handleGetFile)
	v1.GET("/files/:id/content", s.handleFileContent)
	v1.DELETE("/files/:id", s.handleDeleteFile)

	v1.POST("/embeddings", s.handleEmbeddings)
}

// handleHealth reports model readiness. A failed model load is a 503.
func (s *Server) handleHealth(c echo.Context) error {
	h := s.svc.Health(c.Request().Context())
	status := http.StatusOK
	if h.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, h)
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
