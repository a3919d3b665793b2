// Package http serves the hapticd REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hapticd/internal/actuator"
	"github.com/fyrsmithlabs/hapticd/internal/bundle"
	"github.com/fyrsmithlabs/hapticd/internal/engine"
	"github.com/fyrsmithlabs/hapticd/internal/generate"
	"github.com/fyrsmithlabs/hapticd/internal/ingest"
	"github.com/fyrsmithlabs/hapticd/internal/logging"
	"github.com/fyrsmithlabs/hapticd/internal/pattern"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
	"github.com/fyrsmithlabs/hapticd/internal/telemetry"
)

// Resolver resolves events. *engine.Engine satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, ev engine.Event) (engine.Decision, error)
}

// Generator produces patterns from prompts. *generate.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StatsSource reports ingest counters. *ingest.Subscriber satisfies it.
type StatsSource interface {
	Stats() ingest.Stats
}

// Deps are the components the API serves. Store and Resolver are required.
type Deps struct {
	Store     rules.Store
	Resolver  Resolver
	Generator Generator          // nil disables /patterns/generate
	Recorder  *actuator.Recorder // recent waveforms for /status
	Ingest    StatsSource        // NATS ingest counters for /status
	Telemetry *telemetry.Telemetry
	Gatherer  prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Metrics   *HTTPMetrics
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if deps.Resolver == nil {
		return nil, errors.New("resolver cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 9470}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			if logging.ValidID(id) {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
			}
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})
	if deps.Metrics != nil {
		e.Use(deps.Metrics.MetricsMiddleware())
	}

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")

	v1.GET("/rules", s.handleListRules)
	v1.GET("/rules/:package", s.handleGetAppRule)
	v1.PUT("/rules/:package", s.handlePutAppRule)
	v1.DELETE("/rules/:package", s.handleDeleteAppRule)
	v1.GET("/rules/:package/senders", s.handleListSenderRules)
	v1.PUT("/rules/:package/senders", s.handlePutSenderRule)
	v1.GET("/rules/:package/senders/:token", s.handleGetSenderRule)
	v1.DELETE("/rules/:package/senders/:token", s.handleDeleteSenderRule)

	v1.GET("/apps/:package/mute", s.handleGetMute)
	v1.PUT("/apps/:package/mute", s.handlePutMute)

	v1.POST("/events", s.handleEvent)
	v1.POST("/patterns/validate", s.handleValidatePattern)
	v1.POST("/patterns/generate", s.handleGeneratePattern)

	v1.GET("/status", s.handleStatus)

	v1.POST("/bundle", s.handleImportBundle)
	v1.GET("/bundle", s.handleExportBundle)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// httpError maps domain errors onto status codes.
func (s *Server) httpError(c echo.Context, err error) error {
	var code int
	switch {
	case errors.Is(err, rules.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, rules.ErrKeyMismatch):
		code = http.StatusConflict
	case errors.Is(err, rules.ErrSaveRejected), errors.Is(err, pattern.ErrInvalidPattern):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidEvent),
		errors.Is(err, generate.ErrEmptyPrompt),
		errors.Is(err, bundle.ErrInvalidBundle),
		errors.Is(err, bundle.ErrUnknownFormat):
		code = http.StatusBadRequest
	case errors.Is(err, generate.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, generate.ErrRequestFailed), errors.Is(err, generate.ErrInvalidResponse):
		code = http.StatusBadGateway
	case errors.Is(err, generate.ErrDisabled):
		code = http.StatusServiceUnavailable
	default:
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return echo.NewHTTPError(code, err.Error())
}
