// Package server exposes the HTTP surface: message ingestion, intelligence
// reads, reply suggestions, health endpoints, Prometheus metrics and the
// WebSocket intelligence stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/supportpulse/supportpulse/ai/intelligence"
	"github.com/supportpulse/supportpulse/broker"
	"github.com/supportpulse/supportpulse/internal/profile"
	"github.com/supportpulse/supportpulse/metrics"
	"github.com/supportpulse/supportpulse/pipeline"
	"github.com/supportpulse/supportpulse/pipeline/broadcast"
)

// Server is the HTTP front of the pipeline.
type Server struct {
	e *echo.Echo

	profile     *profile.Profile
	producer    broker.Producer
	topics      pipeline.Topics
	svc         intelligence.Service
	pipe        *pipeline.Pipeline
	broadcaster *broadcast.Broadcaster
	metrics     *metrics.Metrics
}

// NewServer wires the routes over the running pipeline.
func NewServer(p *profile.Profile, producer broker.Producer, topics pipeline.Topics, svc intelligence.Service, pipe *pipeline.Pipeline, bc *broadcast.Broadcaster, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())

	s := &Server{
		e:           e,
		profile:     p,
		producer:    producer,
		topics:      topics,
		svc:         svc,
		pipe:        pipe,
		broadcaster: bc,
		metrics:     m,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.e.GET("/healthz", s.health)
	s.e.GET("/readyz", s.ready)
	if s.metrics != nil {
		s.e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.e.Group("/api/v1")
	api.POST("/messages", s.createMessage)
	api.POST("/messages/:conversation_id/reply", s.suggestReply)
	api.GET("/conversations/:conversation_id/intelligence", s.getIntelligence)

	s.e.GET("/ws/conversations/:conversation_id/stream", s.streamIntelligence)
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("http server listening", "addr", addr, "mode", s.profile.Mode)
	return s.e.Start(addr)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ready(c echo.Context) error {
	if s.pipe == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "pipeline not running"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// requestLogger logs completed requests with slog, skipping health probes.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/healthz" || path == "/readyz" || path == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			slog.Info("http request",
				"method", c.Request().Method,
				"path", path,
				"status", c.Response().Status,
				"duration", time.Since(start),
			)
			return err
		}
	}
}
