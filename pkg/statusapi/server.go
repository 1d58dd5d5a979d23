// Package statusapi exposes the read-only HTTP surface over the controller's
// runtime state — no endpoint here may mutate an app mapping or trigger an
// action; all mutation happens through the Monitoring Worker's own tick
// loop. Grounded on the teacher's pkg/api/server.go: the same gin
// construction and middleware ordering, pared down to four read-only routes.
package statusapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"acaqueue/pkg/api/middleware"
	"acaqueue/pkg/auth"
	"acaqueue/pkg/coordination"
	"acaqueue/pkg/logger"
	"acaqueue/pkg/models"
	"acaqueue/pkg/store"
)

// Server is the read-only status API: current leader state, the configured
// mappings, and each mapping's last-known RuntimeState.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	st       store.Store
	election coordination.Election
	mappings []*models.AppMapping
}

// Config holds the status API's dependencies and auth settings.
type Config struct {
	Port     string
	Store    store.Store
	Election coordination.Election
	Mappings []*models.AppMapping

	// AuthEnabled gates the JWT/API-key middleware. When false every route
	// is open — intended for local development and the teacher's own
	// default (AUTH_ENABLED=false) before an operator wires in real
	// credentials.
	AuthEnabled bool
	JWTService  *auth.JWTService
	APIKeyStore auth.APIKeyStore
}

// NewServer builds the gin engine with the same middleware order the
// teacher's API server uses, then registers the read-only routes.
func NewServer(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(requestLogger())
	router.Use(middleware.RateLimitMiddleware())
	router.Use(middleware.BodySizeLimitMiddleware(1 << 20))

	if cfg.AuthEnabled {
		skipPaths := []string{"/healthz", "/metrics"}
		router.Use(middleware.AuthMiddleware(middleware.AuthConfig{
			JWTService:  cfg.JWTService,
			APIKeyStore: cfg.APIKeyStore,
			SkipPaths:   skipPaths,
		}))
		requireViewer := middleware.RequireRole(auth.RoleViewer)
		router.Use(func(c *gin.Context) {
			for _, p := range skipPaths {
				if c.Request.URL.Path == p {
					c.Next()
					return
				}
			}
			requireViewer(c)
		})
	}

	s := &Server{
		router:   router,
		st:       cfg.Store,
		election: cfg.Election,
		mappings: cfg.Mappings,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening for HTTP requests; it blocks until Shutdown closes
// the listener, at which point it returns nil.
func (s *Server) Start() error {
	logger.Get().Info("status api starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("statusapi: start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Get().Info("status api shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/apps", s.listApps)
	s.router.GET("/apps/:name", s.getApp)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Get().Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	deps := map[string]bool{
		"store":    s.st != nil,
		"election": s.election != nil,
		"isLeader": s.election != nil && s.election.IsLeader(),
	}
	healthy := s.st != nil && s.election != nil

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC(),
	})
}
