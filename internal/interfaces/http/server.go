// Package http exposes the mutation workflow over a JSON API.
// Handlers translate HTTP requests to gateway calls and nothing more.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/garyjia/mutation-workflow/internal/application/service"
)

// Version is reported by /health
const Version = "1.0.0"

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	EventKeepAlive  time.Duration
}

// DefaultServerConfig returns default server configuration. WriteTimeout is
// zero because event streams stay open.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		EventKeepAlive:  25 * time.Second,
	}
}

// ServerDeps are the collaborators of the server
type ServerDeps struct {
	Gateway service.WorkflowGateway
	Auth    *Authenticator
	// Metrics is optional; when set its middleware and /metrics are mounted
	Metrics MetricsProvider
	Health  HealthFunc
}

// MetricsProvider instruments requests and serves the scrape endpoint
type MetricsProvider interface {
	Middleware() gin.HandlerFunc
	Handler() http.Handler
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       ServerDeps
	logger     Logger
}

// NewServer creates a new HTTP server
func NewServer(config ServerConfig, deps ServerDeps, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	corsCfg := cors.DefaultConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = s.config.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AddAllowHeaders("Authorization")
	corsCfg.AddExposeHeaders("Content-Disposition")
	s.router.Use(cors.New(corsCfg))

	// Event streams must be flushed as written
	s.router.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/evenements$`, `/documents/`}),
	))

	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.Middleware())
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps.Gateway, s.deps.Health, s.logger)
	if s.config.EventKeepAlive > 0 {
		handlers.eventKeepAlive = s.config.EventKeepAlive
	}

	s.router.GET("/health", handlers.HealthCheck)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.router.Group("/api/v1")
	api.Use(s.deps.Auth.Middleware())
	{
		api.POST("/demandes", handlers.CreateRequest)
		api.GET("/demandes", handlers.ListRequests)
		api.GET("/demandes/:id", handlers.GetRequest)
		api.POST("/demandes/:id/soumettre", handlers.SubmitRequest)
		api.GET("/demandes/:id/documents/:type", handlers.GetDocument)
		api.GET("/demandes/:id/evenements", handlers.StreamEvents)

		api.POST("/validations", handlers.Decide)
		api.GET("/validations", handlers.ListDecisions)
	}
}

// Start starts the HTTP server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
