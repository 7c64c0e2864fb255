package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/internal/application/session"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// Server represents the HTTP API server
type Server struct {
	router    *gin.Engine
	server    *http.Server
	sessions  *session.Manager
	workflows ports.WorkflowRepository
	logger    *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port      int
	Sessions  *session.Manager
	Workflows ports.WorkflowRepository
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// StreamHandler serves a session's event stream
type StreamHandler interface {
	HandleSessionStream(c *gin.Context)
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:    router,
		sessions:  cfg.Sessions,
		workflows: cfg.Workflows,
		logger:    logger,
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.setupRoutes(gatherer)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/node-types", s.handleListNodeTypes)

		// Persisted workflows
		v1.GET("/workflows", s.handleListWorkflows)
		v1.GET("/workflows/:id", s.handleGetWorkflow)
		v1.DELETE("/workflows/:id", s.handleDeleteWorkflow)
		v1.POST("/workflows/:id/clone", s.handleCloneWorkflow)
		v1.GET("/workflows/:id/export", s.handleExportWorkflow)

		// Sessions
		v1.POST("/sessions", s.handleCreateSession)
		v1.GET("/sessions", s.handleListSessions)

		sess := v1.Group("/sessions/:id")
		{
			sess.GET("", s.handleGetSession)
			sess.DELETE("", s.handleDisposeSession)

			// Graph
			sess.GET("/graph", s.handleGetGraph)
			sess.DELETE("/graph", s.handleClearGraph)
			sess.POST("/template", s.handleLoadTemplate)
			sess.PUT("/name", s.handleSetName)
			sess.PUT("/selection", s.handleSelectNode)
			sess.POST("/nodes", s.handleAddNode)
			sess.PATCH("/nodes/:nodeId", s.handleUpdateNode)
			sess.DELETE("/nodes/:nodeId", s.handleRemoveNode)
			sess.GET("/nodes/:nodeId/check", s.handleCheckNode)
			sess.GET("/nodes/:nodeId/variables", s.handleNodeVariables)
			sess.POST("/edges", s.handleConnect)
			sess.DELETE("/edges/:edgeId", s.handleRemoveEdge)

			// Autocomplete
			sess.POST("/suggestions", s.handleSuggest)
			sess.GET("/fields/:nodeId/:param", s.handleFieldState)
			sess.POST("/fields/:nodeId/:param/input", s.handleFieldInput)
			sess.POST("/fields/:nodeId/:param/keydown", s.handleFieldKeyDown)
			sess.POST("/fields/:nodeId/:param/pointer", s.handleFieldPointer)
			sess.POST("/fields/:nodeId/:param/select", s.handleFieldSelect)

			// Persistence
			sess.POST("/workflow/load", s.handleLoadWorkflow)
			sess.POST("/workflow/save", s.handleSaveWorkflow)
			sess.POST("/draft", s.handleSaveDraft)
			sess.POST("/draft/restore", s.handleRestoreDraft)

			// Runs
			sess.GET("/inputs", s.handleGetInputs)
			sess.PUT("/inputs/:key", s.handleSetInput)
			sess.PUT("/mode", s.handleSetMode)
			sess.GET("/readiness", s.handleReadiness)
			sess.POST("/runs", s.handleStartRun)
			sess.GET("/runs/current", s.handleRunStatus)
		}
	}
}

// SetupWebSocket adds the session event stream to the server
func (s *Server) SetupWebSocket(handler StreamHandler) {
	s.router.GET("/api/v1/sessions/:id/ws", handler.HandleSessionStream)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
