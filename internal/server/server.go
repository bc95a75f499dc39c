package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/model"
	"github.com/t77yq/overwatch/internal/monitor"
	"github.com/t77yq/overwatch/internal/plugin"
	"github.com/t77yq/overwatch/internal/scheduler"
	"github.com/t77yq/overwatch/internal/storage"
)

// ThresholdStore is the subset of storage.ThresholdStore used by the API
type ThresholdStore interface {
	Config() model.ThresholdConfig
	Get(kind string) (model.Threshold, bool)
	Set(kind string, t model.Threshold)
	Reload() error
	Save() error
}

// AlertLog exposes in-memory alert history
type AlertLog interface {
	Recent(limit int) []model.AlertRecord
	ClearHistory()
}

// ProcessLookup returns details for one pid
type ProcessLookup interface {
	Process(ctx context.Context, pid int32) (*model.ProcessDetail, error)
}

// MaintenanceJobs lists and triggers scheduled maintenance
type MaintenanceJobs interface {
	Jobs() []scheduler.JobInfo
	RunNow(name string) error
}

// Deps are the collaborators served by the API. Nil fields disable their routes.
type Deps struct {
	Version    string
	Provider   monitor.SnapshotProvider
	Processes  ProcessLookup
	Alerts     AlertLog
	Archive    storage.AlertArchiveStorage
	Thresholds ThresholdStore
	Plugins    *plugin.Registry
	Jobs       MaintenanceJobs
	Stream     http.Handler
}

// Server is the HTTP API
type Server struct {
	logger *zap.Logger
	deps   Deps
	engine *gin.Engine
	http   *http.Server
}

// New creates the API server listening on addr
func New(addr string, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger: logger.Named("api"),
		deps:   deps,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger(), cors())
	s.routes()

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.deps.Stream != nil {
		s.engine.GET("/ws", gin.WrapH(s.deps.Stream))
	}

	api := s.engine.Group("/api")
	if s.deps.Provider != nil {
		api.GET("/metrics", s.handleMetrics)
		api.GET("/metrics/:kind", s.handleMetricKind)
	}
	if s.deps.Processes != nil {
		api.GET("/process/:pid", s.handleProcess)
	}
	if s.deps.Alerts != nil {
		api.GET("/alerts", s.handleAlerts)
		api.DELETE("/alerts", s.handleClearAlerts)
	}
	if s.deps.Archive != nil {
		api.GET("/alerts/archive", s.handleArchive)
	}
	if s.deps.Thresholds != nil {
		api.GET("/thresholds", s.handleThresholds)
		api.PUT("/thresholds/:kind", s.handleSetThreshold)
		api.POST("/thresholds/reload", s.handleReloadThresholds)
		api.POST("/thresholds/save", s.handleSaveThresholds)
	}
	if s.deps.Plugins != nil {
		api.GET("/plugins", s.handlePlugins)
		api.POST("/plugins/:name/run", s.handleRunPlugin)
	}
	if s.deps.Jobs != nil {
		api.GET("/jobs", s.handleJobs)
		api.POST("/jobs/:name/run", s.handleRunJob)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
