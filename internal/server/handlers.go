package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/model"
	"github.com/t77yq/overwatch/internal/monitor"
	"github.com/t77yq/overwatch/internal/plugin"
	"github.com/t77yq/overwatch/internal/scheduler"
	"github.com/t77yq/overwatch/internal/storage"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 1000
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "OverWatch API",
		"version": s.deps.Version,
		"status":  "running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	snap := s.deps.Provider.Snapshot(c.Request.Context(),
		model.KindCPU, model.KindMemory, model.KindDisk, model.KindNetwork, model.KindProcesses)
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleMetricKind(c *gin.Context) {
	kind, ok := model.ParseKind(c.Param("kind"))
	if !ok {
		errorJSON(c, http.StatusNotFound, fmt.Errorf("unknown metric kind: %s", c.Param("kind")))
		return
	}

	snap := s.deps.Provider.Snapshot(c.Request.Context(), kind)
	c.JSON(http.StatusOK, snap.Reading(kind))
}

func (s *Server) handleProcess(c *gin.Context) {
	pid, err := strconv.ParseInt(c.Param("pid"), 10, 32)
	if err != nil || pid <= 0 {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid pid: %s", c.Param("pid")))
		return
	}

	detail, err := s.deps.Processes.Process(c.Request.Context(), int32(pid))
	if err != nil {
		if errors.Is(err, monitor.ErrProcessNotFound) {
			errorJSON(c, http.StatusNotFound, err)
			return
		}
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleAlerts(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultAlertLimit)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}

	alerts := s.deps.Alerts.Recent(limit)
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleClearAlerts(c *gin.Context) {
	s.deps.Alerts.ClearHistory()
	s.logger.Info("Alert history cleared")
	c.Status(http.StatusNoContent)
}

func (s *Server) handleArchive(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultAlertLimit)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	filter := storage.AlertFilter{Kind: c.Query("kind")}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid since: %w", err))
			return
		}
		filter.Since = t
	}

	ctx := c.Request.Context()
	records, err := s.deps.Archive.List(ctx, filter, offset, limit)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	total, err := s.deps.Archive.Count(ctx, filter)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": records, "total": total})
}

func (s *Server) handleThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Thresholds.Config())
}

func (s *Server) handleSetThreshold(c *gin.Context) {
	kind := c.Param("kind")

	var body struct {
		Limit   *float64 `json:"limit"`
		Enabled *bool    `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}

	t, ok := s.deps.Thresholds.Get(kind)
	if !ok && body.Limit == nil {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("limit is required for new kind %s", kind))
		return
	}
	if body.Limit != nil {
		t.Limit = *body.Limit
	}
	if body.Enabled != nil {
		t.Enabled = *body.Enabled
	} else if !ok {
		t.Enabled = true
	}

	s.deps.Thresholds.Set(kind, t)
	s.logger.Info("Threshold updated",
		zap.String("kind", kind),
		zap.Float64("limit", t.Limit),
		zap.Bool("enabled", t.Enabled))
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleReloadThresholds(c *gin.Context) {
	if err := s.deps.Thresholds.Reload(); err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Thresholds.Config())
}

func (s *Server) handleSaveThresholds(c *gin.Context) {
	if err := s.deps.Thresholds.Save(); err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (s *Server) handlePlugins(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Plugins.List())
}

func (s *Server) handleRunPlugin(c *gin.Context) {
	res, err := s.deps.Plugins.Run(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, plugin.ErrPluginNotFound) {
			errorJSON(c, http.StatusNotFound, err)
			return
		}
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleJobs(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Jobs.Jobs())
}

func (s *Server) handleRunJob(c *gin.Context) {
	name := c.Param("name")
	if err := s.deps.Jobs.RunNow(name); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			errorJSON(c, http.StatusNotFound, err)
			return
		}
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("Maintenance job run on demand", zap.String("name", name))
	c.JSON(http.StatusOK, gin.H{"status": "ok", "job": name})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return v, nil
}
