package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/handler"
	"github.com/t77yq/overwatch/internal/metrics"
	"github.com/t77yq/overwatch/internal/model"
)

// ThresholdSource supplies the thresholds in force. It is read on every
// evaluation, never cached.
type ThresholdSource interface {
	Config() model.ThresholdConfig
}

// AlertDispatcher delivers a fired alert to notification handlers
type AlertDispatcher interface {
	Dispatch(ctx context.Context, record model.AlertRecord) []handler.Result
}

// AlertManager runs evaluation, cooldown, history and dispatch for one
// snapshot at a time. Process must only be called from a single goroutine.
type AlertManager struct {
	logger     *zap.Logger
	thresholds ThresholdSource
	gate       *CooldownGate
	history    *AlertHistory
	dispatcher AlertDispatcher
}

// NewAlertManager creates a new alert manager. dispatcher may be nil.
func NewAlertManager(thresholds ThresholdSource, gate *CooldownGate, history *AlertHistory, dispatcher AlertDispatcher, logger *zap.Logger) *AlertManager {
	return &AlertManager{
		logger:     logger.Named("alert-manager"),
		thresholds: thresholds,
		gate:       gate,
		history:    history,
		dispatcher: dispatcher,
	}
}

// Process evaluates snap at now and returns the alerts that fired
func (m *AlertManager) Process(ctx context.Context, snap *model.Snapshot, now time.Time) []model.AlertRecord {
	candidates := Evaluate(snap, m.thresholds.Config())
	if len(candidates) == 0 {
		return nil
	}

	var fired []model.AlertRecord
	for _, c := range candidates {
		if !m.gate.Allow(c, now) {
			metrics.AlertsSuppressedTotal.WithLabelValues(c.Kind).Inc()
			continue
		}

		record := model.NewAlertRecord(uuid.New().String(), c, now)
		m.history.Append(record)
		metrics.AlertsFiredTotal.WithLabelValues(c.Kind).Inc()

		m.logger.Info("Alert fired",
			zap.String("id", record.ID),
			zap.String("kind", record.Kind),
			zap.String("source", record.Source),
			zap.Float64("value", record.Value))

		if m.dispatcher != nil {
			m.dispatcher.Dispatch(ctx, record)
		}
		fired = append(fired, record)
	}

	return fired
}

// History returns the alert history
func (m *AlertManager) History() *AlertHistory {
	return m.history
}

// Recent returns the last limit fired alerts, oldest first
func (m *AlertManager) Recent(limit int) []model.AlertRecord {
	return m.history.Recent(limit)
}

// ClearHistory drops the history and every cooldown
func (m *AlertManager) ClearHistory() {
	m.history.Clear()
	m.gate.Reset()
}
