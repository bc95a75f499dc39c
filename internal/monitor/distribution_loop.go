package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/metrics"
	"github.com/t77yq/overwatch/internal/model"
	"github.com/t77yq/overwatch/internal/stream"
)

// View renders the latest snapshot locally
type View interface {
	Render(snap *model.Snapshot, recent []model.AlertRecord) error
}

// Broadcaster delivers an encoded snapshot to live subscribers
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) stream.BroadcastResult
}

// LoopConfig configures the distribution loop
type LoopConfig struct {
	// Interval is the tick period of the streaming path
	Interval time.Duration
	// AlertInterval is the minimum time between two alert evaluations
	AlertInterval time.Duration
	// TickTimeout bounds the work of a single tick
	TickTimeout time.Duration
	// Kinds limits sampling; empty means every kind
	Kinds []model.Kind
	// ViewAlerts is the number of recent alerts passed to the view
	ViewAlerts int
}

// DefaultLoopConfig returns the loop defaults
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Interval:      time.Second,
		AlertInterval: 5 * time.Second,
		TickTimeout:   10 * time.Second,
		ViewAlerts:    3,
	}
}

// DistributionLoop samples the host on a fixed period and feeds each
// snapshot to the alert pipeline, the local view and the subscribers.
type DistributionLoop struct {
	logger    *zap.Logger
	config    LoopConfig
	provider  SnapshotProvider
	alerts    *AlertManager
	view      View
	broadcast Broadcaster

	lastEval time.Time
}

// NewDistributionLoop creates a loop. alerts, view and broadcast may each be nil.
func NewDistributionLoop(config LoopConfig, provider SnapshotProvider, alerts *AlertManager, view View, broadcast Broadcaster, logger *zap.Logger) *DistributionLoop {
	defaults := DefaultLoopConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.AlertInterval <= 0 {
		config.AlertInterval = config.Interval
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = defaults.TickTimeout
	}
	if config.ViewAlerts <= 0 {
		config.ViewAlerts = defaults.ViewAlerts
	}

	return &DistributionLoop{
		logger:    logger.Named("distribution-loop"),
		config:    config,
		provider:  provider,
		alerts:    alerts,
		view:      view,
		broadcast: broadcast,
	}
}

// Run ticks until ctx is cancelled. A tick in progress when ctx is
// cancelled runs to completion before Run returns.
func (l *DistributionLoop) Run(ctx context.Context) error {
	l.logger.Info("Starting distribution loop",
		zap.Duration("interval", l.config.Interval),
		zap.Duration("alert_interval", l.config.AlertInterval))

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	// First tick immediately
	l.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Distribution loop stopped")
			return nil
		case t := <-ticker.C:
			l.Tick(ctx, t)
		}
	}
}

// Tick runs one iteration at now. Each step gets its own tick timeout on a
// context detached from ctx cancellation, so a slow step never starves the
// ones after it.
func (l *DistributionLoop) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	detached := context.WithoutCancel(ctx)

	snap := l.acquire(detached, now)

	if l.alerts != nil && l.dueForEvaluation(now) {
		l.step("alerts", func() error {
			l.lastEval = now
			actx, cancel := context.WithTimeout(detached, l.config.TickTimeout)
			defer cancel()
			l.alerts.Process(actx, snap, now)
			return nil
		})
	}

	if l.view != nil {
		l.step("view", func() error {
			var recent []model.AlertRecord
			if l.alerts != nil {
				recent = l.alerts.Recent(l.config.ViewAlerts)
			}
			return l.view.Render(snap, recent)
		})
	}

	if l.broadcast != nil {
		l.step("broadcast", func() error {
			payload, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot: %w", err)
			}
			bctx, cancel := context.WithTimeout(detached, l.config.TickTimeout)
			defer cancel()
			res := l.broadcast.Broadcast(bctx, payload)
			if len(res.Dropped) > 0 {
				l.logger.Info("Dropped stream subscribers",
					zap.Strings("subscriber_ids", res.Dropped),
					zap.Int("delivered", res.Delivered))
			}
			return nil
		})
	}

	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// acquire takes the tick's snapshot. A failing provider yields an empty
// snapshot stamped with now.
func (l *DistributionLoop) acquire(ctx context.Context, now time.Time) (snap *model.Snapshot) {
	l.step("snapshot", func() error {
		sctx, cancel := context.WithTimeout(ctx, l.config.TickTimeout)
		defer cancel()
		snap = l.provider.Snapshot(sctx, l.config.Kinds...)
		return nil
	})
	if snap == nil {
		snap = &model.Snapshot{Timestamp: now}
	}
	return snap
}

func (l *DistributionLoop) dueForEvaluation(now time.Time) bool {
	return l.lastEval.IsZero() || now.Sub(l.lastEval) >= l.config.AlertInterval
}

// step runs fn, containing both returned errors and panics so one step
// never prevents the next
func (l *DistributionLoop) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TickStepPanicsTotal.WithLabelValues(name).Inc()
			l.logger.Error("Loop step panicked",
				zap.String("step", name),
				zap.Any("panic", r))
		}
	}()

	if err := fn(); err != nil {
		l.logger.Error("Loop step failed",
			zap.String("step", name),
			zap.Error(err))
	}
}
