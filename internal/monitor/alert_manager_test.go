package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/overwatch/internal/handler"
	"github.com/t77yq/overwatch/internal/model"
)

// staticThresholds is a fixed ThresholdSource
type staticThresholds model.ThresholdConfig

func (s staticThresholds) Config() model.ThresholdConfig { return model.ThresholdConfig(s) }

// recordingDispatcher captures dispatched records
type recordingDispatcher struct {
	mu      sync.Mutex
	records []model.AlertRecord
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, record model.AlertRecord) []handler.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, record)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

func cpuSnapshot(v float64) *model.Snapshot {
	return &model.Snapshot{CPU: &model.CPUReading{Total: v}}
}

func TestAlertManager_CooldownScenario(t *testing.T) {
	// Setup
	thresholds := staticThresholds{model.ThresholdCPU: {Limit: 90, Enabled: true}}
	dispatcher := &recordingDispatcher{}
	history := NewAlertHistory(0)
	manager := NewAlertManager(thresholds, NewCooldownGate(5*time.Minute, KeyByKind), history, dispatcher, zaptest.NewLogger(t))

	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Tick 1 fires
	fired := manager.Process(ctx, cpuSnapshot(95), t0)
	require.Len(t, fired, 1)
	require.Equal(t, 1, history.Len())
	assert.Contains(t, fired[0].Message, "95")
	assert.Contains(t, fired[0].Message, "90")
	assert.NotEmpty(t, fired[0].ID)
	assert.Equal(t, t0, fired[0].Timestamp)

	// Tick 2 is inside the window
	fired = manager.Process(ctx, cpuSnapshot(96), t0.Add(60*time.Second))
	assert.Empty(t, fired)
	assert.Equal(t, 1, history.Len())

	// Tick 3 is past the window
	fired = manager.Process(ctx, cpuSnapshot(97), t0.Add(301*time.Second))
	require.Len(t, fired, 1)
	assert.Equal(t, 2, history.Len())

	assert.Equal(t, 2, dispatcher.count(), "suppressed candidates are never dispatched")

	recent := manager.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, 95.0, recent[0].Value)
	assert.Equal(t, 97.0, recent[1].Value)
}

func TestAlertManager_DiskPartitionsShareCooldown(t *testing.T) {
	thresholds := staticThresholds{model.ThresholdDisk: {Limit: 85, Enabled: true}}
	snap := &model.Snapshot{Disk: &model.DiskReading{Partitions: []model.PartitionUsage{
		{Mountpoint: "/", Percent: 90},
		{Mountpoint: "/data", Percent: 92},
	}}}
	now := time.Now()

	t.Run("keyed by kind", func(t *testing.T) {
		manager := NewAlertManager(thresholds, NewCooldownGate(5*time.Minute, KeyByKind), NewAlertHistory(0), nil, zaptest.NewLogger(t))

		fired := manager.Process(context.Background(), snap, now)
		require.Len(t, fired, 1)
		assert.Equal(t, "/", fired[0].Source)
	})

	t.Run("keyed by source", func(t *testing.T) {
		manager := NewAlertManager(thresholds, NewCooldownGate(5*time.Minute, KeyBySource), NewAlertHistory(0), nil, zaptest.NewLogger(t))

		fired := manager.Process(context.Background(), snap, now)
		require.Len(t, fired, 2)
	})

	t.Run("one partition over", func(t *testing.T) {
		manager := NewAlertManager(thresholds, NewCooldownGate(5*time.Minute, KeyByKind), NewAlertHistory(0), nil, zaptest.NewLogger(t))

		fired := manager.Process(context.Background(), &model.Snapshot{Disk: &model.DiskReading{Partitions: []model.PartitionUsage{
			{Mountpoint: "/", Percent: 90},
			{Mountpoint: "/home", Percent: 50},
		}}}, now)
		require.Len(t, fired, 1)
		assert.Equal(t, "/", fired[0].Source)
	})
}

func TestAlertManager_ReadsThresholdsEveryCall(t *testing.T) {
	src := &mutableThresholds{cfg: model.ThresholdConfig{model.ThresholdCPU: {Limit: 90, Enabled: false}}}
	manager := NewAlertManager(src, NewCooldownGate(0, nil), NewAlertHistory(0), nil, zaptest.NewLogger(t))
	now := time.Now()

	assert.Empty(t, manager.Process(context.Background(), cpuSnapshot(95), now))

	src.set(model.ThresholdConfig{model.ThresholdCPU: {Limit: 90, Enabled: true}})
	assert.Len(t, manager.Process(context.Background(), cpuSnapshot(95), now), 1)
}

func TestAlertManager_ClearHistory(t *testing.T) {
	thresholds := staticThresholds{model.ThresholdCPU: {Limit: 90, Enabled: true}}
	manager := NewAlertManager(thresholds, NewCooldownGate(time.Hour, KeyByKind), NewAlertHistory(0), nil, zaptest.NewLogger(t))
	now := time.Now()

	require.Len(t, manager.Process(context.Background(), cpuSnapshot(95), now), 1)
	require.Empty(t, manager.Process(context.Background(), cpuSnapshot(95), now))

	manager.ClearHistory()
	assert.Equal(t, 0, manager.History().Len())
	assert.Len(t, manager.Process(context.Background(), cpuSnapshot(95), now), 1, "cooldown is reset with the history")
}

type mutableThresholds struct {
	mu  sync.Mutex
	cfg model.ThresholdConfig
}

func (m *mutableThresholds) Config() model.ThresholdConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *mutableThresholds) set(cfg model.ThresholdConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}
