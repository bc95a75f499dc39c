package monitor

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/overwatch/internal/model"
)

func TestSystemCollector_Snapshot(t *testing.T) {
	// Setup
	collector := NewSystemCollector(DefaultCollectorConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("requested kinds only", func(t *testing.T) {
		snap := collector.Snapshot(ctx, model.KindCPU, model.KindMemory)
		require.NotNil(t, snap)
		assert.False(t, snap.Timestamp.IsZero())

		require.NotNil(t, snap.CPU)
		require.NotNil(t, snap.Memory)
		assert.Nil(t, snap.Disk)
		assert.Nil(t, snap.Network)
		assert.Nil(t, snap.Sensors)
		assert.Nil(t, snap.Processes)

		if snap.CPU.Error == "" {
			assert.GreaterOrEqual(t, snap.CPU.Total, 0.0)
			assert.LessOrEqual(t, snap.CPU.Total, 100.0)
			assert.Positive(t, snap.CPU.CountLogical)
		}
		if snap.Memory.Error == "" {
			assert.Positive(t, snap.Memory.RAM.Total)
			assert.LessOrEqual(t, snap.Memory.RAM.Percent, 100.0)
		}
	})

	t.Run("all kinds", func(t *testing.T) {
		snap := collector.Snapshot(ctx)
		for _, kind := range model.AllKinds() {
			assert.NotNil(t, snap.Reading(kind), "kind %s", kind)
		}

		// Streaming payload round trips
		data, err := json.Marshal(snap)
		require.NoError(t, err)
		var decoded model.Snapshot
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.NotNil(t, decoded.CPU)
	})

	t.Run("process limit", func(t *testing.T) {
		cfg := DefaultCollectorConfig()
		cfg.ProcessLimit = 3
		snap := NewSystemCollector(cfg, zaptest.NewLogger(t)).Snapshot(ctx, model.KindProcesses)

		require.NotNil(t, snap.Processes)
		assert.LessOrEqual(t, len(snap.Processes.Processes), 3)
		assert.GreaterOrEqual(t, snap.Processes.TotalCount, len(snap.Processes.Processes))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		snap := collector.Snapshot(cctx, model.KindCPU)
		require.NotNil(t, snap)
		require.NotNil(t, snap.CPU, "failures return a reading with an error marker")
	})
}

func TestSystemCollector_Process(t *testing.T) {
	collector := NewSystemCollector(DefaultCollectorConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	detail, err := collector.Process(ctx, int32(os.Getpid()))
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), detail.PID)
	assert.NotEmpty(t, detail.Name)

	_, err = collector.Process(ctx, 1<<30)
	assert.ErrorIs(t, err, ErrProcessNotFound)
}

func TestSortProcesses(t *testing.T) {
	procs := func() []model.ProcessInfo {
		return []model.ProcessInfo{
			{PID: 1, Name: "b", CPUPercent: 5, MemoryPercent: 30},
			{PID: 2, Name: "a", CPUPercent: 50, MemoryPercent: 10},
			{PID: 3, Name: "c", CPUPercent: 20, MemoryPercent: 20},
		}
	}

	pids := func(ps []model.ProcessInfo) []int32 {
		out := make([]int32, len(ps))
		for i, p := range ps {
			out[i] = p.PID
		}
		return out
	}

	ps := procs()
	SortProcesses(ps, "cpu")
	assert.Equal(t, []int32{2, 3, 1}, pids(ps))

	ps = procs()
	SortProcesses(ps, "memory")
	assert.Equal(t, []int32{1, 3, 2}, pids(ps))

	ps = procs()
	SortProcesses(ps, "name")
	assert.Equal(t, []int32{2, 1, 3}, pids(ps))
}
