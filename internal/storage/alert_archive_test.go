package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/overwatch/internal/model"
)

func newTestArchive(t *testing.T) *AlertArchive {
	t.Helper()

	archive, err := NewAlertArchive(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func TestAlertArchive(t *testing.T) {
	// Setup
	archive := newTestArchive(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		kind := model.ThresholdCPU
		if i%2 == 1 {
			kind = model.ThresholdDisk
		}
		require.NoError(t, archive.Store(ctx, model.AlertRecord{
			ID:        fmt.Sprintf("a-%d", i),
			Kind:      kind,
			Source:    map[bool]string{true: "/data"}[kind == model.ThresholdDisk],
			Message:   fmt.Sprintf("alert %d", i),
			Value:     float64(90 + i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	t.Run("list newest first", func(t *testing.T) {
		records, err := archive.List(ctx, AlertFilter{}, 0, 10)
		require.NoError(t, err)
		require.Len(t, records, 5)
		assert.Equal(t, "a-4", records[0].ID)
		assert.Equal(t, "a-0", records[4].ID)
		assert.True(t, base.Equal(records[4].Timestamp))
	})

	t.Run("pagination", func(t *testing.T) {
		records, err := archive.List(ctx, AlertFilter{}, 1, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "a-3", records[0].ID)
		assert.Equal(t, "a-2", records[1].ID)
	})

	t.Run("filter by kind", func(t *testing.T) {
		records, err := archive.List(ctx, AlertFilter{Kind: model.ThresholdDisk}, 0, 10)
		require.NoError(t, err)
		require.Len(t, records, 2)
		for _, r := range records {
			assert.Equal(t, "/data", r.Source)
		}

		count, err := archive.Count(ctx, AlertFilter{Kind: model.ThresholdCPU})
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("filter by time", func(t *testing.T) {
		count, err := archive.Count(ctx, AlertFilter{Since: base.Add(3 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = archive.Count(ctx, AlertFilter{Kind: model.ThresholdCPU, Since: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := archive.Store(ctx, model.AlertRecord{ID: "a-0", Kind: "cpu", Message: "dup", Timestamp: base})
		assert.Error(t, err)
	})

	t.Run("delete before", func(t *testing.T) {
		deleted, err := archive.DeleteBefore(ctx, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		count, err := archive.Count(ctx, AlertFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func TestAlertArchive_AsHandler(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	assert.Equal(t, "archive", archive.Name())

	require.NoError(t, archive.SendRecord(ctx, model.AlertRecord{
		ID:        "keep-me",
		Kind:      model.ThresholdDisk,
		Source:    "/",
		Message:   "Disk usage on / is 91% (threshold: 85%)",
		Value:     91,
		Timestamp: time.Now(),
	}))
	require.NoError(t, archive.Send(ctx, model.ThresholdCPU, "CPU usage is 95% (threshold: 90%)", 95))

	records, err := archive.List(ctx, AlertFilter{Kind: model.ThresholdDisk}, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "keep-me", records[0].ID)
	assert.Equal(t, "/", records[0].Source)

	records, err = archive.List(ctx, AlertFilter{Kind: model.ThresholdCPU}, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID, "Send assigns an id")
}
