package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/overwatch/internal/model"
	"github.com/t77yq/overwatch/internal/testutil"
)

func TestNATSHandler(t *testing.T) {
	// Setup
	_, nc, js := testutil.StartJetStream(t)
	h := NewNATSHandler(js, "web-01", zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("creates stream", func(t *testing.T) {
		require.NoError(t, h.TestConnection(ctx))

		info, err := js.StreamInfo(AlertStream)
		require.NoError(t, err)
		assert.Equal(t, []string{"alert.*"}, info.Config.Subjects)

		// Idempotent
		require.NoError(t, h.TestConnection(ctx))
	})

	t.Run("publishes records", func(t *testing.T) {
		received := testutil.CollectMessages(t, nc, "alert.disk")

		ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		err := h.SendRecord(ctx, model.AlertRecord{
			ID:        "a-1",
			Kind:      model.ThresholdDisk,
			Source:    "/data",
			Message:   "Disk usage on /data is 92% (threshold: 85%)",
			Value:     92,
			Timestamp: ts,
		})
		require.NoError(t, err)

		testutil.WaitFor(t, 5*time.Second, func() bool { return len(received()) == 1 })

		var msg AlertMessage
		require.NoError(t, json.Unmarshal(received()[0], &msg))
		assert.Equal(t, "a-1", msg.ID)
		assert.Equal(t, "/data", msg.Source)
		assert.Equal(t, "web-01", msg.Host)
		assert.Equal(t, 92.0, msg.Value)
		assert.True(t, ts.Equal(msg.Timestamp))
	})

	t.Run("send without record", func(t *testing.T) {
		require.NoError(t, h.Send(ctx, model.ThresholdCPU, "CPU usage is 95% (threshold: 90%)", 95))

		info, err := js.StreamInfo(AlertStream)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), info.State.Msgs)
	})
}
