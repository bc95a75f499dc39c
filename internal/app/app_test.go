package app

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/overwatch/internal/config"
	"github.com/t77yq/overwatch/internal/handler"
	"github.com/t77yq/overwatch/internal/model"
	"github.com/t77yq/overwatch/internal/storage"
	"github.com/t77yq/overwatch/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Thresholds.Path = filepath.Join(dir, "thresholds.json")
	cfg.Archive.Path = filepath.Join(dir, "alerts.db")
	cfg.Email = config.EmailConfig{}
	cfg.Telegram.BotToken = ""
	cfg.Server.Port = 0
	cfg.Stream.Interval = 20 * time.Millisecond
	cfg.Alerts.Interval = 20 * time.Millisecond
	return cfg
}

func TestApp_AlertPipeline(t *testing.T) {
	// Setup
	s, nc, _ := testutil.StartJetStream(t)
	alerts := testutil.CollectMessages(t, nc, "alert.>")
	snapshots := testutil.CollectMessages(t, nc, "metrics.snapshot")

	cfg := testConfig(t)
	cfg.NATS.Enabled = true
	cfg.NATS.URL = s.ClientURL()
	cfg.Archive.Enabled = true

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"archive", "nats"}, a.Dispatcher.Handlers())
	assert.Equal(t, 1, a.Registry.Len(), "NATS snapshot subscriber is registered")

	fired := a.Alerts.Process(context.Background(), &model.Snapshot{CPU: &model.CPUReading{Total: 97}}, time.Now())
	require.Len(t, fired, 1)

	count, err := a.Archive.Count(context.Background(), storage.AlertFilter{Kind: model.ThresholdCPU})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	testutil.WaitFor(t, 5*time.Second, func() bool { return len(alerts()) == 1 })
	var msg handler.AlertMessage
	require.NoError(t, json.Unmarshal(alerts()[0], &msg))
	assert.Equal(t, fired[0].ID, msg.ID)

	result := a.Registry.Broadcast(context.Background(), []byte(`{}`))
	assert.Equal(t, 1, result.Delivered)
	testutil.WaitFor(t, 5*time.Second, func() bool { return len(snapshots()) == 1 })
}

func TestApp_MalformedThresholdsDisableAlerting(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Thresholds.Path, "not json")

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Empty(t, a.Thresholds.Config())
	fired := a.Alerts.Process(context.Background(), &model.Snapshot{CPU: &model.CPUReading{Total: 100}}, time.Now())
	assert.Empty(t, fired)
}

func TestApp_Run(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()
	assert.Empty(t, a.Dispatcher.Handlers())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err = a.Run(ctx, RunOptions{Loop: true, API: true, Version: "test"})
	assert.NoError(t, err)
}

func TestApp_RunStopsOnComponentFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Server.Port = busy.Addr().(*net.TCPAddr).Port

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), RunOptions{Loop: true, API: true}) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after the API failed")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
