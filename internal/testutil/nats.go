package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// RunServer creates a NATS server on a random local port
func RunServer(jetstream bool, storeDir string) (*server.Server, error) {
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           server.RANDOM_PORT,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 4096,
		JetStream:      jetstream,
		StoreDir:       storeDir,
	}

	return server.NewServer(opts)
}

// StartNATS starts a plain NATS server and connects to it. Both are shut
// down when the test ends.
func StartNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	s, err := RunServer(false, "")
	require.NoError(t, err)
	return s, start(t, s)
}

// StartJetStream starts a NATS server with JetStream enabled and returns a
// connection and JetStream context to it
func StartJetStream(t *testing.T) (*server.Server, *nats.Conn, nats.JetStreamContext) {
	t.Helper()

	s, err := RunServer(true, t.TempDir())
	require.NoError(t, err)
	nc := start(t, s)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	return s, nc, js
}

func start(t *testing.T, s *server.Server) *nats.Conn {
	t.Helper()

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		nc.Close()
		s.Shutdown()
		s.WaitForShutdown()
	})
	return nc
}

// CollectMessages subscribes to subject and returns a function reporting
// the messages received so far
func CollectMessages(t *testing.T, nc *nats.Conn, subject string) func() [][]byte {
	t.Helper()

	msgs := make(chan []byte, 256)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		msgs <- msg.Data
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	t.Cleanup(func() { sub.Unsubscribe() })

	var received [][]byte
	return func() [][]byte {
		for {
			select {
			case m := <-msgs:
				received = append(received, m)
			default:
				return received
			}
		}
	}
}

// WaitFor polls cond until it holds or timeout passes
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
