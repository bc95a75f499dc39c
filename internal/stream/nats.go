package stream

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
)

// DefaultSnapshotSubject is the core NATS subject snapshots are published on
const DefaultSnapshotSubject = "metrics.snapshot"

// NATSSubscriber forwards every snapshot to a NATS subject
type NATSSubscriber struct {
	nc      *nats.Conn
	subject string
	closed  atomic.Bool
}

// NewNATSSubscriber creates a subscriber publishing on subject
func NewNATSSubscriber(nc *nats.Conn, subject string) *NATSSubscriber {
	if subject == "" {
		subject = DefaultSnapshotSubject
	}
	return &NATSSubscriber{nc: nc, subject: subject}
}

// ID implements Subscriber
func (s *NATSSubscriber) ID() string { return "nats:" + s.subject }

// Send implements Subscriber
func (s *NATSSubscriber) Send(_ context.Context, payload []byte) error {
	if s.closed.Load() {
		return ErrSubscriberClosed
	}
	// Publishes are buffered while reconnecting; only a closed connection fails
	if s.nc.IsClosed() {
		return fmt.Errorf("nats connection closed")
	}
	if err := s.nc.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Close implements Subscriber. The connection itself belongs to the caller.
func (s *NATSSubscriber) Close() error {
	s.closed.Store(true)
	return nil
}
