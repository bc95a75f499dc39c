package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/model"
)

const (
	// AlertStream is the JetStream stream alerts are published to
	AlertStream = "ALERTS"

	// AlertSubjectPrefix is followed by the alert kind
	AlertSubjectPrefix = "alert."
)

// AlertMessage is the JSON body published for each alert
type AlertMessage struct {
	ID        string    `json:"id,omitempty"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Host      string    `json:"host,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NATSHandler publishes alerts to JetStream on alert.<kind>
type NATSHandler struct {
	logger *zap.Logger
	js     nats.JetStreamContext
	host   string
}

// NewNATSHandler creates a new NATS alert publisher
func NewNATSHandler(js nats.JetStreamContext, host string, logger *zap.Logger) *NATSHandler {
	return &NATSHandler{
		logger: logger.Named("nats"),
		js:     js,
		host:   host,
	}
}

// Name implements Handler
func (h *NATSHandler) Name() string { return "nats" }

// TestConnection implements Tester, creating the alert stream if needed
func (h *NATSHandler) TestConnection(ctx context.Context) error {
	stream, err := h.js.StreamInfo(AlertStream, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if stream == nil {
		_, err = h.js.AddStream(&nats.StreamConfig{
			Name:     AlertStream,
			Subjects: []string{AlertSubjectPrefix + "*"},
			Storage:  nats.FileStorage,
			MaxAge:   7 * 24 * time.Hour,
		}, nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		h.logger.Info("Created alert stream", zap.String("name", AlertStream))
	}

	return nil
}

// Send implements Handler
func (h *NATSHandler) Send(ctx context.Context, kind, message string, value float64) error {
	return h.publish(ctx, AlertMessage{
		Kind:      kind,
		Message:   message,
		Value:     value,
		Timestamp: time.Now(),
	})
}

// SendRecord implements RecordSender
func (h *NATSHandler) SendRecord(ctx context.Context, record model.AlertRecord) error {
	return h.publish(ctx, AlertMessage{
		ID:        record.ID,
		Kind:      record.Kind,
		Source:    record.Source,
		Message:   record.Message,
		Value:     record.Value,
		Timestamp: record.Timestamp,
	})
}

func (h *NATSHandler) publish(ctx context.Context, msg AlertMessage) error {
	msg.Host = h.host
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := h.js.Publish(AlertSubjectPrefix+msg.Kind, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}
