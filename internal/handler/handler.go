package handler

import (
	"context"
	"errors"

	"github.com/t77yq/overwatch/internal/model"
)

var (
	// ErrHandlerTimeout is returned when a handler does not finish within the dispatch timeout
	ErrHandlerTimeout = errors.New("handler timed out")

	// ErrHandlerPanic is returned when a handler panics
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNotConfigured is returned when a handler is missing required settings
	ErrNotConfigured = errors.New("handler not configured")
)

// Handler is a notification sink for fired alerts
type Handler interface {
	// Name identifies the handler in logs and metrics
	Name() string

	// Send delivers one alert
	Send(ctx context.Context, kind, message string, value float64) error
}

// Tester is implemented by handlers that can verify their connection before
// being registered
type Tester interface {
	TestConnection(ctx context.Context) error
}

// RecordSender is implemented by handlers that want the full alert record,
// including its id and source. Dispatch prefers it over Send.
type RecordSender interface {
	SendRecord(ctx context.Context, record model.AlertRecord) error
}

// HandlerFunc adapts a function to a Handler
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, kind, message string, value float64) error
}

// Name implements Handler
func (f HandlerFunc) Name() string { return f.HandlerName }

// Send implements Handler
func (f HandlerFunc) Send(ctx context.Context, kind, message string, value float64) error {
	return f.Fn(ctx, kind, message, value)
}
