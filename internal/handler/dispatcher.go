package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/metrics"
	"github.com/t77yq/overwatch/internal/model"
)

// DefaultDispatchTimeout bounds a single handler invocation
const DefaultDispatchTimeout = 10 * time.Second

// Result is the outcome of one handler invocation
type Result struct {
	Handler  string        `json:"handler"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the handler succeeded
func (r Result) OK() bool { return r.Err == nil }

// Dispatcher fans fired alerts out to the registered handlers
type Dispatcher struct {
	logger   *zap.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	handlers []Handler
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Dispatcher{
		logger:  logger.Named("dispatcher"),
		timeout: timeout,
	}
}

// Register adds a handler
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)

	d.logger.Info("Handler registered", zap.String("handler", h.Name()))
}

// RegisterTested registers h after a successful connection test. Handlers
// that do not implement Tester are registered as-is.
func (d *Dispatcher) RegisterTested(ctx context.Context, h Handler) bool {
	if t, ok := h.(Tester); ok {
		tctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if err := t.TestConnection(tctx); err != nil {
			d.logger.Warn("Handler connection test failed, not registering",
				zap.String("handler", h.Name()),
				zap.Error(err))
			return false
		}
	}

	d.Register(h)
	return true
}

// Handlers returns the registered handler names in order
func (d *Dispatcher) Handlers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, len(d.handlers))
	for i, h := range d.handlers {
		names[i] = h.Name()
	}
	return names
}

// Dispatch invokes every handler in registration order. A failing handler
// never stops the remaining ones; failures are reported in the results.
func (d *Dispatcher) Dispatch(ctx context.Context, record model.AlertRecord) []Result {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	results := make([]Result, 0, len(handlers))
	for _, h := range handlers {
		start := time.Now()
		err := d.invoke(ctx, h, record)
		res := Result{Handler: h.Name(), Err: err, Duration: time.Since(start)}
		results = append(results, res)

		metrics.HandlerDispatchDuration.WithLabelValues(res.Handler).Observe(res.Duration.Seconds())
		if err != nil {
			metrics.HandlerDispatchTotal.WithLabelValues(res.Handler, "failed").Inc()
			d.logger.Error("Alert handler failed",
				zap.String("handler", res.Handler),
				zap.String("kind", record.Kind),
				zap.String("alert_id", record.ID),
				zap.Error(err))
			continue
		}
		metrics.HandlerDispatchTotal.WithLabelValues(res.Handler, "ok").Inc()
	}

	return results
}

// invoke runs one handler bounded by the dispatch timeout. A handler that
// ignores its context is abandoned once the timeout passes.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, record model.AlertRecord) error {
	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			}
		}()
		if rs, ok := h.(RecordSender); ok {
			done <- rs.SendRecord(hctx, record)
			return
		}
		done <- h.Send(hctx, record.Kind, record.Message, record.Value)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return fmt.Errorf("%w after %s", ErrHandlerTimeout, d.timeout)
	}
}
