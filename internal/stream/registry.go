package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/metrics"
)

// DefaultSendTimeout bounds one delivery attempt to one subscriber
const DefaultSendTimeout = 2 * time.Second

// Subscriber is one live consumer of the snapshot stream. The registry owns
// membership; the subscriber owns its transport.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// BroadcastResult reports the outcome of one broadcast
type BroadcastResult struct {
	Delivered int
	Dropped   []string
}

// Registry is the set of live subscribers. Add and Remove may be called
// from connection goroutines while Broadcast runs on the loop goroutine.
type Registry struct {
	logger      *zap.Logger
	sendTimeout time.Duration
	mu          sync.RWMutex
	members     map[string]Subscriber
	closed      bool
}

// NewRegistry creates an empty registry
func NewRegistry(sendTimeout time.Duration, logger *zap.Logger) *Registry {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Registry{
		logger:      logger.Named("stream-registry"),
		sendTimeout: sendTimeout,
		members:     make(map[string]Subscriber),
	}
}

// Add registers a subscriber, closing any member it replaces. It returns
// false once the registry is closed.
func (r *Registry) Add(sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	// A re-registered id replaces the old member, which is closed
	if prev, ok := r.members[sub.ID()]; ok && prev != sub {
		prev.Close()
	}
	r.members[sub.ID()] = sub
	metrics.StreamSubscribers.Set(float64(len(r.members)))

	r.logger.Info("Subscriber added",
		zap.String("subscriber_id", sub.ID()),
		zap.Int("subscribers", len(r.members)))
	return true
}

// Remove unregisters a subscriber without closing it
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return
	}
	delete(r.members, id)
	metrics.StreamSubscribers.Set(float64(len(r.members)))

	r.logger.Info("Subscriber removed",
		zap.String("subscriber_id", id),
		zap.Int("subscribers", len(r.members)))
}

// Len returns the number of live subscribers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast attempts one delivery of payload to every current member.
// Members whose delivery fails are removed and closed before it returns.
func (r *Registry) Broadcast(ctx context.Context, payload []byte) BroadcastResult {
	r.mu.RLock()
	members := make([]Subscriber, 0, len(r.members))
	for _, sub := range r.members {
		members = append(members, sub)
	}
	r.mu.RUnlock()

	if len(members) == 0 {
		return BroadcastResult{}
	}

	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, sub := range members {
		wg.Add(1)
		go func(i int, sub Subscriber) {
			defer wg.Done()
			errs[i] = r.deliver(ctx, sub, payload)
		}(i, sub)
	}
	wg.Wait()

	var result BroadcastResult
	var failed []Subscriber
	for i, err := range errs {
		if err == nil {
			result.Delivered++
			continue
		}
		failed = append(failed, members[i])
		result.Dropped = append(result.Dropped, members[i].ID())
		r.logger.Debug("Dropping subscriber after failed delivery",
			zap.String("subscriber_id", members[i].ID()),
			zap.Error(err))
	}

	metrics.StreamDeliveriesTotal.WithLabelValues("delivered").Add(float64(result.Delivered))
	if len(failed) > 0 {
		metrics.StreamDeliveriesTotal.WithLabelValues("dropped").Add(float64(len(failed)))
		for _, sub := range failed {
			r.Remove(sub.ID())
			sub.Close()
		}
	}

	return result
}

func (r *Registry) deliver(ctx context.Context, sub Subscriber, payload []byte) (err error) {
	sctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = errPanic{rec}
		}
	}()
	return sub.Send(sctx, payload)
}

// Close closes every member and rejects further additions
func (r *Registry) Close() {
	r.mu.Lock()
	members := r.members
	r.members = make(map[string]Subscriber)
	r.closed = true
	metrics.StreamSubscribers.Set(0)
	r.mu.Unlock()

	for id, sub := range members {
		if err := sub.Close(); err != nil {
			r.logger.Debug("Failed to close subscriber",
				zap.String("subscriber_id", id),
				zap.Error(err))
		}
	}
}
