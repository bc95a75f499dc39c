package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeSubscriber records deliveries and fails on demand
type fakeSubscriber struct {
	id       string
	mu       sync.Mutex
	payloads [][]byte
	err      error
	panics   bool
	block    bool
	closed   atomic.Bool
}

func (s *fakeSubscriber) ID() string { return s.id }

func (s *fakeSubscriber) Send(ctx context.Context, payload []byte) error {
	if s.panics {
		panic("write on nil conn")
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeSubscriber) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSubscriber) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func TestRegistry_Broadcast(t *testing.T) {
	t.Run("failed member is dropped", func(t *testing.T) {
		// Setup
		r := NewRegistry(time.Second, zaptest.NewLogger(t))
		subs := make([]*fakeSubscriber, 5)
		for i := range subs {
			subs[i] = &fakeSubscriber{id: fmt.Sprintf("sub-%d", i)}
			require.True(t, r.Add(subs[i]))
		}
		subs[2].err = errors.New("broken pipe")

		result := r.Broadcast(context.Background(), []byte(`{"cpu":1}`))

		assert.Equal(t, 4, result.Delivered)
		assert.Equal(t, []string{"sub-2"}, result.Dropped)
		assert.Equal(t, 4, r.Len())
		assert.True(t, subs[2].closed.Load())
		for i, s := range subs {
			if i == 2 {
				continue
			}
			assert.Equal(t, 1, s.received())
			assert.False(t, s.closed.Load())
		}

		// Next broadcast only reaches the survivors
		result = r.Broadcast(context.Background(), []byte(`{}`))
		assert.Equal(t, 4, result.Delivered)
		assert.Empty(t, result.Dropped)
	})

	t.Run("panicking member is dropped", func(t *testing.T) {
		r := NewRegistry(time.Second, zaptest.NewLogger(t))
		good := &fakeSubscriber{id: "good"}
		bad := &fakeSubscriber{id: "bad", panics: true}
		r.Add(good)
		r.Add(bad)

		var result BroadcastResult
		require.NotPanics(t, func() { result = r.Broadcast(context.Background(), []byte("x")) })
		assert.Equal(t, 1, result.Delivered)
		assert.Equal(t, []string{"bad"}, result.Dropped)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("slow member is dropped after the send timeout", func(t *testing.T) {
		r := NewRegistry(50*time.Millisecond, zaptest.NewLogger(t))
		fast := &fakeSubscriber{id: "fast"}
		slow := &fakeSubscriber{id: "slow", block: true}
		r.Add(fast)
		r.Add(slow)

		start := time.Now()
		result := r.Broadcast(context.Background(), []byte("x"))

		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 1, result.Delivered)
		assert.Equal(t, []string{"slow"}, result.Dropped)
		assert.Equal(t, 1, fast.received())
	})

	t.Run("empty registry", func(t *testing.T) {
		r := NewRegistry(0, zaptest.NewLogger(t))
		result := r.Broadcast(context.Background(), []byte("x"))
		assert.Zero(t, result.Delivered)
		assert.Empty(t, result.Dropped)
	})
}

func TestRegistry_ConcurrentMembership(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var broadcasts sync.WaitGroup
	broadcasts.Add(1)
	go func() {
		defer broadcasts.Done()
		for ctx.Err() == nil {
			r.Broadcast(ctx, []byte("tick"))
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := &fakeSubscriber{id: fmt.Sprintf("sub-%d", i)}
			r.Add(sub)
			if i%2 == 0 {
				r.Remove(sub.ID())
			}
		}(i)
	}
	wg.Wait()
	cancel()
	broadcasts.Wait()

	assert.Equal(t, 25, r.Len())
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	r.Add(a)
	r.Add(b)

	r.Close()

	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Add(&fakeSubscriber{id: "late"}), "closed registry rejects members")
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	r.Add(&fakeSubscriber{id: "a"})

	r.Remove("missing")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_AddReplacesAndClosesDuplicate(t *testing.T) {
	r := NewRegistry(time.Second, zaptest.NewLogger(t))
	first := &fakeSubscriber{id: "nats:metrics.snapshot"}
	second := &fakeSubscriber{id: "nats:metrics.snapshot"}

	require.True(t, r.Add(first))
	require.True(t, r.Add(second))

	assert.True(t, first.closed.Load(), "replaced member is closed")
	assert.False(t, second.closed.Load())
	assert.Equal(t, 1, r.Len())

	// Re-adding the same member is a no-op
	require.True(t, r.Add(second))
	assert.False(t, second.closed.Load())

	result := r.Broadcast(context.Background(), []byte("x"))
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 0, first.received())
	assert.Equal(t, 1, second.received())
}
