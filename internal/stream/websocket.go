package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// pongWait is how long a client may stay silent before it is dropped
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// WSSubscriber streams snapshots to one websocket client
type WSSubscriber struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

// NewWSSubscriber wraps an upgraded connection
func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{
		id:   uuid.New().String(),
		conn: conn,
		done: make(chan struct{}),
	}
}

// ID implements Subscriber
func (s *WSSubscriber) ID() string { return s.id }

// Send implements Subscriber
func (s *WSSubscriber) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrSlowSubscriber, err)
		}
		return err
	}
	return nil
}

// Close implements Subscriber
func (s *WSSubscriber) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
		s.mu.Unlock()
		close(s.done)
	})
	return err
}

// Done is closed once the subscriber is closed
func (s *WSSubscriber) Done() <-chan struct{} {
	return s.done
}

// readPump discards client messages and returns when the client goes away
func (s *WSSubscriber) readPump() {
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

// pingLoop keeps idle connections alive between snapshots
func (s *WSSubscriber) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// WSHandler upgrades HTTP requests and registers each connection
type WSHandler struct {
	logger   *zap.Logger
	registry *Registry
	upgrader websocket.Upgrader
}

// NewWSHandler creates a websocket endpoint feeding registry
func NewWSHandler(registry *Registry, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		logger:   logger.Named("websocket"),
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler. It blocks until the client disconnects.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	sub := NewWSSubscriber(conn)
	if !h.registry.Add(sub) {
		sub.Close()
		return
	}

	h.logger.Debug("Websocket client connected",
		zap.String("subscriber_id", sub.ID()),
		zap.String("remote", r.RemoteAddr))

	go sub.pingLoop()
	sub.readPump()

	h.registry.Remove(sub.ID())
	sub.Close()
}
