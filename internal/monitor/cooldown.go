package monitor

import (
	"sync"
	"time"

	"github.com/t77yq/overwatch/internal/model"
)

// DefaultCooldown is the minimum time between two fired alerts of one key
const DefaultCooldown = 5 * time.Minute

// CooldownKeyFunc maps a candidate to the key its cooldown is tracked under
type CooldownKeyFunc func(c model.AlertCandidate) string

// KeyByKind tracks cooldown per metric kind. Two partitions crossing the
// disk threshold within one window share a key, so only the first fires.
func KeyByKind(c model.AlertCandidate) string {
	return c.Kind
}

// KeyBySource tracks cooldown per kind and partition/sensor.
func KeyBySource(c model.AlertCandidate) string {
	if c.Source == "" {
		return c.Kind
	}
	return c.Kind + ":" + c.Source
}

// CooldownKeyFuncByName resolves "kind" or "source"; anything else is kind.
func CooldownKeyFuncByName(name string) CooldownKeyFunc {
	if name == "source" {
		return KeyBySource
	}
	return KeyByKind
}

// CooldownGate suppresses repeated candidates within a window.
type CooldownGate struct {
	mu        sync.Mutex
	window    time.Duration
	key       CooldownKeyFunc
	lastFired map[string]time.Time
}

// NewCooldownGate creates a gate. A nil key func means KeyByKind.
func NewCooldownGate(window time.Duration, key CooldownKeyFunc) *CooldownGate {
	if window < 0 {
		window = 0
	}
	if key == nil {
		key = KeyByKind
	}
	return &CooldownGate{
		window:    window,
		key:       key,
		lastFired: make(map[string]time.Time),
	}
}

// Allow reports whether c fires at now, recording the fire time if so.
// A suppressed candidate leaves the gate untouched.
func (g *CooldownGate) Allow(c model.AlertCandidate, now time.Time) bool {
	k := g.key(c)

	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastFired[k]; ok && now.Sub(last) < g.window {
		return false
	}
	g.lastFired[k] = now
	return true
}

// LastFired returns when key last fired
func (g *CooldownGate) LastFired(key string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastFired[key]
	return t, ok
}

// Window returns the configured cooldown window
func (g *CooldownGate) Window() time.Duration {
	return g.window
}

// Reset forgets every recorded fire time
func (g *CooldownGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastFired = make(map[string]time.Time)
}
