package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/model"
)

// ErrMalformedThresholds is returned by Load when the persisted file cannot
// be parsed. The store is left with an empty config so nothing alerts.
var ErrMalformedThresholds = errors.New("malformed threshold configuration")

// ThresholdStore holds per-kind thresholds. Readers always observe a
// complete config: every mutation installs a new map with an atomic swap.
type ThresholdStore struct {
	logger  *zap.Logger
	path    string
	current atomic.Pointer[model.ThresholdConfig]
	// serialises writers; readers never take it
	mu sync.Mutex
}

// NewThresholdStore creates a store backed by path. The store starts with
// the built-in defaults until Load is called.
func NewThresholdStore(path string, logger *zap.Logger) *ThresholdStore {
	s := &ThresholdStore{
		logger: logger.Named("thresholds"),
		path:   path,
	}
	s.install(model.DefaultThresholds())
	return s
}

// Path returns the backing file path
func (s *ThresholdStore) Path() string {
	return s.path
}

// Load reads the persisted configuration. A missing file installs the
// defaults; a malformed one installs an empty config and returns
// ErrMalformedThresholds.
func (s *ThresholdStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.install(model.DefaultThresholds())
			s.logger.Info("Threshold file not found, using defaults", zap.String("path", s.path))
			return nil
		}
		s.install(model.ThresholdConfig{})
		return fmt.Errorf("failed to read thresholds: %w", err)
	}

	var cfg model.ThresholdConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.install(model.ThresholdConfig{})
		return fmt.Errorf("%w in %s: %v", ErrMalformedThresholds, s.path, err)
	}
	if cfg == nil {
		cfg = model.ThresholdConfig{}
	}

	s.install(cfg)
	s.logger.Info("Thresholds loaded",
		zap.String("path", s.path),
		zap.Int("kinds", len(cfg)))
	return nil
}

// Reload is Load for administrative use
func (s *ThresholdStore) Reload() error {
	return s.Load()
}

// Save persists the current config
func (s *ThresholdStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.Config(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create threshold directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".thresholds-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write thresholds: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace threshold file: %w", err)
	}

	s.logger.Info("Thresholds saved", zap.String("path", s.path))
	return nil
}

// Config returns the current config. Callers must not modify it.
func (s *ThresholdStore) Config() model.ThresholdConfig {
	return *s.current.Load()
}

// Get returns the threshold for kind; unset kinds report false
func (s *ThresholdStore) Get(kind string) (model.Threshold, bool) {
	t, ok := s.Config()[kind]
	return t, ok
}

// Set replaces the threshold for one kind
func (s *ThresholdStore) Set(kind string, t model.Threshold) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Config().Clone()
	next[kind] = t
	s.install(next)
}

// Replace installs a whole new config
func (s *ThresholdStore) Replace(cfg model.ThresholdConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(cfg.Clone())
}

func (s *ThresholdStore) install(cfg model.ThresholdConfig) {
	s.current.Store(&cfg)
}
