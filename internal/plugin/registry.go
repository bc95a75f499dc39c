package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrPluginNotFound is returned when running an unknown plugin
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginExists is returned when a name is registered twice
	ErrPluginExists = errors.New("plugin already registered")

	// ErrMissingRun is returned for a plugin without a Run function
	ErrMissingRun = errors.New("plugin has no run function")
)

// Result statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metadata describes a plugin
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Author      string `json:"author"`
}

// Result is the output of one plugin run
type Result struct {
	Name   string         `json:"name"`
	Data   map[string]any `json:"data,omitempty"`
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// Plugin is a compiled-in capability
type Plugin struct {
	Metadata Metadata
	Run      func(ctx context.Context) Result
}

// Registry holds the registered plugins
type Registry struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:  logger.Named("plugins"),
		plugins: make(map[string]Plugin),
	}
}

// Register adds p. Metadata.Name defaults to name when empty.
func (r *Registry) Register(name string, p Plugin) error {
	if name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if p.Run == nil {
		return fmt.Errorf("%w: %s", ErrMissingRun, name)
	}
	if p.Metadata.Name == "" {
		p.Metadata.Name = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[name]; ok {
		return fmt.Errorf("%w: %s", ErrPluginExists, name)
	}
	r.plugins[name] = p

	r.logger.Debug("Registered plugin",
		zap.String("name", name),
		zap.String("version", p.Metadata.Version))
	return nil
}

// List returns the metadata of every plugin sorted by name
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run executes a single plugin
func (r *Registry) Run(ctx context.Context, name string) (Result, error) {
	r.mu.RLock()
	p, ok := r.plugins[name]
	r.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return r.run(ctx, name, p), nil
}

// RunAll executes every plugin in name order. A failing plugin yields an
// error result and does not affect the others.
func (r *Registry) RunAll(ctx context.Context) []Result {
	r.mu.RLock()
	names := make([]string, 0, len(r.plugins))
	plugins := make(map[string]Plugin, len(r.plugins))
	for name, p := range r.plugins {
		names = append(names, name)
		plugins[name] = p
	}
	r.mu.RUnlock()

	sort.Strings(names)
	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, r.run(ctx, name, plugins[name]))
	}
	return results
}

func (r *Registry) run(ctx context.Context, name string, p Plugin) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Plugin panicked",
				zap.String("name", name),
				zap.Any("panic", rec))
			res = Result{Name: name, Status: StatusError, Error: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	res = p.Run(ctx)
	if res.Name == "" {
		res.Name = name
	}
	if res.Status == "" {
		res.Status = StatusOK
	}
	if res.Status == StatusError {
		r.logger.Warn("Plugin failed",
			zap.String("name", name),
			zap.String("error", res.Error))
	}
	return res
}
