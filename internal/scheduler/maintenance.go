package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ThresholdReloader re-reads the persisted thresholds
type ThresholdReloader interface {
	Reload() error
}

// ArchivePruner deletes archived alerts older than a cutoff
type ArchivePruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ErrJobNotFound is returned by RunNow for an unregistered job
var ErrJobNotFound = errors.New("job not found")

// Job names
const (
	JobReloadThresholds = "reload-thresholds"
	JobPruneArchive     = "prune-archive"
)

// JobInfo describes a registered job
type JobInfo struct {
	Name       string     `json:"name"`
	Expression string     `json:"expression"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	NextRun    time.Time  `json:"next_run"`
	LastError  string     `json:"last_error,omitempty"`
}

// Maintenance runs periodic housekeeping jobs on cron expressions with a
// seconds field
type Maintenance struct {
	logger *zap.Logger
	cron   *cron.Cron
	parser cron.Parser

	mu   sync.Mutex
	jobs map[string]*maintenanceJob
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// NewMaintenance creates a scheduler with no jobs
func NewMaintenance(logger *zap.Logger) *Maintenance {
	cl := &cronLogger{logger: logger.Named("cron")}
	return &Maintenance{
		logger: logger.Named("maintenance"),
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   make(map[string]*maintenanceJob),
	}
}

// Add registers fn under name. An empty expression is ignored.
func (m *Maintenance) Add(name, expression string, fn func(ctx context.Context) error) error {
	if expression == "" {
		return nil
	}
	if _, err := m.parser.Parse(expression); err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", expression, name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[name]; ok {
		return fmt.Errorf("job already registered: %s", name)
	}

	job := &maintenanceJob{m: m, name: name, expression: expression, fn: fn}
	id, err := m.cron.AddJob(expression, job)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	job.entryID = id
	m.jobs[name] = job

	m.logger.Info("Added maintenance job",
		zap.String("name", name),
		zap.String("expression", expression))
	return nil
}

// AddThresholdReload schedules periodic threshold reloads
func (m *Maintenance) AddThresholdReload(expression string, store ThresholdReloader) error {
	return m.Add(JobReloadThresholds, expression, func(context.Context) error {
		return store.Reload()
	})
}

// AddArchivePrune schedules deletion of archived alerts older than retention
func (m *Maintenance) AddArchivePrune(expression string, archive ArchivePruner, retention time.Duration) error {
	if retention <= 0 {
		return fmt.Errorf("archive retention must be positive")
	}
	return m.Add(JobPruneArchive, expression, func(ctx context.Context) error {
		deleted, err := archive.DeleteBefore(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		m.logger.Info("Pruned alert archive", zap.Int64("deleted", deleted))
		return nil
	})
}

// RunNow runs a registered job synchronously
func (m *Maintenance) RunNow(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job.run()
}

// Jobs lists the registered jobs sorted by name
func (m *Maintenance) Jobs() []JobInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]JobInfo, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.info(m.cron.Entry(job.entryID)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start starts the scheduler
func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// maintenanceJob implements cron.Job
type maintenanceJob struct {
	m          *Maintenance
	name       string
	expression string
	fn         func(ctx context.Context) error
	entryID    cron.EntryID

	mu      sync.Mutex
	lastRun *time.Time
	lastErr error
}

// Run implements cron.Job
func (j *maintenanceJob) Run() {
	_ = j.run()
}

func (j *maintenanceJob) run() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	err := j.fn(ctx)

	j.mu.Lock()
	j.lastRun = &start
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		j.m.logger.Error("Maintenance job failed",
			zap.String("name", j.name),
			zap.Error(err))
		return err
	}

	j.m.logger.Debug("Executed maintenance job",
		zap.String("name", j.name),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (j *maintenanceJob) info(entry cron.Entry) JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()

	info := JobInfo{
		Name:       j.name,
		Expression: j.expression,
		LastRun:    j.lastRun,
		NextRun:    entry.Next,
	}
	if j.lastErr != nil {
		info.LastError = j.lastErr.Error()
	}
	return info
}
