package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/config"
	"github.com/t77yq/overwatch/internal/handler"
	"github.com/t77yq/overwatch/internal/monitor"
	"github.com/t77yq/overwatch/internal/plugin"
	"github.com/t77yq/overwatch/internal/scheduler"
	"github.com/t77yq/overwatch/internal/server"
	"github.com/t77yq/overwatch/internal/storage"
	"github.com/t77yq/overwatch/internal/stream"
)

// App holds every long-lived component built from the configuration
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Thresholds  *storage.ThresholdStore
	Collector   *monitor.SystemCollector
	Dispatcher  *handler.Dispatcher
	Alerts      *monitor.AlertManager
	Registry    *stream.Registry
	Plugins     *plugin.Registry
	Archive     *storage.AlertArchive
	Maintenance *scheduler.Maintenance

	nc *nats.Conn
	js nats.JetStreamContext
}

// New builds the application. Notification handlers whose connection test
// fails are skipped with a warning.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	a.Thresholds = storage.NewThresholdStore(cfg.Thresholds.Path, logger)
	if err := a.Thresholds.Load(); err != nil {
		if !errors.Is(err, storage.ErrMalformedThresholds) {
			return nil, err
		}
		logger.Error("Threshold file is malformed, alerting disabled until fixed",
			zap.String("path", cfg.Thresholds.Path),
			zap.Error(err))
	}

	a.Collector = monitor.NewSystemCollector(monitor.CollectorConfig{
		CPUSampleInterval: cfg.Collector.CPUSampleInterval,
		Timeout:           cfg.Collector.Timeout,
		ProcessLimit:      cfg.Collector.ProcessLimit,
		ProcessSortBy:     cfg.Collector.ProcessSortBy,
	}, logger)

	if cfg.NATS.Enabled {
		if err := a.connectNATS(); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Archive.Enabled {
		archive, err := storage.NewAlertArchive(logger, cfg.Archive.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open alert archive: %w", err)
		}
		a.Archive = archive
	}

	a.Dispatcher = handler.NewDispatcher(cfg.Alerts.DispatchTimeout, logger)
	a.registerHandlers(ctx)

	gate := monitor.NewCooldownGate(cfg.Alerts.Cooldown, monitor.CooldownKeyFuncByName(cfg.Alerts.CooldownKey))
	history := monitor.NewAlertHistory(cfg.Alerts.HistoryCapacity)
	a.Alerts = monitor.NewAlertManager(a.Thresholds, gate, history, a.Dispatcher, logger)

	a.Registry = stream.NewRegistry(cfg.Stream.SendTimeout, logger)
	if a.nc != nil {
		a.Registry.Add(stream.NewNATSSubscriber(a.nc, cfg.Stream.NATSSubject))
	}

	a.Plugins = plugin.NewRegistry(logger)
	if err := plugin.RegisterBuiltins(a.Plugins); err != nil {
		a.Close()
		return nil, err
	}

	a.Maintenance = scheduler.NewMaintenance(logger)
	if err := a.Maintenance.AddThresholdReload(cfg.Thresholds.ReloadSchedule, a.Thresholds); err != nil {
		a.Close()
		return nil, err
	}
	if a.Archive != nil {
		if err := a.Maintenance.AddArchivePrune(cfg.Archive.CleanupSchedule, a.Archive, cfg.Archive.Retention); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) registerHandlers(ctx context.Context) {
	cfg := a.Config

	if a.Archive != nil {
		a.Dispatcher.Register(a.Archive)
	}

	if a.js != nil {
		host, _ := os.Hostname()
		a.Dispatcher.RegisterTested(ctx, handler.NewNATSHandler(a.js, host, a.Logger))
	}

	email := handler.EmailConfig{
		Host:               cfg.Email.Host,
		Port:               cfg.Email.Port,
		Username:           cfg.Email.Username,
		Password:           cfg.Email.Password,
		From:               cfg.Email.From,
		To:                 cfg.Email.To,
		InsecureSkipVerify: cfg.Email.InsecureSkipVerify,
	}
	if email.Configured() {
		a.Dispatcher.RegisterTested(ctx, handler.NewEmailHandler(email, a.Logger))
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		a.Dispatcher.RegisterTested(ctx, handler.NewTelegramHandler(handler.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			BaseURL:  cfg.Telegram.BaseURL,
			Timeout:  cfg.Telegram.Timeout,
		}, a.Logger))
	}

	if len(a.Dispatcher.Handlers()) == 0 {
		a.Logger.Info("No notification handlers configured, alerts are recorded in history only")
	}
}

func (a *App) connectNATS() error {
	cfg := a.Config.NATS
	logger := a.Logger.Named("nats")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ReconnectBufSize(5 * 1024 * 1024),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("NATS connection error", fields...)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var (
		nc  *nats.Conn
		err error
	)
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		return fmt.Errorf("failed to connect to NATS after retries: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	a.nc = nc
	a.js = js
	return nil
}

// Loop builds the distribution loop. view may be nil.
func (a *App) Loop(view monitor.View) *monitor.DistributionLoop {
	return monitor.NewDistributionLoop(monitor.LoopConfig{
		Interval:      a.Config.Stream.Interval,
		AlertInterval: a.Config.Alerts.Interval,
		TickTimeout:   a.Config.Stream.TickTimeout,
	}, a.Collector, a.Alerts, view, a.Registry, a.Logger)
}

// Server builds the HTTP API bound to the configured address
func (a *App) Server(version string) *server.Server {
	deps := server.Deps{
		Version:    version,
		Provider:   a.Collector,
		Processes:  a.Collector,
		Alerts:     a.Alerts,
		Thresholds: a.Thresholds,
		Plugins:    a.Plugins,
		Jobs:       a.Maintenance,
		Stream:     stream.NewWSHandler(a.Registry, a.Logger),
	}
	if a.Archive != nil {
		deps.Archive = a.Archive
	}
	return server.New(a.Config.Server.Addr(), deps, a.Logger)
}

// RunOptions selects what Run starts
type RunOptions struct {
	View    monitor.View
	Loop    bool
	API     bool
	Version string
}

// Run starts the selected components and blocks until ctx is cancelled and
// they have stopped. A failing component stops the others.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.Maintenance.Start()
	defer a.Maintenance.Stop()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				a.Logger.Error("Component failed", zap.String("component", name), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				cancel()
			}
		}()
	}

	if opts.Loop {
		run("loop", a.Loop(opts.View).Run)
	}
	if opts.API {
		run("api", a.Server(opts.Version).Start)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// Close releases subscribers, the archive and the NATS connection
func (a *App) Close() error {
	if a.Registry != nil {
		a.Registry.Close()
	}

	var errs []error
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
		}
	}
	return errors.Join(errs...)
}
