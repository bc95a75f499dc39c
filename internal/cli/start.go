package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/app"
	"github.com/t77yq/overwatch/internal/config"
	"github.com/t77yq/overwatch/internal/monitor"
	"github.com/t77yq/overwatch/internal/view"
)

type serveFlags struct {
	refresh float64
	noView  bool
	api     bool
	host    string
	port    int
}

// apply overrides configuration values for flags the user set
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("refresh") {
		if f.refresh <= 0 {
			return fmt.Errorf("--refresh must be positive")
		}
		cfg.Stream.Interval = time.Duration(f.refresh * float64(time.Second))
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}
	return cfg.Validate()
}

func newStartCommand(opts *rootOptions) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start monitoring with the terminal view",
		Long: `Start the monitoring loop. Every tick samples the host, renders the
terminal view and streams the snapshot to subscribers. Thresholds are
evaluated on the alert interval.

Examples:
  overwatch start
  overwatch start --refresh 2
  overwatch start --no-view --api --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			var v monitor.View
			if !flags.noView {
				v = view.NewTerminal(cmd.OutOrStdout(), nil, true)
			}
			return serve(cfg, log, app.RunOptions{Loop: true, API: flags.api, View: v})
		},
	}

	cmd.Flags().Float64VarP(&flags.refresh, "refresh", "r", 1.0, "refresh interval in seconds")
	cmd.Flags().BoolVar(&flags.noView, "no-view", false, "disable the terminal view")
	cmd.Flags().BoolVar(&flags.api, "api", false, "also serve the HTTP API")
	cmd.Flags().StringVar(&flags.host, "host", "127.0.0.1", "API bind address")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 8000, "API port")
	return cmd
}

func newAPICommand(opts *rootOptions) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: "Start the HTTP API server",
		Long: `Serve the REST API, the /ws snapshot stream and prometheus /metrics.
The monitoring loop runs without the terminal view so alerts keep firing
and websocket clients receive snapshots.

Examples:
  overwatch api
  overwatch api --host 0.0.0.0 --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Starting OverWatch API server on %s...\n", cfg.Server.Addr())
			return serve(cfg, log, app.RunOptions{Loop: true, API: true})
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "127.0.0.1", "bind address")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 8000, "port")
	return cmd
}

func serve(cfg *config.Config, log *zap.Logger, opts app.RunOptions) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if t, ok := opts.View.(*view.Terminal); ok {
		t.SetThresholds(a.Thresholds)
	}
	opts.Version = version

	log.Info("OverWatch started",
		zap.Duration("interval", cfg.Stream.Interval),
		zap.Bool("api", opts.API),
		zap.Strings("handlers", a.Dispatcher.Handlers()))

	return a.Run(ctx, opts)
}
