package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/config"
	"github.com/t77yq/overwatch/internal/logger"
)

// Version info, set from main
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo records build metadata shown by the version command
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

// rootOptions are flags shared by every command
type rootOptions struct {
	configPath string
	logLevel   string
}

// load reads the configuration and builds the logger
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "overwatch",
		Short: "Host metrics monitoring with threshold alerts",
		Long: `OverWatch samples host CPU, memory, disk, network, sensor and process
metrics, raises alerts when thresholds are crossed, and streams live
snapshots to the terminal, websocket clients and NATS.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./config/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newStartCommand(opts),
		newAPICommand(opts),
		newMetricsCommand(opts),
		newInfoCommand(),
		newPluginsCommand(opts),
		newThresholdsCommand(opts),
		newAlertsCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
