package cli

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/t77yq/overwatch/internal/app"
	"github.com/t77yq/overwatch/internal/model"
)

func newAlertsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Alert notification tools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test alert through every configured handler",
		Long: `Connect every configured notification handler and send one test alert.
Handlers that fail their connection test are reported and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			handlers := a.Dispatcher.Handlers()
			if len(handlers) == 0 {
				return fmt.Errorf("no notification handlers configured")
			}

			record := model.NewAlertRecord(uuid.New().String(), model.AlertCandidate{
				Kind:    "test",
				Message: "This is a test alert from OverWatch",
				Value:   0,
			}, time.Now())

			failed := 0
			for _, res := range a.Dispatcher.Dispatch(cmd.Context(), record) {
				if res.OK() {
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %s (%s)\n", res.Handler, res.Duration.Round(time.Millisecond))
					continue
				}
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", res.Handler, res.Err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d handlers failed", failed, len(handlers))
			}
			return nil
		},
	})
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "OverWatch %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
			fmt.Fprintf(out, "Go: %s\n", runtime.Version())
			fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
