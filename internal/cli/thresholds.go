package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/t77yq/overwatch/internal/model"
	"github.com/t77yq/overwatch/internal/storage"
)

func newThresholdsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show or change alert thresholds",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the thresholds in force",
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openThresholds(opts)
				if err != nil {
					return err
				}

				cfg := store.Config()
				kinds := make([]string, 0, len(cfg))
				for k := range cfg {
					kinds = append(kinds, k)
				}
				sort.Strings(kinds)

				t := newTable("Kind", "Limit", "Enabled")
				for _, k := range kinds {
					t.Row(k, strconv.FormatFloat(cfg[k].Limit, 'f', -1, 64), strconv.FormatBool(cfg[k].Enabled))
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.Render())
				fmt.Fprintf(cmd.OutOrStdout(), "Source: %s\n", store.Path())
				return nil
			},
		},
		newThresholdSetCommand(opts),
		&cobra.Command{
			Use:   "save",
			Short: "Write the thresholds in force to the threshold file",
			Long: `Write the thresholds in force to the threshold file. With no file this
writes the built-in defaults.`,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openThresholds(opts)
				if err != nil {
					return err
				}
				if err := store.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved thresholds to %s\n", store.Path())
				return nil
			},
		},
	)
	return cmd
}

func newThresholdSetCommand(opts *rootOptions) *cobra.Command {
	var disable bool

	cmd := &cobra.Command{
		Use:   "set <kind> <limit>",
		Short: "Set a threshold and save it",
		Long: `Set the limit for a threshold kind and write the file.

Examples:
  overwatch thresholds set cpu 85
  overwatch thresholds set temperature 75
  overwatch thresholds set disk 90 --disable`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid limit %q: %w", args[1], err)
			}

			store, err := openThresholds(opts)
			if err != nil {
				return err
			}

			t := model.Threshold{Limit: limit, Enabled: !disable}
			store.Set(args[0], t)
			if err := store.Save(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: limit %s, enabled %t\n",
				args[0], strconv.FormatFloat(limit, 'f', -1, 64), t.Enabled)
			return nil
		},
	}

	cmd.Flags().BoolVar(&disable, "disable", false, "store the threshold disabled")
	return cmd
}

// openThresholds loads the configured threshold file. A malformed file is
// reported instead of being silently replaced.
func openThresholds(opts *rootOptions) (*storage.ThresholdStore, error) {
	cfg, log, err := opts.load()
	if err != nil {
		return nil, err
	}
	defer log.Sync()

	store := storage.NewThresholdStore(cfg.Thresholds.Path, log)
	if err := store.Load(); err != nil {
		if errors.Is(err, storage.ErrMalformedThresholds) {
			return nil, fmt.Errorf("%w: fix or remove %s", err, cfg.Thresholds.Path)
		}
		return nil, err
	}
	return store, nil
}
