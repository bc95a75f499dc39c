package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t77yq/overwatch/internal/plugin"
)

func newPluginsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List available plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			reg := plugin.NewRegistry(log)
			if err := plugin.RegisterBuiltins(reg); err != nil {
				return err
			}

			list := reg.List()
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plugins found")
				return nil
			}

			t := newTable("Name", "Version", "Description")
			for _, m := range list {
				t.Row(m.Name, m.Version, m.Description)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run a plugin and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			reg := plugin.NewRegistry(log)
			if err := plugin.RegisterBuiltins(reg); err != nil {
				return err
			}

			res, err := reg.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			if res.Status == plugin.StatusError {
				return fmt.Errorf("plugin %s failed", args[0])
			}
			return nil
		},
	})
	return cmd
}
