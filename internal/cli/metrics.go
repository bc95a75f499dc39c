package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/t77yq/overwatch/internal/model"
	"github.com/t77yq/overwatch/internal/monitor"
	"github.com/t77yq/overwatch/internal/plugin"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func newMetricsCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print current system metrics",
		Long: `Take one snapshot of CPU, memory, disk, network and process metrics.

Examples:
  overwatch metrics
  overwatch metrics --format yaml
  overwatch metrics -f table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			collector := monitor.NewSystemCollector(monitor.CollectorConfig{
				CPUSampleInterval: cfg.Collector.CPUSampleInterval,
				Timeout:           cfg.Collector.Timeout,
				ProcessLimit:      5,
				ProcessSortBy:     cfg.Collector.ProcessSortBy,
			}, log)

			snap := collector.Snapshot(cmd.Context(),
				model.KindCPU, model.KindMemory, model.KindDisk, model.KindNetwork, model.KindProcesses)
			return writeSnapshot(cmd.OutOrStdout(), snap, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, yaml or table")
	return cmd
}

func writeSnapshot(w io.Writer, snap *model.Snapshot, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case "yaml":
		// Round trip through JSON so YAML keys match the JSON field names
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		_, err = w.Write(out)
		return err

	case "table":
		t := newTable("Metric", "Value")
		if snap.CPU != nil {
			t.Row("CPU Usage", fmt.Sprintf("%.1f%%", snap.CPU.Total))
		}
		if snap.Memory != nil {
			t.Row("RAM Usage", fmt.Sprintf("%.1f%%", snap.Memory.RAM.Percent))
			t.Row("Swap Usage", fmt.Sprintf("%.1f%%", snap.Memory.Swap.Percent))
		}
		if snap.Disk != nil {
			for _, p := range snap.Disk.Partitions {
				t.Row("Disk "+p.Mountpoint, fmt.Sprintf("%.1f%%", p.Percent))
			}
		}
		if snap.Processes != nil {
			t.Row("Processes", fmt.Sprintf("%d", snap.Processes.TotalCount))
		}
		_, err := fmt.Fprintln(w, t.Render())
		return err

	default:
		return fmt.Errorf("unknown format %q, expected json, yaml or table", format)
	}
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show system information",
		RunE: func(cmd *cobra.Command, args []string) error {
			res := plugin.SysInfo().Run(cmd.Context())
			if res.Status != plugin.StatusOK {
				return fmt.Errorf("failed to read system information: %s", res.Error)
			}
			return writeData(cmd.OutOrStdout(), res.Data)
		},
	}
}

// writeData prints a key/value table sorted by key
func writeData(w io.Writer, data map[string]any) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := newTable("Property", "Value")
	for _, k := range keys {
		t.Row(k, fmt.Sprint(data[k]))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
