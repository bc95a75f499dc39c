package view

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/t77yq/overwatch/internal/model"
)

// ThresholdSource supplies the thresholds shown next to each metric
type ThresholdSource interface {
	Config() model.ThresholdConfig
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Width(12)
	valueStyle = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
	limitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Width(12).Align(lipgloss.Right)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// clearScreen moves the cursor home and clears the terminal
const clearScreen = "\033[H\033[2J"

// Terminal renders a compact status table to a writer
type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	thresholds ThresholdSource
	clear      bool
}

// NewTerminal creates a terminal view. When clear is set each frame
// replaces the previous one.
func NewTerminal(out io.Writer, thresholds ThresholdSource, clear bool) *Terminal {
	return &Terminal{out: out, thresholds: thresholds, clear: clear}
}

// SetThresholds replaces the threshold source
func (t *Terminal) SetThresholds(src ThresholdSource) {
	t.mu.Lock()
	t.thresholds = src
	t.mu.Unlock()
}

// Render implements monitor.View
func (t *Terminal) Render(snap *model.Snapshot, recent []model.AlertRecord) error {
	frame := t.Frame(snap, recent)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.clear {
		frame = clearScreen + frame
	}
	_, err := io.WriteString(t.out, frame)
	return err
}

// Frame builds one frame of output
func (t *Terminal) Frame(snap *model.Snapshot, recent []model.AlertRecord) string {
	t.mu.Lock()
	src := t.thresholds
	t.mu.Unlock()

	var cfg model.ThresholdConfig
	if src != nil {
		cfg = src.Config()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("OverWatch"))
	if snap != nil {
		b.WriteString(dimStyle.Render("  " + snap.Timestamp.Format("2006-01-02 15:04:05")))
	}
	b.WriteString("\n\n")

	if snap != nil {
		if snap.CPU != nil {
			b.WriteString(row("CPU", snap.CPU.Total, cfg, model.ThresholdCPU))
		}
		if snap.Memory != nil {
			b.WriteString(row("Memory", snap.Memory.RAM.Percent, cfg, model.ThresholdMemory))
			b.WriteString(row("Swap", snap.Memory.Swap.Percent, nil, ""))
		}
		if snap.Disk != nil {
			for _, p := range snap.Disk.Partitions {
				b.WriteString(row("Disk "+p.Mountpoint, p.Percent, cfg, model.ThresholdDisk))
			}
		}
		if snap.Sensors != nil {
			for _, s := range snap.Sensors.Temperatures {
				b.WriteString(row(s.Label, s.Current, cfg, model.ThresholdTemperature))
			}
		}
	}

	b.WriteString("\n")
	if len(recent) == 0 {
		b.WriteString(okStyle.Render("No alerts triggered"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(limitStyle.UnsetWidth().UnsetAlign().Render("Recent alerts:"))
	b.WriteString("\n")
	for _, a := range recent {
		fmt.Fprintf(&b, "  • [%s] %s %s\n", a.Kind, a.Message, dimStyle.Render(a.Timestamp.Format("15:04:05")))
	}
	return b.String()
}

func row(label string, value float64, cfg model.ThresholdConfig, kind string) string {
	limit := "-"
	status := okStyle.Render("OK")

	if t, ok := cfg.Enabled(kind); ok {
		limit = fmt.Sprintf("%.1f", t.Limit)
		if value > t.Limit {
			status = alertStyle.Render("ALERT")
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render(truncate(label, 11)),
		valueStyle.Render(fmt.Sprintf("%.1f", value)),
		limitStyle.Render(limit),
		"  ",
		status,
	) + "\n"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
