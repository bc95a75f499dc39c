package monitor

import (
	"fmt"

	"github.com/t77yq/overwatch/internal/model"
)

// Evaluate compares a snapshot against the enabled thresholds and returns
// every breach. It has no state. Missing readings and disabled or unset
// kinds produce nothing; a reading with an error marker holds zero values.
func Evaluate(snap *model.Snapshot, thresholds model.ThresholdConfig) []model.AlertCandidate {
	if snap == nil {
		return nil
	}

	var candidates []model.AlertCandidate

	if t, ok := thresholds.Enabled(model.ThresholdCPU); ok && snap.CPU != nil {
		if current := snap.CPU.Total; current > t.Limit {
			candidates = append(candidates, model.AlertCandidate{
				Kind:    model.ThresholdCPU,
				Message: fmt.Sprintf("CPU usage is %s%% (threshold: %s%%)", formatValue(current), formatValue(t.Limit)),
				Value:   current,
			})
		}
	}

	if t, ok := thresholds.Enabled(model.ThresholdMemory); ok && snap.Memory != nil {
		if current := snap.Memory.RAM.Percent; current > t.Limit {
			candidates = append(candidates, model.AlertCandidate{
				Kind:    model.ThresholdMemory,
				Message: fmt.Sprintf("Memory usage is %s%% (threshold: %s%%)", formatValue(current), formatValue(t.Limit)),
				Value:   current,
			})
		}
	}

	if t, ok := thresholds.Enabled(model.ThresholdDisk); ok && snap.Disk != nil {
		for _, p := range snap.Disk.Partitions {
			if p.Percent > t.Limit {
				candidates = append(candidates, model.AlertCandidate{
					Kind:    model.ThresholdDisk,
					Source:  p.Mountpoint,
					Message: fmt.Sprintf("Disk usage on %s is %s%% (threshold: %s%%)", p.Mountpoint, formatValue(p.Percent), formatValue(t.Limit)),
					Value:   p.Percent,
				})
			}
		}
	}

	if t, ok := thresholds.Enabled(model.ThresholdTemperature); ok && snap.Sensors != nil {
		for _, s := range snap.Sensors.Temperatures {
			if s.Current > t.Limit {
				candidates = append(candidates, model.AlertCandidate{
					Kind:    model.ThresholdTemperature,
					Source:  s.Label,
					Message: fmt.Sprintf("Temperature %s is %s°C (threshold: %s°C)", s.Label, formatValue(s.Current), formatValue(t.Limit)),
					Value:   s.Current,
				})
			}
		}
	}

	return candidates
}

// formatValue prints whole numbers without a fractional part
func formatValue(v float64) string {
	return fmt.Sprintf("%g", v)
}
