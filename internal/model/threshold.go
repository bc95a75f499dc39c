package model

import "encoding/json"

// Threshold kinds
const (
	ThresholdCPU         = "cpu"
	ThresholdMemory      = "memory"
	ThresholdDisk        = "disk"
	ThresholdTemperature = "temperature"
)

// Threshold is the alerting limit for one metric kind
type Threshold struct {
	Limit   float64 `json:"limit"`
	Enabled bool    `json:"enabled"`
}

// UnmarshalJSON accepts both {"limit": n} and the older {"threshold": n} layout.
func (t *Threshold) UnmarshalJSON(data []byte) error {
	var raw struct {
		Limit     *float64 `json:"limit"`
		Threshold *float64 `json:"threshold"`
		Enabled   bool     `json:"enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.Enabled = raw.Enabled
	t.Limit = 0
	switch {
	case raw.Limit != nil:
		t.Limit = *raw.Limit
	case raw.Threshold != nil:
		t.Limit = *raw.Threshold
	}
	return nil
}

// ThresholdConfig maps a metric kind to its threshold. Values are treated as
// immutable once handed out by the threshold store.
type ThresholdConfig map[string]Threshold

// DefaultThresholds returns the built-in threshold set used when no
// persisted configuration exists.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		ThresholdCPU:         {Limit: 90, Enabled: true},
		ThresholdMemory:      {Limit: 80, Enabled: true},
		ThresholdDisk:        {Limit: 85, Enabled: true},
		ThresholdTemperature: {Limit: 80, Enabled: false},
	}
}

// Enabled returns the threshold for kind if it is set and enabled.
func (c ThresholdConfig) Enabled(kind string) (Threshold, bool) {
	t, ok := c[kind]
	if !ok || !t.Enabled {
		return Threshold{}, false
	}
	return t, true
}

// Clone returns a deep copy of the config
func (c ThresholdConfig) Clone() ThresholdConfig {
	out := make(ThresholdConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
