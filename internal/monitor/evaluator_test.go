package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/overwatch/internal/model"
)

// hotSnapshot breaches every default threshold
func hotSnapshot() *model.Snapshot {
	return &model.Snapshot{
		CPU:    &model.CPUReading{Total: 99},
		Memory: &model.MemoryReading{RAM: model.MemoryStats{Percent: 99}},
		Disk: &model.DiskReading{Partitions: []model.PartitionUsage{
			{Mountpoint: "/", Percent: 99},
			{Mountpoint: "/data", Percent: 98},
		}},
		Sensors: &model.SensorReading{Temperatures: []model.TemperatureSensor{
			{Label: "coretemp", Current: 99},
		}},
	}
}

func TestEvaluate_DisabledKindsNeverFire(t *testing.T) {
	kinds := []string{model.ThresholdCPU, model.ThresholdMemory, model.ThresholdDisk, model.ThresholdTemperature}

	for _, disabled := range kinds {
		t.Run(disabled, func(t *testing.T) {
			cfg := model.ThresholdConfig{}
			for _, k := range kinds {
				cfg[k] = model.Threshold{Limit: 10, Enabled: k != disabled}
			}

			for _, c := range Evaluate(hotSnapshot(), cfg) {
				assert.NotEqual(t, disabled, c.Kind)
			}
		})
	}

	t.Run("all disabled", func(t *testing.T) {
		cfg := model.ThresholdConfig{}
		for _, k := range kinds {
			cfg[k] = model.Threshold{Limit: 10, Enabled: false}
		}
		assert.Empty(t, Evaluate(hotSnapshot(), cfg))
	})

	t.Run("unset kinds", func(t *testing.T) {
		assert.Empty(t, Evaluate(hotSnapshot(), model.ThresholdConfig{}))
		assert.Empty(t, Evaluate(hotSnapshot(), nil))
	})
}

func TestEvaluate_StrictGreaterThan(t *testing.T) {
	cfg := model.ThresholdConfig{model.ThresholdCPU: {Limit: 90, Enabled: true}}

	assert.Empty(t, Evaluate(&model.Snapshot{CPU: &model.CPUReading{Total: 90}}, cfg))

	candidates := Evaluate(&model.Snapshot{CPU: &model.CPUReading{Total: 90.1}}, cfg)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.ThresholdCPU, candidates[0].Kind)
	assert.Equal(t, 90.1, candidates[0].Value)
}

func TestEvaluate_Messages(t *testing.T) {
	cfg := model.DefaultThresholds()
	cfg[model.ThresholdTemperature] = model.Threshold{Limit: 80, Enabled: true}

	candidates := Evaluate(&model.Snapshot{
		CPU:    &model.CPUReading{Total: 95},
		Memory: &model.MemoryReading{RAM: model.MemoryStats{Percent: 81.5}},
		Disk: &model.DiskReading{Partitions: []model.PartitionUsage{
			{Mountpoint: "/data", Percent: 90},
		}},
		Sensors: &model.SensorReading{Temperatures: []model.TemperatureSensor{
			{Label: "coretemp", Current: 85},
		}},
	}, cfg)
	require.Len(t, candidates, 4)

	assert.Equal(t, "CPU usage is 95% (threshold: 90%)", candidates[0].Message)
	assert.Equal(t, "Memory usage is 81.5% (threshold: 80%)", candidates[1].Message)
	assert.Equal(t, "Disk usage on /data is 90% (threshold: 85%)", candidates[2].Message)
	assert.Equal(t, "/data", candidates[2].Source)
	assert.Equal(t, "Temperature coretemp is 85°C (threshold: 80°C)", candidates[3].Message)
	assert.Equal(t, "coretemp", candidates[3].Source)
}

func TestEvaluate_DiskPartitions(t *testing.T) {
	cfg := model.ThresholdConfig{model.ThresholdDisk: {Limit: 85, Enabled: true}}

	t.Run("one partition over", func(t *testing.T) {
		candidates := Evaluate(&model.Snapshot{Disk: &model.DiskReading{Partitions: []model.PartitionUsage{
			{Mountpoint: "/", Percent: 90},
			{Mountpoint: "/home", Percent: 50},
		}}}, cfg)

		require.Len(t, candidates, 1)
		assert.Equal(t, "/", candidates[0].Source)
		assert.Equal(t, 90.0, candidates[0].Value)
	})

	t.Run("two partitions over", func(t *testing.T) {
		candidates := Evaluate(&model.Snapshot{Disk: &model.DiskReading{Partitions: []model.PartitionUsage{
			{Mountpoint: "/", Percent: 90},
			{Mountpoint: "/home", Percent: 95},
		}}}, cfg)

		require.Len(t, candidates, 2)
	})
}

func TestEvaluate_MissingAndErroredReadings(t *testing.T) {
	cfg := model.DefaultThresholds()

	assert.Empty(t, Evaluate(nil, cfg))
	assert.Empty(t, Evaluate(&model.Snapshot{}, cfg))

	errored := &model.Snapshot{
		CPU:    &model.CPUReading{Error: "failed to read cpu"},
		Memory: &model.MemoryReading{Error: "failed to read memory"},
		Disk:   &model.DiskReading{Error: "failed to read disk"},
	}
	assert.Empty(t, Evaluate(errored, cfg))
}
