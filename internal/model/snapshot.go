package model

import "time"

// Kind is a category of host measurement
type Kind string

const (
	KindCPU       Kind = "cpu"
	KindMemory    Kind = "memory"
	KindDisk      Kind = "disk"
	KindNetwork   Kind = "network"
	KindSensors   Kind = "sensors"
	KindProcesses Kind = "processes"
)

// AllKinds lists every kind the collector can sample
func AllKinds() []Kind {
	return []Kind{KindCPU, KindMemory, KindDisk, KindNetwork, KindSensors, KindProcesses}
}

// ParseKind reports whether s names a known kind
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Snapshot is one point-in-time reading across the sampled kinds.
// A nil field means the kind was not sampled.
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	CPU       *CPUReading     `json:"cpu,omitempty"`
	Memory    *MemoryReading  `json:"memory,omitempty"`
	Disk      *DiskReading    `json:"disk,omitempty"`
	Network   *NetworkReading `json:"network,omitempty"`
	Sensors   *SensorReading  `json:"sensors,omitempty"`
	Processes *ProcessReading `json:"processes,omitempty"`
}

// Reading returns the reading for kind, or nil if absent
func (s *Snapshot) Reading(kind Kind) any {
	if s == nil {
		return nil
	}
	switch kind {
	case KindCPU:
		if s.CPU != nil {
			return s.CPU
		}
	case KindMemory:
		if s.Memory != nil {
			return s.Memory
		}
	case KindDisk:
		if s.Disk != nil {
			return s.Disk
		}
	case KindNetwork:
		if s.Network != nil {
			return s.Network
		}
	case KindSensors:
		if s.Sensors != nil {
			return s.Sensors
		}
	case KindProcesses:
		if s.Processes != nil {
			return s.Processes
		}
	}
	return nil
}

// CPUFrequency is reported in MHz
type CPUFrequency struct {
	Current float64 `json:"current"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// CPUReading holds processor usage
type CPUReading struct {
	Total         float64      `json:"total"`
	PerCore       []float64    `json:"per_core"`
	CountLogical  int          `json:"count_logical"`
	CountPhysical int          `json:"count_physical"`
	Frequency     CPUFrequency `json:"frequency"`
	LoadAverage   [3]float64   `json:"load_average"`
	Error         string       `json:"error,omitempty"`
}

// MemoryStats describes one memory pool (RAM or swap)
type MemoryStats struct {
	Total     uint64  `json:"total"`
	Available uint64  `json:"available,omitempty"`
	Used      uint64  `json:"used"`
	Free      uint64  `json:"free"`
	Percent   float64 `json:"percent"`
}

// MemoryReading holds RAM and swap usage
type MemoryReading struct {
	RAM   MemoryStats `json:"ram"`
	Swap  MemoryStats `json:"swap"`
	Error string      `json:"error,omitempty"`
}

// PartitionUsage is the usage of one mounted filesystem
type PartitionUsage struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	FSType     string  `json:"fstype"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
}

// DiskIO aggregates block device counters
type DiskIO struct {
	ReadCount  uint64 `json:"read_count"`
	WriteCount uint64 `json:"write_count"`
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
	ReadTime   uint64 `json:"read_time"`
	WriteTime  uint64 `json:"write_time"`
}

// DiskReading holds per-partition usage and I/O totals
type DiskReading struct {
	Partitions []PartitionUsage `json:"partitions"`
	IO         DiskIO           `json:"io"`
	Error      string           `json:"error,omitempty"`
}

// InterfaceCounters are the I/O counters of one network interface
type InterfaceCounters struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	Errin       uint64 `json:"errin"`
	Errout      uint64 `json:"errout"`
	Dropin      uint64 `json:"dropin"`
	Dropout     uint64 `json:"dropout"`
}

// ConnectionStats counts sockets by state
type ConnectionStats struct {
	Total       int `json:"total"`
	Established int `json:"established"`
	Listen      int `json:"listen"`
}

// NetworkReading holds per-interface and total network counters
type NetworkReading struct {
	Interfaces  map[string]InterfaceCounters `json:"io_per_interface"`
	Total       InterfaceCounters            `json:"io_total"`
	Connections ConnectionStats              `json:"connections"`
	Error       string                       `json:"error,omitempty"`
}

// TemperatureSensor is one temperature sensor, in °C
type TemperatureSensor struct {
	Label    string  `json:"label"`
	Current  float64 `json:"current"`
	High     float64 `json:"high,omitempty"`
	Critical float64 `json:"critical,omitempty"`
}

// SensorReading holds temperature sensor readings
type SensorReading struct {
	Temperatures []TemperatureSensor `json:"temperatures"`
	Error        string              `json:"error,omitempty"`
}

// ProcessInfo summarises one process
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Username      string  `json:"username"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
	Status        string  `json:"status"`
}

// ProcessReading lists the top processes by resource usage
type ProcessReading struct {
	Processes  []ProcessInfo `json:"processes"`
	TotalCount int           `json:"total_count"`
	Error      string        `json:"error,omitempty"`
}

// ProcessDetail is the extended view of a single process
type ProcessDetail struct {
	ProcessInfo
	CreateTime time.Time `json:"create_time"`
	RSS        uint64    `json:"rss"`
	VMS        uint64    `json:"vms"`
	NumThreads int32     `json:"num_threads"`
	Cmdline    []string  `json:"cmdline"`
}
