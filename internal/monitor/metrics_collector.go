package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/t77yq/overwatch/internal/metrics"
	"github.com/t77yq/overwatch/internal/model"
)

// SnapshotProvider returns point-in-time readings for the requested kinds.
// It never fails as a whole: a kind that cannot be read is returned with
// zero values and its Error field set.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, kinds ...model.Kind) *model.Snapshot
}

// CollectorConfig tunes the system collector
type CollectorConfig struct {
	// CPUSampleInterval is the window cpu.Percent measures over
	CPUSampleInterval time.Duration
	// Timeout bounds the collection of a single kind
	Timeout       time.Duration
	ProcessLimit  int
	ProcessSortBy string
}

// DefaultCollectorConfig returns the collector defaults
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		CPUSampleInterval: 100 * time.Millisecond,
		Timeout:           2 * time.Second,
		ProcessLimit:      10,
		ProcessSortBy:     "cpu",
	}
}

// SystemCollector samples the local host with gopsutil
type SystemCollector struct {
	logger *zap.Logger
	config CollectorConfig
}

// NewSystemCollector creates a new system collector
func NewSystemCollector(config CollectorConfig, logger *zap.Logger) *SystemCollector {
	if config.Timeout <= 0 {
		config.Timeout = DefaultCollectorConfig().Timeout
	}
	if config.ProcessLimit <= 0 {
		config.ProcessLimit = DefaultCollectorConfig().ProcessLimit
	}
	return &SystemCollector{
		logger: logger.Named("metrics-collector"),
		config: config,
	}
}

// Snapshot samples every requested kind, or all kinds when none are given
func (c *SystemCollector) Snapshot(ctx context.Context, kinds ...model.Kind) *model.Snapshot {
	if len(kinds) == 0 {
		kinds = model.AllKinds()
	}

	snap := &model.Snapshot{Timestamp: time.Now()}
	for _, kind := range kinds {
		kctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		switch kind {
		case model.KindCPU:
			snap.CPU = c.collectCPU(kctx)
			c.observe(kind, snap.CPU.Error)
		case model.KindMemory:
			snap.Memory = c.collectMemory(kctx)
			c.observe(kind, snap.Memory.Error)
		case model.KindDisk:
			snap.Disk = c.collectDisk(kctx)
			c.observe(kind, snap.Disk.Error)
		case model.KindNetwork:
			snap.Network = c.collectNetwork(kctx)
			c.observe(kind, snap.Network.Error)
		case model.KindSensors:
			snap.Sensors = c.collectSensors(kctx)
			c.observe(kind, snap.Sensors.Error)
		case model.KindProcesses:
			snap.Processes = c.collectProcesses(kctx)
			c.observe(kind, snap.Processes.Error)
		}
		cancel()
	}

	return snap
}

func (c *SystemCollector) observe(kind model.Kind, errMsg string) {
	if errMsg == "" {
		return
	}
	metrics.CollectionErrorsTotal.WithLabelValues(string(kind)).Inc()
	c.logger.Debug("Collection error",
		zap.String("kind", string(kind)),
		zap.String("error", errMsg))
}

func (c *SystemCollector) collectCPU(ctx context.Context) *model.CPUReading {
	reading := &model.CPUReading{PerCore: []float64{}}

	total, err := cpu.PercentWithContext(ctx, c.config.CPUSampleInterval, false)
	if err != nil || len(total) == 0 {
		reading.Error = errString("failed to get CPU usage", err)
		return reading
	}
	reading.Total = round2(total[0])

	if perCore, err := cpu.PercentWithContext(ctx, 0, true); err == nil {
		for _, v := range perCore {
			reading.PerCore = append(reading.PerCore, round2(v))
		}
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		reading.CountLogical = n
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		reading.CountPhysical = n
	}
	// Frequency is not available on every platform
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		reading.Frequency = model.CPUFrequency{
			Current: round2(infos[0].Mhz),
			Max:     round2(infos[0].Mhz),
		}
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		reading.LoadAverage = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	}

	return reading
}

func (c *SystemCollector) collectMemory(ctx context.Context) *model.MemoryReading {
	reading := &model.MemoryReading{}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		reading.Error = errString("failed to get memory usage", err)
		return reading
	}
	reading.RAM = model.MemoryStats{
		Total:     vm.Total,
		Available: vm.Available,
		Used:      vm.Used,
		Free:      vm.Free,
		Percent:   round2(vm.UsedPercent),
	}

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		reading.Error = errString("failed to get swap usage", err)
		return reading
	}
	reading.Swap = model.MemoryStats{
		Total:   swap.Total,
		Used:    swap.Used,
		Free:    swap.Free,
		Percent: round2(swap.UsedPercent),
	}

	return reading
}

func (c *SystemCollector) collectDisk(ctx context.Context) *model.DiskReading {
	reading := &model.DiskReading{Partitions: []model.PartitionUsage{}}

	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		reading.Error = errString("failed to list partitions", err)
		return reading
	}

	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			// Skip partitions we can't access
			continue
		}
		reading.Partitions = append(reading.Partitions, model.PartitionUsage{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			FSType:     p.Fstype,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
			Percent:    round2(usage.UsedPercent),
		})
	}

	if counters, err := disk.IOCountersWithContext(ctx); err == nil {
		for _, io := range counters {
			reading.IO.ReadCount += io.ReadCount
			reading.IO.WriteCount += io.WriteCount
			reading.IO.ReadBytes += io.ReadBytes
			reading.IO.WriteBytes += io.WriteBytes
			reading.IO.ReadTime += io.ReadTime
			reading.IO.WriteTime += io.WriteTime
		}
	}

	return reading
}

func (c *SystemCollector) collectNetwork(ctx context.Context) *model.NetworkReading {
	reading := &model.NetworkReading{Interfaces: map[string]model.InterfaceCounters{}}

	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		reading.Error = errString("failed to get network counters", err)
		return reading
	}

	for _, io := range counters {
		ic := model.InterfaceCounters{
			BytesSent:   io.BytesSent,
			BytesRecv:   io.BytesRecv,
			PacketsSent: io.PacketsSent,
			PacketsRecv: io.PacketsRecv,
			Errin:       io.Errin,
			Errout:      io.Errout,
			Dropin:      io.Dropin,
			Dropout:     io.Dropout,
		}
		reading.Interfaces[io.Name] = ic
		reading.Total.BytesSent += ic.BytesSent
		reading.Total.BytesRecv += ic.BytesRecv
		reading.Total.PacketsSent += ic.PacketsSent
		reading.Total.PacketsRecv += ic.PacketsRecv
		reading.Total.Errin += ic.Errin
		reading.Total.Errout += ic.Errout
		reading.Total.Dropin += ic.Dropin
		reading.Total.Dropout += ic.Dropout
	}

	// Connection listing needs privileges on some systems
	if conns, err := net.ConnectionsWithContext(ctx, "all"); err == nil {
		reading.Connections.Total = len(conns)
		for _, conn := range conns {
			switch conn.Status {
			case "ESTABLISHED":
				reading.Connections.Established++
			case "LISTEN":
				reading.Connections.Listen++
			}
		}
	}

	return reading
}

func (c *SystemCollector) collectSensors(ctx context.Context) *model.SensorReading {
	reading := &model.SensorReading{Temperatures: []model.TemperatureSensor{}}

	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil && len(temps) == 0 {
		reading.Error = errString("failed to read temperature sensors", err)
		return reading
	}

	for _, t := range temps {
		reading.Temperatures = append(reading.Temperatures, model.TemperatureSensor{
			Label:    t.SensorKey,
			Current:  round1(t.Temperature),
			High:     round1(t.High),
			Critical: round1(t.Critical),
		})
	}

	return reading
}

func (c *SystemCollector) collectProcesses(ctx context.Context) *model.ProcessReading {
	reading := &model.ProcessReading{Processes: []model.ProcessInfo{}}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		reading.Error = errString("failed to list processes", err)
		return reading
	}

	infos := make([]model.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			break
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Process exited or access denied
			continue
		}
		info := model.ProcessInfo{PID: p.Pid, Name: name}
		info.Username, _ = p.UsernameWithContext(ctx)
		if v, err := p.CPUPercentWithContext(ctx); err == nil {
			info.CPUPercent = round2(v)
		}
		if v, err := p.MemoryPercentWithContext(ctx); err == nil {
			info.MemoryPercent = v
		}
		if status, err := p.StatusWithContext(ctx); err == nil {
			info.Status = strings.Join(status, ",")
		}
		infos = append(infos, info)
	}

	SortProcesses(infos, c.config.ProcessSortBy)
	reading.TotalCount = len(infos)
	if len(infos) > c.config.ProcessLimit {
		infos = infos[:c.config.ProcessLimit]
	}
	reading.Processes = infos

	return reading
}

// SortProcesses orders processes by "cpu", "memory" or "name"
func SortProcesses(procs []model.ProcessInfo, by string) {
	switch by {
	case "memory":
		sort.SliceStable(procs, func(i, j int) bool { return procs[i].MemoryPercent > procs[j].MemoryPercent })
	case "name":
		sort.SliceStable(procs, func(i, j int) bool { return procs[i].Name < procs[j].Name })
	default:
		sort.SliceStable(procs, func(i, j int) bool { return procs[i].CPUPercent > procs[j].CPUPercent })
	}
}

func errString(msg string, err error) string {
	if err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, err)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ErrProcessNotFound is returned by Process for an unknown pid
var ErrProcessNotFound = errors.New("process not found")

// Process returns details for a single pid
func (c *SystemCollector) Process(ctx context.Context, pid int32) (*model.ProcessDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, fmt.Errorf("%w: %d", ErrProcessNotFound, pid)
		}
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read process %d: %w", pid, err)
	}

	detail := &model.ProcessDetail{ProcessInfo: model.ProcessInfo{PID: pid, Name: name}}
	detail.Username, _ = p.UsernameWithContext(ctx)
	if status, err := p.StatusWithContext(ctx); err == nil {
		detail.Status = strings.Join(status, ",")
	}
	if v, err := p.PercentWithContext(ctx, c.config.CPUSampleInterval); err == nil {
		detail.CPUPercent = round2(v)
	}
	if v, err := p.MemoryPercentWithContext(ctx); err == nil {
		detail.MemoryPercent = v
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		detail.CreateTime = time.UnixMilli(ms)
	}
	if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
		detail.RSS = mi.RSS
		detail.VMS = mi.VMS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		detail.NumThreads = n
	}
	detail.Cmdline, _ = p.CmdlineSliceWithContext(ctx)

	return detail, nil
}
