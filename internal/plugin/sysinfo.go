package plugin

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// SysInfo returns the built-in host information plugin
func SysInfo() Plugin {
	return Plugin{
		Metadata: Metadata{
			Name:        "sysinfo",
			Version:     "1.0.0",
			Description: "Host, platform and uptime information",
			Author:      "overwatch",
		},
		Run: func(ctx context.Context) Result {
			info, err := host.InfoWithContext(ctx)
			if err != nil {
				return Result{Name: "sysinfo", Status: StatusError, Error: err.Error()}
			}

			return Result{
				Name:   "sysinfo",
				Status: StatusOK,
				Data: map[string]any{
					"hostname":         info.Hostname,
					"os":               info.OS,
					"platform":         info.Platform,
					"platform_version": info.PlatformVersion,
					"kernel_version":   info.KernelVersion,
					"kernel_arch":      info.KernelArch,
					"uptime":           (time.Duration(info.Uptime) * time.Second).String(),
					"boot_time":        time.Unix(int64(info.BootTime), 0).UTC().Format(time.RFC3339),
					"procs":            info.Procs,
				},
			}
		},
	}
}

// RegisterBuiltins registers the compiled-in plugins
func RegisterBuiltins(r *Registry) error {
	return r.Register("sysinfo", SysInfo())
}
