package diag

import (
	"fmt"
	"runtime"

	psutilcpu "github.com/shirou/gopsutil/v3/cpu"
	psutilhost "github.com/shirou/gopsutil/v3/host"
	psutilmem "github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot is a point-in-time read of the host environment, grounded on
// the teacher's updateResourceData (internal/cli/ui/ui.go): CPU percent and
// virtual memory usage via gopsutil, plus the Go runtime version.
type HostSnapshot struct {
	CPUPercent     float64
	MemUsedPercent float64
	Platform       string
	GoVersion      string
}

// Summary renders the snapshot the way the teacher's status bar does:
// "CPU: %.1f%% | RAM: %.1f%% | Go: %s".
func (s HostSnapshot) Summary() string {
	return fmt.Sprintf("CPU: %.1f%% | RAM: %.1f%% | Go: %s", s.CPUPercent, s.MemUsedPercent, s.GoVersion)
}

// TakeHostSnapshot reads current CPU/memory utilization and platform
// identification. Errors from individual gopsutil calls are tolerated
// (left at zero value) rather than failing the whole snapshot, matching
// the teacher's own "cpuPercent, _ := psutil.Percent(...)" style of
// swallowing transient sampling errors in status-bar code.
func TakeHostSnapshot() HostSnapshot {
	snap := HostSnapshot{GoVersion: runtime.Version()}

	if percents, err := psutilcpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := psutilmem.VirtualMemory(); err == nil {
		snap.MemUsedPercent = vm.UsedPercent
	}
	if info, err := psutilhost.Info(); err == nil {
		snap.Platform = fmt.Sprintf("%s/%s", info.Platform, info.KernelArch)
	}
	return snap
}
