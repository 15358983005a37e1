package system

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time view of process and host resource usage.
type Snapshot struct {
	RSSBytes       uint64
	CPUPercent     float64
	HostMemPercent float64
	HostMemTotal   uint64
	LogicalCPUs    int
}

// TakeSnapshot samples the current process and the host.
func TakeSnapshot() (Snapshot, error) {
	var s Snapshot

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return s, fmt.Errorf("process handle: %w", err)
	}

	mi, err := p.MemoryInfo()
	if err != nil {
		return s, fmt.Errorf("process memory: %w", err)
	}
	s.RSSBytes = mi.RSS

	if pct, err := p.CPUPercent(); err == nil {
		s.CPUPercent = pct
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return s, fmt.Errorf("host memory: %w", err)
	}
	s.HostMemPercent = vm.UsedPercent
	s.HostMemTotal = vm.Total

	if n, err := cpu.Counts(true); err == nil {
		s.LogicalCPUs = n
	}

	return s, nil
}

// RSSMiB returns the resident set size in MiB.
func (s Snapshot) RSSMiB() float64 {
	return float64(s.RSSBytes) / (1 << 20)
}
