package telemetry

import (
	"codeberg.org/mutker/vibesd/internal/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

type hostReader struct {
	primed bool
}

// NewHostReader returns a Reader backed by gopsutil. CPU usage is measured
// since the previous Read, so the first call primes the counters.
func NewHostReader() Reader {
	r := &hostReader{}
	// prime the cpu delta so the first real Read has a baseline
	if _, err := cpu.Percent(0, false); err == nil {
		r.primed = true
	}

	return r
}

func (r *hostReader) Read() (Stats, error) {
	errFactory := errors.New()
	var stats Stats

	// interval 0 compares against the last call and never sleeps
	pct, err := cpu.Percent(0, false)
	if err != nil {
		return stats, errFactory.Wrap(ErrCPURead, err)
	}
	if len(pct) > 0 && r.primed {
		stats.CPUUsage = pct[0]
	}
	r.primed = true

	vm, err := mem.VirtualMemory()
	if err != nil {
		return stats, errFactory.Wrap(ErrMemoryRead, err)
	}
	stats.MemoryUsed = vm.Used
	stats.MemoryTotal = vm.Total

	if stats.Uptime, err = host.Uptime(); err != nil {
		return stats, errFactory.Wrap(ErrUptimeRead, err)
	}

	return stats, nil
}
