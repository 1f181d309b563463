package telemetry

import "codeberg.org/mutker/vibesd/internal/errors"

const (
	ErrCPURead    = errors.ErrorCode("telemetry_cpu_read_failed")
	ErrMemoryRead = errors.ErrorCode("telemetry_memory_read_failed")
	ErrUptimeRead = errors.ErrorCode("telemetry_uptime_read_failed")
)
