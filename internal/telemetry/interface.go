package telemetry

// Stats is the host telemetry carried in every snapshot.
type Stats struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryTotal uint64  `json:"memory_total"`
	Uptime      uint64  `json:"uptime"`
}

// Reader samples host telemetry. Read must not block for long; it is called
// from the classification loop.
type Reader interface {
	Read() (Stats, error)
}

// Static is a Reader that always returns the same Stats. Useful when host
// telemetry is disabled and in tests.
type Static Stats

func (s Static) Read() (Stats, error) {
	return Stats(s), nil
}
