package metrics

import (
	"context"
	"time"
)

// Recorder persists periodic metric samples.
type Recorder interface {
	Record(ctx context.Context, sample *Sample) error
	Close() error
	Enabled() bool
}

// Repository defines the interface for metrics data storage
type Repository interface {
	Record(sample *Sample) error
	Close() error
}

// PipelineMetrics is the read-only view served by the metrics endpoint.
type PipelineMetrics struct {
	TotalRequests uint64  `json:"total_requests"`
	CacheHits     uint64  `json:"cache_hits"`
	ErrorCount    uint64  `json:"error_count"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	LastLatencyMs uint64  `json:"last_latency_ms"`
}

// Sample is one persisted row: the director counters plus the
// classification and AI context in effect at that moment.
type Sample struct {
	Timestamp time.Time
	Pipeline  PipelineMetrics
	Vibe      VibeMetrics
}

type VibeMetrics struct {
	Mood      string
	Genre     string
	Trend     string
	BPM       float64
	Theme     string
	Directive string
}
