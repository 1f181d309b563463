package metrics

import (
	"sync/atomic"
	"time"
)

// Collector aggregates AI director counters. All methods are safe for
// concurrent use and never block.
type Collector struct {
	totalRequests atomic.Uint64
	cacheHits     atomic.Uint64
	errors        atomic.Uint64
	latencySumNs  atomic.Uint64
	lastLatencyMs atomic.Uint64
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) RecordRequest() {
	c.totalRequests.Add(1)
}

func (c *Collector) RecordCacheHit() {
	c.cacheHits.Add(1)
}

func (c *Collector) RecordError() {
	c.errors.Add(1)
}

// RecordLatency adds d to the cumulative latency at nanosecond resolution.
// The last observed latency is kept in whole milliseconds.
func (c *Collector) RecordLatency(d time.Duration) {
	d = max(d, 0)
	c.latencySumNs.Add(uint64(d.Nanoseconds()))
	c.lastLatencyMs.Store(uint64(d.Milliseconds()))
}

// Snapshot reads each counter independently; under concurrent writes the
// fields may be mutually skewed by in-flight calls.
func (c *Collector) Snapshot() PipelineMetrics {
	total := c.totalRequests.Load()
	sum := c.latencySumNs.Load()

	var avg float64
	if total > 0 {
		avg = float64(sum) / (float64(time.Millisecond) * float64(total))
	}

	return PipelineMetrics{
		TotalRequests: total,
		CacheHits:     c.cacheHits.Load(),
		ErrorCount:    c.errors.Load(),
		AvgLatencyMs:  avg,
		LastLatencyMs: c.lastLatencyMs.Load(),
	}
}
