package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests     uint64
	errorRequests     uint64
	rateLimited       uint64
	totalDurationMs   uint64
	aggregationRuns   uint64
	aggregationErrors uint64
	entriesUpserted   uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) RecordAggregation(err error) {
	atomic.AddUint64(&c.aggregationRuns, 1)
	if err != nil {
		atomic.AddUint64(&c.aggregationErrors, 1)
	}
}

func (c *Collector) RecordEntryUpsert() {
	atomic.AddUint64(&c.entriesUpserted, 1)
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":          total,
		"errorsTotal":            errs,
		"rateLimitedTotal":       limited,
		"avgDurationMs":          avg,
		"totalDurationMs":        totalMs,
		"aggregationRunsTotal":   atomic.LoadUint64(&c.aggregationRuns),
		"aggregationErrorsTotal": atomic.LoadUint64(&c.aggregationErrors),
		"entriesUpsertedTotal":   atomic.LoadUint64(&c.entriesUpserted),
	}
}
