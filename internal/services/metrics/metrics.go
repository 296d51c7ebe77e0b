// Package metrics tracks the matching engine's performance counters and
// stage-duration histograms. Counters use atomic increments; histogram
// appends are lock-protected.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhil-payingalil/resumatch/internal/models"
)

// Collector accumulates performance metrics for one engine run. Safe for
// concurrent use by workers.
type Collector struct {
	jobsProcessed  atomic.Int64
	matched        atomic.Int64
	unmatched      atomic.Int64
	noResumesFound atomic.Int64
	errors         atomic.Int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	mu                  sync.Mutex
	vectorSearchDursMs  []float64
	llmValidationDursMs []float64
}

// NewCollector creates an empty metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordOutcome counts one completed job under its terminal outcome.
func (c *Collector) RecordOutcome(outcome models.JobOutcome) {
	c.jobsProcessed.Add(1)
	switch outcome {
	case models.OutcomeMatched:
		c.matched.Add(1)
	case models.OutcomeNoValidMatch:
		c.unmatched.Add(1)
	case models.OutcomeNoResumesFound:
		c.noResumesFound.Add(1)
	case models.OutcomeError:
		c.errors.Add(1)
	}
}

// RecordCacheHit counts a resume-cache hit.
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Add(1)
}

// RecordCacheMiss counts a resume-cache miss.
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Add(1)
}

// RecordVectorSearchDuration appends one recall wall-clock duration.
func (c *Collector) RecordVectorSearchDuration(d time.Duration) {
	c.mu.Lock()
	c.vectorSearchDursMs = append(c.vectorSearchDursMs, float64(d.Milliseconds()))
	c.mu.Unlock()
}

// RecordValidationDuration appends one LLM validation wall-clock duration.
func (c *Collector) RecordValidationDuration(d time.Duration) {
	c.mu.Lock()
	c.llmValidationDursMs = append(c.llmValidationDursMs, float64(d.Milliseconds()))
	c.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all counters and histogram
// aggregates.
func (c *Collector) Snapshot() models.MetricsSnapshot {
	c.mu.Lock()
	vsCount := len(c.vectorSearchDursMs)
	vsAvg := average(c.vectorSearchDursMs)
	valCount := len(c.llmValidationDursMs)
	valAvg := average(c.llmValidationDursMs)
	c.mu.Unlock()

	return models.MetricsSnapshot{
		JobsProcessed:  c.jobsProcessed.Load(),
		Matched:        c.matched.Load(),
		Unmatched:      c.unmatched.Load(),
		NoResumesFound: c.noResumesFound.Load(),
		Errors:         c.errors.Load(),

		CacheHits:   c.cacheHits.Load(),
		CacheMisses: c.cacheMisses.Load(),

		VectorSearchCount: int64(vsCount),
		AvgVectorSearchMs: vsAvg,
		ValidationCount:   int64(valCount),
		AvgValidationMs:   valAvg,
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
