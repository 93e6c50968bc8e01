// Package ratestats implements RateStats (C6): a mutex-protected
// byte-throughput accumulator used by the FileManager save loop, plus
// an EWMA-smoothed rate for display. The Acquirer does not feed it; it
// keeps its own per-window byte counters.
//
// Grounded on the teacher's metrics.go atomic-counter style, scaled
// down to the single accumulator the spec calls for rather than the
// full histogram — smoothing is a separate, explicit concern (the
// EWMA) rather than folded into the same counters.
package ratestats

import (
	"sync"
	"time"
)

// Stats is the protected accumulator from spec.md §4.6.
type Stats struct {
	mu         sync.Mutex
	totalBytes uint64
	startTime  time.Time
	now        func() time.Time
}

// New creates a Stats with start_time set to now.
func New() *Stats {
	s := &Stats{now: time.Now}
	s.startTime = s.now()
	return s
}

// AddBytes accumulates n bytes transferred.
func (s *Stats) AddBytes(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalBytes += n
}

// Reset zeroes the accumulator and restarts the clock.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalBytes = 0
	s.startTime = s.now()
}

// TotalBytes returns the accumulated byte count.
func (s *Stats) TotalBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes
}

// ElapsedMs returns milliseconds since the last Reset (or New).
func (s *Stats) ElapsedMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.startTime).Milliseconds()
}

// RateMBPerSec computes total_bytes * 1000 / elapsed_ms / (1024*1024),
// returning 0 when elapsed_ms is 0 rather than dividing by zero.
func (s *Stats) RateMBPerSec() float64 {
	s.mu.Lock()
	total := s.totalBytes
	elapsedMs := s.now().Sub(s.startTime).Milliseconds()
	s.mu.Unlock()

	if elapsedMs == 0 {
		return 0
	}
	return float64(total) * 1000 / float64(elapsedMs) / (1024 * 1024)
}

// EWMA is the writer-side smoothed rate tracker with alpha=0.3.
type EWMA struct {
	mu    sync.Mutex
	alpha float64
	value float64
	set   bool
}

// NewEWMA creates an EWMA smoother with the given alpha.
func NewEWMA(alpha float64) *EWMA {
	return &EWMA{alpha: alpha}
}

// Update folds in a new instantaneous rate sample and returns the
// smoothed value.
func (e *EWMA) Update(sample float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		e.value = sample
		e.set = true
	} else {
		e.value = e.alpha*sample + (1-e.alpha)*e.value
	}
	return e.value
}

// Value returns the current smoothed value without updating it.
func (e *EWMA) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}
