// Package metrics tracks performance and operational statistics for
// the acquisition pipeline: read throughput off the USB endpoint,
// ring buffer commit/occupancy behavior, and file-save throughput.
//
// Adapted from the teacher's root metrics.go, which tracks
// read/write/discard/flush counters plus a cumulative latency
// histogram for a block device. Here the four ublk operations become
// three acquisition-pipeline operations (read, commit, save write)
// and queue depth becomes ring occupancy level; the atomic-counter and
// bucketed-histogram approach carries over unchanged.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/fx3dev/fx3stream/internal/interfaces"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for one
// device session.
type Metrics struct {
	ReadOps  atomic.Uint64
	CommitOps atomic.Uint64
	SaveOps  atomic.Uint64

	ReadBytes   atomic.Uint64
	CommitBytes atomic.Uint64
	SaveBytes   atomic.Uint64

	ReadErrors   atomic.Uint64
	CommitErrors atomic.Uint64
	SaveErrors   atomic.Uint64

	OccupancyTotal atomic.Uint64 // cumulative occupancy-level samples
	OccupancyCount atomic.Uint64
	MaxOccupancy   atomic.Uint32
	BatchesClosed  atomic.Uint64
	PacketsBatched atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// New creates a new metrics instance with StartTime set to now.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a USB bulk read.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordCommit records a ring buffer commit.
func (m *Metrics) RecordCommit(bytes uint64, success bool) {
	m.CommitOps.Add(1)
	if success {
		m.CommitBytes.Add(bytes)
	} else {
		m.CommitErrors.Add(1)
	}
}

// RecordBatchClosed records a batch closing with packetCount packets.
func (m *Metrics) RecordBatchClosed(packetCount int) {
	m.BatchesClosed.Add(1)
	m.PacketsBatched.Add(uint64(packetCount))
}

// RecordSaveWrite records a file-save write.
func (m *Metrics) RecordSaveWrite(bytes uint64, latencyNs uint64, success bool) {
	m.SaveOps.Add(1)
	if success {
		m.SaveBytes.Add(bytes)
	} else {
		m.SaveErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordOccupancy records a ring occupancy level sample (0=normal,
// 1=warning, 2=critical).
func (m *Metrics) RecordOccupancy(level int) {
	m.OccupancyTotal.Add(uint64(level))
	m.OccupancyCount.Add(1)
	for {
		current := m.MaxOccupancy.Load()
		if uint32(level) <= current {
			break
		}
		if m.MaxOccupancy.CompareAndSwap(current, uint32(level)) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the session as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time copy of Metrics, with derived rates.
type Snapshot struct {
	ReadOps, CommitOps, SaveOps                  uint64
	ReadBytes, CommitBytes, SaveBytes             uint64
	ReadErrors, CommitErrors, SaveErrors          uint64
	AvgOccupancy                                  float64
	MaxOccupancy                                  uint32
	BatchesClosed, PacketsBatched                 uint64
	AvgLatencyNs, UptimeNs                        uint64
	LatencyP50Ns, LatencyP99Ns, LatencyP999Ns     uint64
	LatencyHistogram                              [numLatencyBuckets]uint64
	ReadIOPS, SaveIOPS                             float64
	ReadBandwidth, SaveBandwidth                   float64
	TotalOps, TotalBytes                           uint64
	ErrorRate                                      float64
}

// Snapshot takes a consistent point-in-time copy of the counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		ReadOps:       m.ReadOps.Load(),
		CommitOps:     m.CommitOps.Load(),
		SaveOps:       m.SaveOps.Load(),
		ReadBytes:     m.ReadBytes.Load(),
		CommitBytes:   m.CommitBytes.Load(),
		SaveBytes:     m.SaveBytes.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		CommitErrors:  m.CommitErrors.Load(),
		SaveErrors:    m.SaveErrors.Load(),
		MaxOccupancy:  m.MaxOccupancy.Load(),
		BatchesClosed: m.BatchesClosed.Load(),
		PacketsBatched: m.PacketsBatched.Load(),
	}

	snap.TotalOps = snap.ReadOps + snap.CommitOps + snap.SaveOps
	snap.TotalBytes = snap.ReadBytes + snap.SaveBytes

	occTotal := m.OccupancyTotal.Load()
	occCount := m.OccupancyCount.Load()
	if occCount > 0 {
		snap.AvgOccupancy = float64(occTotal) / float64(occCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ReadIOPS = float64(snap.ReadOps) / uptimeSeconds
		snap.SaveIOPS = float64(snap.SaveOps) / uptimeSeconds
		snap.ReadBandwidth = float64(snap.ReadBytes) / uptimeSeconds
		snap.SaveBandwidth = float64(snap.SaveBytes) / uptimeSeconds
	}

	totalErrors := snap.ReadErrors + snap.CommitErrors + snap.SaveErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters and restarts StartTime.
func (m *Metrics) Reset() {
	m.ReadOps.Store(0)
	m.CommitOps.Store(0)
	m.SaveOps.Store(0)
	m.ReadBytes.Store(0)
	m.CommitBytes.Store(0)
	m.SaveBytes.Store(0)
	m.ReadErrors.Store(0)
	m.CommitErrors.Store(0)
	m.SaveErrors.Store(0)
	m.OccupancyTotal.Store(0)
	m.OccupancyCount.Store(0)
	m.MaxOccupancy.Store(0)
	m.BatchesClosed.Store(0)
	m.PacketsBatched.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer implements interfaces.Observer by recording into Metrics.
type Observer struct {
	metrics *Metrics
}

// NewObserver creates an observer that records into m.
func NewObserver(m *Metrics) *Observer {
	return &Observer{metrics: m}
}

func (o *Observer) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *Observer) ObserveCommit(bytes uint64, success bool) {
	o.metrics.RecordCommit(bytes, success)
}

func (o *Observer) ObserveBatchClosed(packetCount int) {
	o.metrics.RecordBatchClosed(packetCount)
}

func (o *Observer) ObserveOccupancy(level int) {
	o.metrics.RecordOccupancy(level)
}

func (o *Observer) ObserveSaveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordSaveWrite(bytes, latencyNs, success)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)      {}
func (NoOpObserver) ObserveCommit(uint64, bool)            {}
func (NoOpObserver) ObserveBatchClosed(int)                {}
func (NoOpObserver) ObserveOccupancy(int)                  {}
func (NoOpObserver) ObserveSaveWrite(uint64, uint64, bool) {}

var (
	_ interfaces.Observer = (*Observer)(nil)
	_ interfaces.Observer = NoOpObserver{}
)
