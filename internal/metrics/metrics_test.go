package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordReadAccumulatesBytesAndErrors(t *testing.T) {
	m := New()
	m.RecordRead(1024, 5_000, true)
	m.RecordRead(0, 5_000, false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.ReadOps)
	assert.Equal(t, uint64(1024), snap.ReadBytes)
	assert.Equal(t, uint64(1), snap.ReadErrors)
}

func TestRecordBatchClosedAccumulates(t *testing.T) {
	m := New()
	m.RecordBatchClosed(8)
	m.RecordBatchClosed(3)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.BatchesClosed)
	assert.Equal(t, uint64(11), snap.PacketsBatched)
}

func TestRecordOccupancyTracksMax(t *testing.T) {
	m := New()
	m.RecordOccupancy(0)
	m.RecordOccupancy(2)
	m.RecordOccupancy(1)

	snap := m.Snapshot()
	assert.Equal(t, uint32(2), snap.MaxOccupancy)
	assert.InDelta(t, 1.0, snap.AvgOccupancy, 0.001)
}

func TestSnapshotDerivesRatesFromUptime(t *testing.T) {
	m := New()
	m.StartTime.Store(time.Now().Add(-1 * time.Second).UnixNano())
	m.RecordRead(1000, 1000, true)

	snap := m.Snapshot()
	assert.Greater(t, snap.ReadBandwidth, 0.0)
	assert.Greater(t, snap.UptimeNs, uint64(0))
}

func TestErrorRateComputation(t *testing.T) {
	m := New()
	m.RecordRead(100, 1000, true)
	m.RecordRead(0, 1000, false)
	m.RecordSaveWrite(100, 1000, true)
	m.RecordCommit(100, true)

	snap := m.Snapshot()
	assert.Greater(t, snap.ErrorRate, 0.0)
}

func TestLatencyPercentilesMonotonic(t *testing.T) {
	m := New()
	for _, ns := range []uint64{500, 5_000, 50_000, 500_000, 5_000_000} {
		m.RecordRead(10, ns, true)
	}
	snap := m.Snapshot()
	assert.LessOrEqual(t, snap.LatencyP50Ns, snap.LatencyP99Ns)
	assert.LessOrEqual(t, snap.LatencyP99Ns, snap.LatencyP999Ns)
}

func TestResetZeroesCounters(t *testing.T) {
	m := New()
	m.RecordRead(1000, 1000, true)
	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, uint64(0), snap.ReadOps)
	assert.Equal(t, uint64(0), snap.ReadBytes)
}

func TestObserverDelegatesToMetrics(t *testing.T) {
	m := New()
	obs := NewObserver(m)
	obs.ObserveRead(256, 1000, true)
	obs.ObserveCommit(256, true)
	obs.ObserveBatchClosed(4)
	obs.ObserveOccupancy(1)
	obs.ObserveSaveWrite(256, 2000, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.ReadOps)
	assert.Equal(t, uint64(1), snap.CommitOps)
	assert.Equal(t, uint64(1), snap.BatchesClosed)
	assert.Equal(t, uint64(1), snap.SaveOps)
}
