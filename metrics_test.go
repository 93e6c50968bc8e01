package fx3stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMetricsObserverForwardsToMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveRead(1024, 1_000_000, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.ReadOps)
	assert.Equal(t, uint64(1024), snap.ReadBytes)
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var obs Observer = NoOpObserver{}
	obs.ObserveRead(1024, 1_000_000, true)
	obs.ObserveCommit(1024, true)
	obs.ObserveBatchClosed(8)
	obs.ObserveOccupancy(1)
	obs.ObserveSaveWrite(1024, 1_000_000, true)
}
