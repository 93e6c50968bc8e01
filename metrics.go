package fx3stream

import (
	"github.com/fx3dev/fx3stream/internal/interfaces"
	"github.com/fx3dev/fx3stream/internal/metrics"
)

// Metrics tracks performance and operational statistics for one
// Coordinator session. See internal/metrics for the implementation.
type Metrics = metrics.Metrics

// MetricsSnapshot is a point-in-time copy of Metrics, with derived rates.
type MetricsSnapshot = metrics.Snapshot

// Observer is the metrics-collection capability threaded through the
// acquisition and save loops.
type Observer = interfaces.Observer

// NoOpObserver discards every observation.
type NoOpObserver = metrics.NoOpObserver

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return metrics.New()
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) Observer {
	return metrics.NewObserver(m)
}
