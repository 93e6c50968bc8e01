// Package promexport exposes internal/metrics.Metrics as a
// Prometheus collector: SPEC_FULL.md's supplemental observability
// surface for the DeviceCoordinator (C11), registered only when the
// caller supplies a registry. No pack repo exercises
// github.com/prometheus/client_golang in source even though it
// appears in ghjramos-aistore's go.mod as a direct dependency; this
// package is the concrete wiring that dependency was missing.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fx3dev/fx3stream/internal/metrics"
)

// Collector adapts a *metrics.Metrics snapshot to prometheus.Collector.
type Collector struct {
	m *metrics.Metrics

	readBytes     *prometheus.Desc
	saveBytes     *prometheus.Desc
	readOps       *prometheus.Desc
	saveOps       *prometheus.Desc
	readErrors    *prometheus.Desc
	saveErrors    *prometheus.Desc
	occupancyAvg  *prometheus.Desc
	occupancyMax  *prometheus.Desc
	batchesClosed *prometheus.Desc
	latencyP50    *prometheus.Desc
	latencyP99    *prometheus.Desc
	latencyP999   *prometheus.Desc
	errorRate     *prometheus.Desc
}

// NewCollector constructs a Collector reading from m.
func NewCollector(m *metrics.Metrics) *Collector {
	return &Collector{
		m:             m,
		readBytes:     prometheus.NewDesc("fx3_read_bytes_total", "Cumulative bytes read from the USB endpoint.", nil, nil),
		saveBytes:     prometheus.NewDesc("fx3_save_bytes_total", "Cumulative bytes written to disk.", nil, nil),
		readOps:       prometheus.NewDesc("fx3_read_ops_total", "Cumulative bulk read operations.", nil, nil),
		saveOps:       prometheus.NewDesc("fx3_save_ops_total", "Cumulative file-save write operations.", nil, nil),
		readErrors:    prometheus.NewDesc("fx3_read_errors_total", "Cumulative failed bulk reads.", nil, nil),
		saveErrors:    prometheus.NewDesc("fx3_save_errors_total", "Cumulative failed file-save writes.", nil, nil),
		occupancyAvg:  prometheus.NewDesc("fx3_ring_occupancy_avg", "Average ring buffer occupancy level sample.", nil, nil),
		occupancyMax:  prometheus.NewDesc("fx3_ring_occupancy_max", "Maximum observed ring buffer occupancy level.", nil, nil),
		batchesClosed: prometheus.NewDesc("fx3_batches_closed_total", "Cumulative ring buffer batches closed.", nil, nil),
		latencyP50:    prometheus.NewDesc("fx3_latency_p50_seconds", "Estimated 50th percentile operation latency.", nil, nil),
		latencyP99:    prometheus.NewDesc("fx3_latency_p99_seconds", "Estimated 99th percentile operation latency.", nil, nil),
		latencyP999:   prometheus.NewDesc("fx3_latency_p999_seconds", "Estimated 99.9th percentile operation latency.", nil, nil),
		errorRate:     prometheus.NewDesc("fx3_error_rate_percent", "Percentage of operations that failed.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.readBytes
	ch <- c.saveBytes
	ch <- c.readOps
	ch <- c.saveOps
	ch <- c.readErrors
	ch <- c.saveErrors
	ch <- c.occupancyAvg
	ch <- c.occupancyMax
	ch <- c.batchesClosed
	ch <- c.latencyP50
	ch <- c.latencyP99
	ch <- c.latencyP999
	ch <- c.errorRate
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.readBytes, prometheus.CounterValue, float64(snap.ReadBytes))
	ch <- prometheus.MustNewConstMetric(c.saveBytes, prometheus.CounterValue, float64(snap.SaveBytes))
	ch <- prometheus.MustNewConstMetric(c.readOps, prometheus.CounterValue, float64(snap.ReadOps))
	ch <- prometheus.MustNewConstMetric(c.saveOps, prometheus.CounterValue, float64(snap.SaveOps))
	ch <- prometheus.MustNewConstMetric(c.readErrors, prometheus.CounterValue, float64(snap.ReadErrors))
	ch <- prometheus.MustNewConstMetric(c.saveErrors, prometheus.CounterValue, float64(snap.SaveErrors))
	ch <- prometheus.MustNewConstMetric(c.occupancyAvg, prometheus.GaugeValue, snap.AvgOccupancy)
	ch <- prometheus.MustNewConstMetric(c.occupancyMax, prometheus.GaugeValue, float64(snap.MaxOccupancy))
	ch <- prometheus.MustNewConstMetric(c.batchesClosed, prometheus.CounterValue, float64(snap.BatchesClosed))
	ch <- prometheus.MustNewConstMetric(c.latencyP50, prometheus.GaugeValue, float64(snap.LatencyP50Ns)/1e9)
	ch <- prometheus.MustNewConstMetric(c.latencyP99, prometheus.GaugeValue, float64(snap.LatencyP99Ns)/1e9)
	ch <- prometheus.MustNewConstMetric(c.latencyP999, prometheus.GaugeValue, float64(snap.LatencyP999Ns)/1e9)
	ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, snap.ErrorRate)
}

var _ prometheus.Collector = (*Collector)(nil)
