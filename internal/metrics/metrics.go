// Package metrics exposes processing counters through Prometheus.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the processing collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	pixels        prometheus.Counter   // Pixels analysed
	pixelFailures prometheus.Counter   // Pixels that fell back to NaN
	rows          prometheus.Counter   // Rows analysed
	rowFailures   prometheus.Counter   // Rows that fell back to NaN
	calibrations  prometheus.Counter   // Transfer functions saved
	rowDuration   prometheus.Histogram // Seconds per row
	lastRun       prometheus.Gauge     // Unix time of the last completed run
}

// New creates a Metrics with its own registry, including Go runtime
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		pixels: f.NewCounter(prometheus.CounterOpts{
			Name: "trefm_pixels_total",
			Help: "Pixels analysed",
		}),
		pixelFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trefm_pixel_failures_total",
			Help: "Pixels whose analysis failed and were set to NaN",
		}),
		rows: f.NewCounter(prometheus.CounterOpts{
			Name: "trefm_rows_total",
			Help: "Scan rows analysed",
		}),
		rowFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trefm_row_failures_total",
			Help: "Scan rows that failed as a whole",
		}),
		calibrations: f.NewCounter(prometheus.CounterOpts{
			Name: "trefm_calibrations_total",
			Help: "Transfer functions saved",
		}),
		rowDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trefm_row_duration_seconds",
			Help:    "Time to analyse one scan row",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "trefm_last_run_timestamp_seconds",
			Help: "Unix time of the last completed processing run",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// RowDone records a row of pixels, failed of which fell back to NaN.
func (m *Metrics) RowDone(pixels, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.rows.Inc()
	m.pixels.Add(float64(pixels))
	m.pixelFailures.Add(float64(failed))
	m.rowDuration.Observe(d.Seconds())
}

// RowFailed records a row that could not be analysed.
func (m *Metrics) RowFailed() {
	if m == nil {
		return
	}
	m.rowFailures.Inc()
}

// RunComplete stamps the end of a processing run.
func (m *Metrics) RunComplete(t time.Time) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(t.Unix()))
}

// CalibrationSaved records a stored transfer function.
func (m *Metrics) CalibrationSaved() {
	if m == nil {
		return
	}
	m.calibrations.Inc()
}

// Push sends every collector to a Prometheus Pushgateway.
func (m *Metrics) Push(url, job string, grouping map[string]string) error {
	if m == nil {
		return fmt.Errorf("metrics not initialized")
	}
	pusher := push.New(url, job).Gatherer(m.reg)
	for k, v := range grouping {
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("failed to push to gateway: %w", err)
	}
	return nil
}
