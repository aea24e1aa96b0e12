// Package metrics records operational metrics for loads, aggregation
// and HTTP requests.
package metrics

import "time"

// Recorder exports metrics to a monitoring backend.
type Recorder interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric to the specified value.
	Gauge(name string, value float64, tags map[string]string)

	// Histogram records a value in a histogram.
	Histogram(name string, value float64, tags map[string]string)

	// Timer records a duration in seconds.
	Timer(name string, duration time.Duration, tags map[string]string)
}

// Metric names.
const (
	MetricLoadsTotal    = "pmdash.loads.total"
	MetricRowsTotal     = "pmdash.rows.total"
	MetricWarningsTotal = "pmdash.warnings.total"
	MetricPhaseDuration = "pmdash.phase.duration"
	MetricCasesLoaded   = "pmdash.cases.loaded"
	MetricRequestsTotal = "pmdash.http.requests.total"
	MetricRenderTotal   = "pmdash.render.total"
)

// Tag names.
const (
	TagStatus   = "status"
	TagPhase    = "phase"
	TagFormat   = "format"
	TagEngine   = "engine"
	TagCode     = "code"
	TagRoute    = "route"
	TagRenderer = "renderer"
)

// Noop discards all metrics.
type Noop struct{}

// NewNoop returns a Recorder that does nothing.
func NewNoop() *Noop {
	return &Noop{}
}

// Counter does nothing.
func (*Noop) Counter(string, int64, map[string]string) {}

// Gauge does nothing.
func (*Noop) Gauge(string, float64, map[string]string) {}

// Histogram does nothing.
func (*Noop) Histogram(string, float64, map[string]string) {}

// Timer does nothing.
func (*Noop) Timer(string, time.Duration, map[string]string) {}

var _ Recorder = (*Noop)(nil)
