package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_sync"

// Metrics holds the Prometheus counters, histograms, and gauges for the sync cycle.
type Metrics struct {
	Requests        *prometheus.CounterVec // labels: mode={update,add,fill}, status={SUCCESS,FAIL}
	RequestDuration prometheus.Histogram
	QuotaRemaining  prometheus.Gauge

	RowsWritten prometheus.Counter
	RowsDropped *prometheus.CounterVec // labels: reason={unmatched,outside_window,not_requested,unknown_parameter}

	CoverageItems *prometheus.GaugeVec // labels: mode

	CycleDuration prometheus.Histogram
	CycleRunning  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Weather API requests by workflow mode and outcome status.",
		}, []string{"mode", "status"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Wall time of weather API time-series requests.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		QuotaRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "Requests still available today, as of the last quota check.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Daily rows appended to the store.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "API rows discarded before storage, by reason.",
		}, []string{"reason"}),
		CoverageItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coverage_items",
			Help:      "Coverage requirements (update, add) or gaps (fill) found by the last inventory run.",
		}, []string{"mode"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete daily cycle.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}),
		CycleRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_running",
			Help:      "1 while a daily cycle is executing, 0 otherwise.",
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.QuotaRemaining,
		m.RowsWritten,
		m.RowsDropped,
		m.CoverageItems,
		m.CycleDuration,
		m.CycleRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
