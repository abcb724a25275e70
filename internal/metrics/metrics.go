// Package metrics exports series lifecycle counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"seriesd/internal/series"
)

const namespace = "seriesd"

// Metrics holds the series collectors. It implements series.Observer.
type Metrics struct {
	registry *prometheus.Registry

	SeriesActive     prometheus.Gauge
	SeriesStarted    prometheus.Counter
	SeriesFinished   *prometheus.CounterVec
	SetupFailures    prometheus.Counter
	ItemsHandled     *prometheus.CounterVec
	HandleDuration   prometheus.Histogram
	SeriesItems      prometheus.Histogram
	Rejected         *prometheus.CounterVec
	Uptime           prometheus.GaugeFunc

	startTime time.Time

	mu       sync.Mutex
	snapshot Snapshot
}

// Snapshot holds running totals for the JSON status API.
type Snapshot struct {
	ActiveSeries   int64 `json:"active_series"`
	StartedSeries  int64 `json:"started_series"`
	FinishedSeries int64 `json:"finished_series"`
	FailedSeries   int64 `json:"failed_series"`
	SetupFailures  int64 `json:"setup_failures"`
	ItemsHandled   int64 `json:"items_handled"`
	ItemFailures   int64 `json:"item_failures"`
	Rejected       int64 `json:"rejected"`
}

// New registers collectors on a private registry. The pipeline name is
// attached as a constant label.
func New(pipeline string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	labels := prometheus.Labels{"pipeline": pipeline}

	m := &Metrics{registry: reg, startTime: time.Now()}
	m.SeriesActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "series_active",
		Help:        "Number of series with a running worker",
		ConstLabels: labels,
	})
	m.SeriesStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "series_started_total",
		Help:        "Total number of series workers started",
		ConstLabels: labels,
	})
	m.SeriesFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "series_finished_total",
		Help:        "Total number of series finalized, by outcome",
		ConstLabels: labels,
	}, []string{"outcome"})
	m.SetupFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "series_setup_failures_total",
		Help:        "Total number of series whose setup failed",
		ConstLabels: labels,
	})
	m.ItemsHandled = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "items_handled_total",
		Help:        "Total number of items handled, by status",
		ConstLabels: labels,
	}, []string{"status"})
	m.HandleDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "item_handle_duration_seconds",
		Help:        "Time spent handling a single item",
		ConstLabels: labels,
		Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})
	m.SeriesItems = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "series_items",
		Help:        "Number of items per finished series",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
	})
	m.Rejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "dispatch_rejected_total",
		Help:        "Total number of items refused before reaching a worker",
		ConstLabels: labels,
	}, []string{"reason"})
	m.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "uptime_seconds",
		Help:        "Seconds since the daemon started",
		ConstLabels: labels,
	}, func() float64 { return time.Since(m.startTime).Seconds() })
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot returns the current totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *Metrics) WorkerStarted(series.WorkerInfo) {
	m.SeriesActive.Inc()
	m.SeriesStarted.Inc()
	m.update(func(s *Snapshot) {
		s.ActiveSeries++
		s.StartedSeries++
	})
}

func (m *Metrics) WorkerSetupFailed(string, error) {
	m.SetupFailures.Inc()
	m.update(func(s *Snapshot) { s.SetupFailures++ })
}

func (m *Metrics) ItemHandled(_ series.WorkerInfo, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ItemsHandled.WithLabelValues(status).Inc()
	m.HandleDuration.Observe(elapsed.Seconds())
	m.update(func(s *Snapshot) {
		s.ItemsHandled++
		if err != nil {
			s.ItemFailures++
		}
	})
}

func (m *Metrics) WorkerFinished(info series.WorkerInfo, err error) {
	outcome := "completed"
	switch {
	case err != nil:
		outcome = "failed"
	case info.Terminated:
		outcome = "terminated"
	}
	m.SeriesActive.Dec()
	m.SeriesFinished.WithLabelValues(outcome).Inc()
	m.SeriesItems.Observe(float64(info.Items))
	m.update(func(s *Snapshot) {
		s.ActiveSeries--
		s.FinishedSeries++
		if err != nil {
			s.FailedSeries++
		}
	})
}

func (m *Metrics) DispatchRejected(_ string, err error) {
	m.Rejected.WithLabelValues(rejectReason(err)).Inc()
	m.update(func(s *Snapshot) { s.Rejected++ })
}

func (m *Metrics) update(fn func(*Snapshot)) {
	m.mu.Lock()
	fn(&m.snapshot)
	m.mu.Unlock()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, series.ErrEmptyKey):
		return "empty_key"
	case errors.Is(err, series.ErrStopped):
		return "stopped"
	default:
		return "other"
	}
}
