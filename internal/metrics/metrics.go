package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snap2sched/internal/extract"
)

const namespace = "snap2sched"

// Metrics holds the service collectors on a private registry so tests and
// multiple servers in one process do not collide.
type Metrics struct {
	reg *prometheus.Registry

	lines         *prometheus.CounterVec
	parses        prometheus.Counter
	parseDuration prometheus.Histogram
	refreshes     *prometheus.CounterVec
	feedEvents    prometheus.Gauge
	feedWarnings  prometheus.Gauge
	rateLimited   prometheus.Counter
}

// New registers the collectors on reg. A nil reg gets a fresh registry with
// the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		lines: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Lines handled by the heuristic extractor, by outcome.",
		}, []string{"outcome"}),
		parses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Documents parsed.",
		}),
		parseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing one document.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_refreshes_total",
			Help:      "Feed refreshes, by result.",
		}, []string{"result"}),
		feedEvents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_events",
			Help:      "Events in the current feed snapshot.",
		}),
		feedWarnings: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_warnings",
			Help:      "Warnings in the current feed snapshot.",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
}

// ObserveLine implements extract.Observer.
func (m *Metrics) ObserveLine(o extract.Outcome) {
	m.lines.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) ObserveParse(d time.Duration) {
	m.parses.Inc()
	m.parseDuration.Observe(d.Seconds())
}

// ObserveRefresh records one feed refresh and, when it succeeded, the size
// of the resulting snapshot.
func (m *Metrics) ObserveRefresh(ok bool, events, warnings int) {
	if !ok {
		m.refreshes.WithLabelValues("error").Inc()
		return
	}
	m.refreshes.WithLabelValues("ok").Inc()
	m.feedEvents.Set(float64(events))
	m.feedWarnings.Set(float64(warnings))
}

func (m *Metrics) ObserveRateLimited() {
	m.rateLimited.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
