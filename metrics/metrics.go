// Package metrics implements collection of the counters and gauges
// published by the destination health/failure-detection core (per
// local-state server gauges, TKO counters, probe counts).
//
// It follows the same custom-keyed counter/gauge shape as skipper's
// metrics package: a small Metrics interface with IncCounter/UpdateGauge
// style methods, backed here by a Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the sink every destination component publishes through.
type Metrics interface {
	IncCounter(key string)
	IncCounterBy(key string, value int64)
	UpdateGauge(key string, value float64)
	MeasureSince(key string, start time.Time)
}

// Options configures a Prometheus-backed Metrics implementation.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "mcrouter".
	Namespace string

	// Registry to register the collectors with. A fresh registry is
	// created when nil.
	Registry *prometheus.Registry
}

const defaultNamespace = "mcrouter"

// Prometheus is a Metrics implementation backed by client_golang.
type Prometheus struct {
	registry *prometheus.Registry
	counter  *prometheus.CounterVec
	gauge    *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

var _ Metrics = &Prometheus{}

// NewPrometheus creates a Prometheus-backed Metrics sink.
func NewPrometheus(o Options) *Prometheus {
	ns := o.Namespace
	if ns == "" {
		ns = defaultNamespace
	}

	p := &Prometheus{
		registry: o.Registry,
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "destination",
			Name:      "total",
			Help:      "Total count of a named destination event.",
		}, []string{"key"}),
		gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "destination",
			Name:      "gauges",
			Help:      "Current value of a named destination gauge.",
		}, []string{"key"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "destination",
			Name:      "duration_seconds",
			Help:      "Duration in seconds of a named destination measurement.",
		}, []string{"key"}),
	}

	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
	}

	p.registry.MustRegister(p.counter, p.gauge, p.duration)
	return p
}

func (p *Prometheus) IncCounter(key string) {
	p.counter.WithLabelValues(key).Inc()
}

func (p *Prometheus) IncCounterBy(key string, value int64) {
	p.counter.WithLabelValues(key).Add(float64(value))
}

func (p *Prometheus) UpdateGauge(key string, value float64) {
	p.gauge.WithLabelValues(key).Set(value)
}

func (p *Prometheus) MeasureSince(key string, start time.Time) {
	p.duration.WithLabelValues(key).Observe(time.Since(start).Seconds())
}

// Handler exposes the registry for scraping.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Void is a no-op Metrics sink, used as the default when the embedding
// router does not wire a real backend.
type Void struct{}

var _ Metrics = Void{}

func (Void) IncCounter(string)               {}
func (Void) IncCounterBy(string, int64)      {}
func (Void) UpdateGauge(string, float64)     {}
func (Void) MeasureSince(string, time.Time)  {}

// Default is the package-wide fallback sink.
var Default Metrics = Void{}
