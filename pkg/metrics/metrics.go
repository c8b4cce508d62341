package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a Prometheus registry scoped to one namespace.
type Registry struct {
	namespace string
	reg       *prometheus.Registry
}

// Option configures a Registry.
type Option func(*Registry)

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(r *Registry) {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

// New creates a registry whose metric names are prefixed with namespace.
func New(namespace string, opts ...Option) *Registry {
	r := &Registry{
		namespace: namespace,
		reg:       prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Counter registers a counter read from fn on every scrape.
// fn must be monotonic.
func (r *Registry) Counter(subsystem, name, help string, fn func() int64) error {
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })

	if err := r.reg.Register(c); err != nil {
		return fmt.Errorf("register counter %s_%s: %w", subsystem, name, err)
	}
	return nil
}

// Gauge registers a gauge read from fn on every scrape.
func (r *Registry) Gauge(subsystem, name, help string, fn func() int64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })

	if err := r.reg.Register(g); err != nil {
		return fmt.Errorf("register gauge %s_%s: %w", subsystem, name, err)
	}
	return nil
}

// Histogram registers and returns a histogram vector with the given labels.
func (r *Registry) Histogram(subsystem, name, help string, labels ...string) (*prometheus.HistogramVec, error) {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)

	if err := r.reg.Register(h); err != nil {
		return nil, fmt.Errorf("register histogram %s_%s: %w", subsystem, name, err)
	}
	return h, nil
}

// MustCounter is Counter that panics on error.
func (r *Registry) MustCounter(subsystem, name, help string, fn func() int64) {
	if err := r.Counter(subsystem, name, help, fn); err != nil {
		panic(err)
	}
}

// MustGauge is Gauge that panics on error.
func (r *Registry) MustGauge(subsystem, name, help string, fn func() int64) {
	if err := r.Gauge(subsystem, name, help, fn); err != nil {
		panic(err)
	}
}

// Gatherer returns the underlying registry for scraping or tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
