// Package metrics wraps prometheus.Registry with convenience helpers for
// registering and retrieving named collectors exactly once.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric registered through Registry.
const Namespace = "ilpeth"

// Registry wraps prometheus.Registry, memoizing collectors by name so
// repeated calls to Counter/Gauge/Histogram/Summary with the same name
// return the already-registered collector instead of panicking.
type Registry struct {
	reg *prometheus.Registry
	mu  sync.RWMutex

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	summaries  map[string]*prometheus.SummaryVec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		summaries:  make(map[string]*prometheus.SummaryVec),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide Registry, created lazily.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Counter creates or retrieves a counter metric.
func (r *Registry) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if counter, exists := r.counters[name]; exists {
		return counter
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: Namespace, Name: name, Help: help},
		labels,
	)
	r.reg.MustRegister(counter)
	r.counters[name] = counter
	return counter
}

// Gauge creates or retrieves a gauge metric.
func (r *Registry) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gauge, exists := r.gauges[name]; exists {
		return gauge
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: Namespace, Name: name, Help: help},
		labels,
	)
	r.reg.MustRegister(gauge)
	r.gauges[name] = gauge
	return gauge
}

// Histogram creates or retrieves a histogram metric.
func (r *Registry) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if histogram, exists := r.histograms[name]; exists {
		return histogram
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: Namespace, Name: name, Help: help, Buckets: buckets},
		labels,
	)
	r.reg.MustRegister(histogram)
	r.histograms[name] = histogram
	return histogram
}

// Summary creates or retrieves a summary metric.
func (r *Registry) Summary(name, help string, objectives map[float64]float64, labels ...string) *prometheus.SummaryVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if summary, exists := r.summaries[name]; exists {
		return summary
	}

	summary := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{Namespace: Namespace, Name: name, Help: help, Objectives: objectives},
		labels,
	)
	r.reg.MustRegister(summary)
	r.summaries[name] = summary
	return summary
}

// Handler returns an HTTP handler exposing the registry in Prometheus format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// MustRegister registers collectors directly, panicking on error.
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.reg.MustRegister(collectors...)
}

// Unregister removes a collector from the registry.
func (r *Registry) Unregister(collector prometheus.Collector) bool {
	return r.reg.Unregister(collector)
}

// Standard bucket definitions shared across account metrics.
var (
	DurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0}

	WeiBuckets = []float64{
		1e9,  // 1 gwei
		1e12, // 1000 gwei
		1e15, // 0.001 ETH
		1e17, // 0.1 ETH
		1e18, // 1 ETH
		1e19, // 10 ETH
	}

	CountBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

	DefaultQuantiles = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}
)
