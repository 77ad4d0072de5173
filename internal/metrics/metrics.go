// ABOUTME: Prometheus metrics for the stream session
// ABOUTME: Implements the controller's event recorder on a private registry
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resonate_radio"

// StreamMetrics records stream session activity
type StreamMetrics struct {
	registry *prometheus.Registry

	opened         prometheus.Counter
	openFailures   prometheus.Counter
	retries        prometheus.Counter
	starvation     prometheus.Counter
	metadata       prometheus.Counter
	deadTransports prometheus.Gauge
	buffered       prometheus.Gauge
	peak           prometheus.Gauge
}

// New creates stream metrics on a fresh registry that also carries Go runtime collectors
func New() (*StreamMetrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	return NewWithRegistry(registry)
}

// NewWithRegistry creates stream metrics registered on registry
func NewWithRegistry(registry *prometheus.Registry) (*StreamMetrics, error) {
	m := &StreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register stream metrics: %w", err)
	}
	return m, nil
}

func (m *StreamMetrics) initMetrics() {
	m.opened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "streams_opened_total",
		Help:      "Total number of stream transports opened",
	})
	m.openFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_open_failures_total",
		Help:      "Total number of streams that could not be opened",
	})
	m.retries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_retries_total",
		Help:      "Total number of automatic stream restarts after an error",
	})
	m.starvation = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_starvation_pauses_total",
		Help:      "Total number of times playback paused to refill the buffer",
	})
	m.metadata = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "metadata_published_total",
		Help:      "Total number of metadata maps published to subscribers",
	})
	m.deadTransports = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dead_transports",
		Help:      "Transports waiting to finish closing",
	})
	m.buffered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_buffered_percent",
		Help:      "Fill level of the network buffer of the active stream",
	})
	m.peak = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "output_peak_level",
		Help:      "Peak absolute sample level of recent wave data",
	})
}

// Describe implements prometheus.Collector
func (m *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.opened.Describe(ch)
	m.openFailures.Describe(ch)
	m.retries.Describe(ch)
	m.starvation.Describe(ch)
	m.metadata.Describe(ch)
	m.deadTransports.Describe(ch)
	m.buffered.Describe(ch)
	m.peak.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	m.opened.Collect(ch)
	m.openFailures.Collect(ch)
	m.retries.Collect(ch)
	m.starvation.Collect(ch)
	m.metadata.Collect(ch)
	m.deadTransports.Collect(ch)
	m.buffered.Collect(ch)
	m.peak.Collect(ch)
}

func (m *StreamMetrics) StreamOpened(string) { m.opened.Inc() }
func (m *StreamMetrics) OpenFailed(string)   { m.openFailures.Inc() }
func (m *StreamMetrics) Retry(int)           { m.retries.Inc() }
func (m *StreamMetrics) StarvationPaused()   { m.starvation.Inc() }
func (m *StreamMetrics) MetadataPublished()  { m.metadata.Inc() }

func (m *StreamMetrics) DeadTransports(n int) {
	m.deadTransports.Set(float64(n))
}

func (m *StreamMetrics) Buffered(percent int) {
	m.buffered.Set(float64(percent))
}

// ObservePeak records the latest output peak level
func (m *StreamMetrics) ObservePeak(level float32) {
	m.peak.Set(float64(level))
}

// Registry returns the registry the metrics live on
func (m *StreamMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *StreamMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
