package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters of one scan batch
type Metrics struct {
	ImagesScanned   atomic.Uint64
	ImagesFlagged   atomic.Uint64
	ImagesSkipped   atomic.Uint64
	ClipsClassified atomic.Uint64
	ClipsClamped    atomic.Uint64
	RegionsBlank    atomic.Uint64
	EarlyStops      atomic.Uint64
	BackendErrors   atomic.Uint64

	clipLatency  prometheus.Histogram
	imageLatency prometheus.Histogram
	verdicts     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	m.counter("clipguard_images_scanned_total", "Images with a final verdict", &m.ImagesScanned)
	m.counter("clipguard_images_flagged_total", "Images routed to the flagged bucket", &m.ImagesFlagged)
	m.counter("clipguard_images_skipped_total", "Images skipped after decode or backend errors", &m.ImagesSkipped)
	m.counter("clipguard_clips_classified_total", "Clips sent to the backend", &m.ClipsClassified)
	m.counter("clipguard_clips_clamped_total", "Backend choices outside the rule range", &m.ClipsClamped)
	m.counter("clipguard_regions_blank_total", "Regions skipped by the blank-region detector", &m.RegionsBlank)
	m.counter("clipguard_early_stops_total", "Images whose evaluation stopped before the last region", &m.EarlyStops)
	m.counter("clipguard_backend_errors_total", "Failed backend calls", &m.BackendErrors)

	m.clipLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipguard_clip_latency_seconds",
		Help:    "Backend latency per clip",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	m.imageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipguard_image_latency_seconds",
		Help:    "Summed backend latency per image",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	m.verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clipguard_verdicts_total",
		Help: "Verdicts by result code",
	}, []string{"code"})

	m.registry.MustRegister(m.clipLatency, m.imageLatency, m.verdicts)
}

// ObserveClip records one backend call.
func (m *Metrics) ObserveClip(latency time.Duration, clamped bool) {
	m.ClipsClassified.Add(1)
	if clamped {
		m.ClipsClamped.Add(1)
	}
	m.clipLatency.Observe(latency.Seconds())
}

// ObserveImage records a final verdict.
func (m *Metrics) ObserveImage(code int, latency time.Duration, earlyStop bool) {
	m.ImagesScanned.Add(1)
	if code != 0 {
		m.ImagesFlagged.Add(1)
	}
	if earlyStop {
		m.EarlyStops.Add(1)
	}
	m.imageLatency.Observe(latency.Seconds())
	m.verdicts.WithLabelValues(codeLabel(code)).Inc()
}

func codeLabel(code int) string {
	if code >= 10 {
		return "10+"
	}
	return strconv.Itoa(code)
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
