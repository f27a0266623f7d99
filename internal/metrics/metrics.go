// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus collectors for the spectrum pipeline.
//
// Every method is safe to call on a nil *Metrics, so components can be wired
// unconditionally and metrics switched off in configuration.
package metrics

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spectrum"

// Metrics holds the pipeline collectors.
type Metrics struct {
	Cycles            prometheus.Counter
	CycleDuration     prometheus.Histogram
	WindowFill        prometheus.Gauge
	PayloadsPublished prometheus.Counter
	PublishFailures   prometheus.Counter
	PayloadsDropped   prometheus.Counter
	PayloadSize       prometheus.Histogram
	PublishLatency    prometheus.Histogram
	BrokerConnected   prometheus.Gauge
	BinLevel          *prometheus.GaugeVec

	registry *prometheus.Registry

	binMu     sync.Mutex
	binGauges []prometheus.Gauge
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register spectrum metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.Cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Total number of completed analysis cycles",
	})
	m.CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_processing_seconds",
		Help:      "Time spent transforming, binning and encoding one window",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
	m.WindowFill = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "window_fill_ratio",
		Help:      "Fraction of the analysis window filled by the device in the last cycle",
	})
	m.PayloadsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payloads_published_total",
		Help:      "Total number of payloads handed to every sink without error",
	})
	m.PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Total number of payloads that failed to publish and were dropped",
	})
	m.PayloadsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payloads_dropped_total",
		Help:      "Total number of payloads replaced by a newer one before they were sent",
	})
	m.PayloadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payload_size_bytes",
		Help:      "Size of published payloads in bytes",
		Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
	})
	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "publish_latency_seconds",
		Help:      "Latency of publish operations in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	m.BrokerConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "broker_connected",
		Help:      "Current broker connection status (1 for connected, 0 for disconnected)",
	})
	m.BinLevel = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bin_level_db",
		Help:      "Last published value of each spectrum bin",
	}, []string{"bin"})
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(processing time.Duration, filledFrames, windowFrames int) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.CycleDuration.Observe(processing.Seconds())
	if windowFrames > 0 {
		m.WindowFill.Set(float64(filledFrames) / float64(windowFrames))
	}
}

// ObserveBins records the bin vector of the latest cycle.
func (m *Metrics) ObserveBins(bins []float64) {
	if m == nil {
		return
	}
	m.binMu.Lock()
	defer m.binMu.Unlock()
	for len(m.binGauges) < len(bins) {
		m.binGauges = append(m.binGauges, m.BinLevel.WithLabelValues(strconv.Itoa(len(m.binGauges))))
	}
	for i, v := range bins {
		m.binGauges[i].Set(v)
	}
}

// PayloadPublished records a successful publish.
func (m *Metrics) PayloadPublished(size int, latency time.Duration) {
	if m == nil {
		return
	}
	m.PayloadsPublished.Inc()
	m.PayloadSize.Observe(float64(size))
	m.PublishLatency.Observe(latency.Seconds())
}

// PublishFailed records a payload dropped because a sink returned an error.
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// PayloadDropped records a payload superseded before it was sent.
func (m *Metrics) PayloadDropped() {
	if m == nil {
		return
	}
	m.PayloadsDropped.Inc()
}

// SetBrokerConnected updates the broker connection gauge.
func (m *Metrics) SetBrokerConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.BrokerConnected.Set(1)
	} else {
		m.BrokerConnected.Set(0)
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Cycles.Describe(ch)
	m.CycleDuration.Describe(ch)
	m.WindowFill.Describe(ch)
	m.PayloadsPublished.Describe(ch)
	m.PublishFailures.Describe(ch)
	m.PayloadsDropped.Describe(ch)
	m.PayloadSize.Describe(ch)
	m.PublishLatency.Describe(ch)
	m.BrokerConnected.Describe(ch)
	m.BinLevel.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Cycles.Collect(ch)
	m.CycleDuration.Collect(ch)
	m.WindowFill.Collect(ch)
	m.PayloadsPublished.Collect(ch)
	m.PublishFailures.Collect(ch)
	m.PayloadsDropped.Collect(ch)
	m.PayloadSize.Collect(ch)
	m.PublishLatency.Collect(ch)
	m.BrokerConnected.Collect(ch)
	m.BinLevel.Collect(ch)
}
