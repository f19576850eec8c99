// Package metrics exposes pipeline counters and timings to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "speakstream"

// Playback outcomes.
const (
	OutcomePlayed      = "played"
	OutcomeCue         = "cue"
	OutcomeInterrupted = "interrupted"
	OutcomeDiscarded   = "discarded"
	OutcomeFailed      = "failed"
)

// Metrics holds the collectors for one stream.
type Metrics struct {
	registry *prometheus.Registry

	Sentences         prometheus.Counter
	SynthesisSeconds  prometheus.Histogram
	SynthesisFailures *prometheus.CounterVec
	CacheHits         prometheus.Counter
	PlaybackItems     *prometheus.CounterVec
	Interrupts        prometheus.Counter
	DeviceSwaps       prometheus.Counter
	QueueDepth        prometheus.Gauge
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Sentences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_total",
			Help:      "Sentences emitted by the accumulator.",
		}),
		SynthesisSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_seconds",
			Help:      "Time from dispatch to a materialized audio file.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SynthesisFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_failures_total",
			Help:      "Sentences that produced an error result, by error code.",
		}, []string{"code"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Sentences served from the audio cache.",
		}),
		PlaybackItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_items_total",
			Help:      "Released results handled by playback, by outcome.",
		}, []string{"outcome"}),
		Interrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_total",
			Help:      "Calls to stop speech.",
		}),
		DeviceSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_swaps_total",
			Help:      "Output re-opens after the default device changed.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs awaiting release in the reorder queue.",
		}),
	}

	m.registry.MustRegister(
		m.Sentences,
		m.SynthesisSeconds,
		m.SynthesisFailures,
		m.CacheHits,
		m.PlaybackItems,
		m.Interrupts,
		m.DeviceSwaps,
		m.QueueDepth,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SentenceEmitted() {
	if m != nil {
		m.Sentences.Inc()
	}
}

func (m *Metrics) SynthesisDone(d time.Duration) {
	if m != nil {
		m.SynthesisSeconds.Observe(d.Seconds())
	}
}

func (m *Metrics) SynthesisFailed(code string) {
	if m != nil {
		if code == "" {
			code = "unknown"
		}
		m.SynthesisFailures.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) Playback(outcome string) {
	if m != nil {
		m.PlaybackItems.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Interrupted() {
	if m != nil {
		m.Interrupts.Inc()
	}
}

func (m *Metrics) DeviceSwapped() {
	if m != nil {
		m.DeviceSwaps.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
