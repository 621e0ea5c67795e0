package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the streaming server
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ActiveSessions     prometheus.Gauge
	SessionsStarted    *prometheus.CounterVec
	SessionsClosed     prometheus.Counter
	ProtocolViolations *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived prometheus.Counter
	ChunksSent         prometheus.Counter
	ChunkBytesSent     prometheus.Counter

	// Synthesis metrics
	SynthesisRequests *prometheus.CounterVec
	SynthesisFailures *prometheus.CounterVec
	SynthesisDuration prometheus.Histogram
	Interruptions     prometheus.Counter
}

// NewMetrics creates all metrics on a dedicated registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Current number of open conversation sessions",
		}),
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_sessions_started_total",
			Help: "Total number of sessions that completed a handshake",
		}, []string{"handshake"}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_closed_total",
			Help: "Total number of sessions closed",
		}),
		ProtocolViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_protocol_violations_total",
			Help: "Total number of rejected websocket messages",
		}, []string{"reason"}),

		AudioBytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_audio_bytes_received_total",
			Help: "Total bytes of client audio decoded from websocket_audio messages",
		}),
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_chunks_sent_total",
			Help: "Total number of synthesized audio chunks sent to clients",
		}),
		ChunkBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_chunk_bytes_sent_total",
			Help: "Total bytes of synthesized audio sent to clients",
		}),

		SynthesisRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_synthesis_requests_total",
			Help: "Total number of synthesis requests",
		}, []string{"synthesizer"}),
		SynthesisFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_synthesis_failures_total",
			Help: "Total number of failed synthesis requests",
		}, []string{"synthesizer", "reason"}),
		SynthesisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_synthesis_duration_seconds",
			Help:    "Time spent waiting for the synthesis backend and converting its output",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_interruptions_total",
			Help: "Total number of bot utterances cut off by the user",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
