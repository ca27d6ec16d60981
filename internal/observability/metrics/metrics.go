// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conversation_transcriber"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsFailed  *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Channel metrics
	ChannelsOpened *prometheus.CounterVec
	ChannelsActive *prometheus.GaugeVec
	ChannelErrors  *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived *prometheus.CounterVec
	FramesSent         *prometheus.CounterVec
	FramesDropped      *prometheus.CounterVec
	EchoFramesDropped  prometheus.Counter

	// Transcript metrics
	TranscriptsPartial *prometheus.CounterVec
	TranscriptsFinal   *prometheus.CounterVec
	TurnsEmitted       *prometheus.CounterVec
	TurnsInterrupted   *prometheus.CounterVec
	TurnsDiscarded     *prometheus.CounterVec

	// Persistence metrics
	PersistErrors  *prometheus.CounterVec
	PersistLatency *prometheus.HistogramVec

	// Capture metrics
	CaptureStarts prometheus.Counter
	CaptureExits  *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Live stream metrics
	LiveClients *prometheus.GaugeVec
	LiveDropped *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of listen sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active listen sessions",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of session starts that failed",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of listen sessions in seconds",
			Buckets:   []float64{1, 10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),

		// Channel metrics
		ChannelsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_opened_total",
			Help:      "Total number of transcription channels opened",
		}, []string{"provider", "speaker"}),
		ChannelsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_active",
			Help:      "Number of currently open transcription channels",
		}, []string{"speaker"}),
		ChannelErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_errors_total",
			Help:      "Total number of transcription channel transport errors",
		}, []string{"provider", "speaker", "error_type"}),

		// Audio metrics
		AudioBytesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total raw audio bytes received per speaker",
		}, []string{"speaker"}),
		FramesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_sent_total",
			Help:      "Total audio frames forwarded to a provider",
		}, []string{"speaker"}),
		FramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total audio frames dropped before reaching a provider",
		}, []string{"speaker", "reason"}),
		EchoFramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echo_reference_frames_dropped_total",
			Help:      "Total echo-reference frames the downstream side channel could not accept",
		}),

		// Transcript metrics
		TranscriptsPartial: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcript events received",
		}, []string{"speaker"}),
		TranscriptsFinal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcript events received",
		}, []string{"speaker"}),
		TurnsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_emitted_total",
			Help:      "Total number of conversation turns emitted",
		}, []string{"speaker"}),
		TurnsInterrupted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_interrupted_total",
			Help:      "Total number of turns force-flushed by the other speaker",
		}, []string{"speaker"}),
		TurnsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_discarded_total",
			Help:      "Total number of pending turns discarded on stop",
		}, []string{"speaker"}),

		// Persistence metrics
		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Total number of storage write failures",
		}, []string{"operation"}),
		PersistLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_latency_seconds",
			Help:      "Storage write latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"operation"}),

		// Capture metrics
		CaptureStarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_starts_total",
			Help:      "Total number of system audio capture processes spawned",
		}),
		CaptureExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_exits_total",
			Help:      "Total number of capture process exits",
		}, []string{"reason"}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of control surface HTTP requests",
		}, []string{"method", "route", "code"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Control surface HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),

		// Live stream metrics
		LiveClients: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_clients",
			Help:      "Connected websocket clients",
		}, []string{"stream"}),
		LiveDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_messages_dropped_total",
			Help:      "Messages dropped for slow websocket clients",
		}, []string{"stream"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionFailed records a start that did not produce a running session.
func (m *Metrics) RecordSessionFailed(reason string) {
	m.SessionsFailed.WithLabelValues(reason).Inc()
}

// RecordChannelOpened records a provider channel being opened.
func (m *Metrics) RecordChannelOpened(provider, speaker string) {
	m.ChannelsOpened.WithLabelValues(provider, speaker).Inc()
	m.ChannelsActive.WithLabelValues(speaker).Inc()
}

// RecordChannelClosed records a provider channel being closed.
func (m *Metrics) RecordChannelClosed(speaker string) {
	m.ChannelsActive.WithLabelValues(speaker).Dec()
}

// RecordChannelError records a transport error on a channel.
func (m *Metrics) RecordChannelError(provider, speaker, errorType string) {
	m.ChannelErrors.WithLabelValues(provider, speaker, errorType).Inc()
}

// RecordAudioReceived records raw audio bytes received for a speaker.
func (m *Metrics) RecordAudioReceived(speaker string, bytes int) {
	m.AudioBytesReceived.WithLabelValues(speaker).Add(float64(bytes))
}

// RecordFrameSent records a frame forwarded to a provider.
func (m *Metrics) RecordFrameSent(speaker string) {
	m.FramesSent.WithLabelValues(speaker).Inc()
}

// RecordFrameDropped records a frame that never reached a provider.
func (m *Metrics) RecordFrameDropped(speaker, reason string) {
	m.FramesDropped.WithLabelValues(speaker, reason).Inc()
}

// RecordEchoDropped records an echo-reference frame the side channel refused.
func (m *Metrics) RecordEchoDropped() {
	m.EchoFramesDropped.Inc()
}

// RecordPartialTranscript records a partial transcript received.
func (m *Metrics) RecordPartialTranscript(speaker string) {
	m.TranscriptsPartial.WithLabelValues(speaker).Inc()
}

// RecordFinalTranscript records a final transcript received.
func (m *Metrics) RecordFinalTranscript(speaker string) {
	m.TranscriptsFinal.WithLabelValues(speaker).Inc()
}

// RecordTurn records a turn emitted.
func (m *Metrics) RecordTurn(speaker string) {
	m.TurnsEmitted.WithLabelValues(speaker).Inc()
}

// RecordInterruption records a turn force-flushed by the other speaker.
func (m *Metrics) RecordInterruption(speaker string) {
	m.TurnsInterrupted.WithLabelValues(speaker).Inc()
}

// RecordDiscarded records pending text dropped on stop.
func (m *Metrics) RecordDiscarded(speaker string) {
	m.TurnsDiscarded.WithLabelValues(speaker).Inc()
}

// RecordPersist records a storage write attempt.
func (m *Metrics) RecordPersist(operation string, err error, latencySeconds float64) {
	m.PersistLatency.WithLabelValues(operation).Observe(latencySeconds)
	if err != nil {
		m.PersistErrors.WithLabelValues(operation).Inc()
	}
}

// RecordCaptureStart records a capture process spawn.
func (m *Metrics) RecordCaptureStart() {
	m.CaptureStarts.Inc()
}

// RecordCaptureExit records a capture process exit.
func (m *Metrics) RecordCaptureExit(reason string) {
	m.CaptureExits.WithLabelValues(reason).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTPRequest records a control surface request.
func (m *Metrics) RecordHTTPRequest(method, route, code string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latencySeconds)
}

// RecordLiveClient records a websocket client joining (+1) or leaving (-1).
func (m *Metrics) RecordLiveClient(stream string, delta int) {
	m.LiveClients.WithLabelValues(stream).Add(float64(delta))
}

// RecordLiveDropped records a message a slow client could not take.
func (m *Metrics) RecordLiveDropped(stream string) {
	m.LiveDropped.WithLabelValues(stream).Inc()
}
