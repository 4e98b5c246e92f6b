package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the live caption service
type Metrics struct {
	// Source metrics
	PacketsReceived prometheus.Counter
	ParseErrors     prometheus.Counter
	ChunksReceived  prometheus.Counter
	ChunksDropped   prometheus.Counter
	ChunkWarnings   *prometheus.CounterVec
	QueueSize       prometheus.Gauge

	// Segmentation metrics
	VADEvents         *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	Recording         prometheus.Gauge
	UtteranceDuration prometheus.Histogram
	UtterancesSkipped prometheus.Counter

	// Transcription metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionFailures *prometheus.CounterVec
	TranscriptionEmpty    *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec

	// Caption delivery metrics
	CaptionsWritten  prometheus.Counter
	SinkErrors       prometheus.Counter
	WSClients        prometheus.Gauge
	WSDropped        prometheus.Counter
	PromptsForwarded *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Source metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecaption_packets_received_total",
			Help: "Total number of network microphone packets received",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecaption_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecaption_chunks_received_total",
			Help: "Total number of audio chunks accepted into the queue",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecaption_chunks_dropped_total",
			Help: "Total number of audio chunks dropped because the queue was full",
		}),
		ChunkWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_chunk_warnings_total",
			Help: "Total number of chunks carrying a device status flag",
		}, []string{"status"}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livecaption_queue_size",
			Help: "Current number of chunks waiting for the consumer",
		}),

		// Segmentation metrics
		VADEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_vad_events_total",
			Help: "Total number of voice activity boundaries observed",
		}, []string{"event"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_controller_actions_total",
			Help: "Total number of refresh controller actions taken",
		}, []string{"action"}),
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livecaption_recording",
			Help: "1 while an utterance is being recorded, 0 when idle",
		}),
		UtteranceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livecaption_utterance_duration_seconds",
			Help:    "Duration of finalized utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		}),
		UtterancesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecaption_utterances_skipped_total",
			Help: "Total number of utterances discarded as too short",
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_transcription_requests_total",
			Help: "Total number of transcription engine calls",
		}, []string{"kind"}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_transcription_failures_total",
			Help: "Total number of failed transcription engine calls",
		}, []string{"kind"}),
		TranscriptionEmpty: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_transcription_empty_total",
			Help: "Total number of transcription calls returning no text",
		}, []string{"kind"}),
		TranscriptionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livecaption_transcription_duration_seconds",
			Help:    "Duration of transcription engine calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"kind"}),

		// Caption delivery metrics
		CaptionsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecaption_captions_written_total",
			Help: "Total number of final captions written to the transcript",
		}),
		SinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecaption_sink_errors_total",
			Help: "Total number of transcript write failures",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livecaption_ws_clients",
			Help: "Current number of websocket caption subscribers",
		}),
		WSDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecaption_ws_dropped_total",
			Help: "Total number of caption events dropped for slow subscribers",
		}),
		PromptsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_prompts_total",
			Help: "Total number of aggregated prompts sent downstream",
		}, []string{"result"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livecaption_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecaption_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// RecordChunkQueued counts a chunk accepted into the queue
func (m *Metrics) RecordChunkQueued(queueLen int) {
	m.ChunksReceived.Inc()
	m.QueueSize.Set(float64(queueLen))
}

// RecordChunkDropped counts a chunk lost to a full queue
func (m *Metrics) RecordChunkDropped() {
	m.ChunksDropped.Inc()
}

// RecordChunkWarning counts a device status flag
func (m *Metrics) RecordChunkWarning(status string) {
	m.ChunkWarnings.WithLabelValues(status).Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// RecordVADEvent counts a start or end boundary
func (m *Metrics) RecordVADEvent(event string) {
	m.VADEvents.WithLabelValues(event).Inc()
}

// RecordAction counts a controller action and updates the recording gauge
func (m *Metrics) RecordAction(action string, recording bool) {
	m.Transitions.WithLabelValues(action).Inc()
	if recording {
		m.Recording.Set(1)
	} else {
		m.Recording.Set(0)
	}
}

// RecordUtterance observes the duration of a finalized utterance
func (m *Metrics) RecordUtterance(durationSeconds float64) {
	m.UtteranceDuration.Observe(durationSeconds)
}

// RecordUtteranceSkipped counts an utterance discarded as noise
func (m *Metrics) RecordUtteranceSkipped() {
	m.UtterancesSkipped.Inc()
}

// RecordTranscription records one engine call of the given kind
func (m *Metrics) RecordTranscription(kind string, durationSeconds float64, empty bool, err error) {
	m.TranscriptionRequests.WithLabelValues(kind).Inc()
	m.TranscriptionDuration.WithLabelValues(kind).Observe(durationSeconds)
	if err != nil {
		m.TranscriptionFailures.WithLabelValues(kind).Inc()
		return
	}
	if empty {
		m.TranscriptionEmpty.WithLabelValues(kind).Inc()
	}
}

// RecordCaptionWritten counts a final caption written to the transcript
func (m *Metrics) RecordCaptionWritten() {
	m.CaptionsWritten.Inc()
}

// RecordSinkError counts a failed transcript write
func (m *Metrics) RecordSinkError() {
	m.SinkErrors.Inc()
}

// SetWSClients sets the number of websocket subscribers
func (m *Metrics) SetWSClients(count int) {
	m.WSClients.Set(float64(count))
}

// RecordWSDropped counts an event not delivered to a slow subscriber
func (m *Metrics) RecordWSDropped() {
	m.WSDropped.Inc()
}

// RecordPrompt counts a downstream prompt by result
func (m *Metrics) RecordPrompt(result string) {
	m.PromptsForwarded.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
