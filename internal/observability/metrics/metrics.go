// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_voice_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Transcription flow metrics
	TranscriptionsTotal    *prometheus.CounterVec
	TranscriptionsActive   prometheus.Gauge
	TranscriptionDuration  *prometheus.HistogramVec
	TranscriptionTextBytes prometheus.Histogram

	// Object store metrics
	PresignTotal *prometheus.CounterVec
	UploadBytes  prometheus.Counter
	StoreErrors  *prometheus.CounterVec
	StoreLatency *prometheus.HistogramVec

	// Speech service metrics
	SubmitTotal    *prometheus.CounterVec
	SubmitLatency  prometheus.Histogram
	PollIterations *prometheus.CounterVec
	PollLatency    prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
	GRPCRequests *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics with reg. Tests pass a private registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Transcription flow metrics
		TranscriptionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Total number of transcription flows by flow and outcome",
		}, []string{"flow", "outcome"}),
		TranscriptionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcriptions_active",
			Help:      "Number of transcription flows currently in progress",
		}),
		TranscriptionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "End-to-end duration of transcription flows in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}, []string{"flow"}),
		TranscriptionTextBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_text_bytes",
			Help:      "Size of returned transcription text in bytes",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 10),
		}),

		// Object store metrics
		PresignTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_presign_total",
			Help:      "Total number of pre-signed URLs issued",
		}, []string{"method"}),
		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_upload_bytes_total",
			Help:      "Total audio bytes uploaded to the object store by the server",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of object store errors",
		}, []string{"op"}),
		StoreLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_latency_seconds",
			Help:      "Object store call latency in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"op"}),

		// Speech service metrics
		SubmitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_submit_total",
			Help:      "Total number of transcription jobs submitted by status class",
		}, []string{"provider", "status"}),
		SubmitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_submit_latency_seconds",
			Help:      "Submit call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		PollIterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_poll_iterations_total",
			Help:      "Total number of poll requests by outcome",
		}, []string{"provider", "outcome"}),
		PollLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_poll_latency_seconds",
			Help:      "Single poll call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"route"}),
		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC unary calls by method and code",
		}, []string{"method", "code"}),
	}
}

// RecordTranscriptionStart records a flow entering the pipeline.
func (m *Metrics) RecordTranscriptionStart() {
	m.TranscriptionsActive.Inc()
}

// RecordTranscriptionEnd records a flow leaving the pipeline.
func (m *Metrics) RecordTranscriptionEnd(flow, outcome string, durationSeconds float64) {
	m.TranscriptionsActive.Dec()
	m.TranscriptionsTotal.WithLabelValues(flow, outcome).Inc()
	m.TranscriptionDuration.WithLabelValues(flow).Observe(durationSeconds)
}

// RecordTranscriptionText records the size of a returned transcript.
func (m *Metrics) RecordTranscriptionText(bytes int) {
	m.TranscriptionTextBytes.Observe(float64(bytes))
}

// RecordPresign records a pre-signed URL being issued.
func (m *Metrics) RecordPresign(method string) {
	m.PresignTotal.WithLabelValues(method).Inc()
}

// RecordStoreCall records an object store call and its latency.
func (m *Metrics) RecordStoreCall(op string, err error, latencySeconds float64) {
	m.StoreLatency.WithLabelValues(op).Observe(latencySeconds)
	if err != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

// RecordUpload records audio bytes pushed to the store.
func (m *Metrics) RecordUpload(bytes int) {
	m.UploadBytes.Add(float64(bytes))
}

// RecordSubmit records a submit call. statusCode 0 means a transport failure.
func (m *Metrics) RecordSubmit(provider string, statusCode int, latencySeconds float64) {
	m.SubmitTotal.WithLabelValues(provider, statusClass(statusCode)).Inc()
	m.SubmitLatency.Observe(latencySeconds)
}

// RecordPoll records one poll iteration.
func (m *Metrics) RecordPoll(provider, outcome string, latencySeconds float64) {
	m.PollIterations.WithLabelValues(provider, outcome).Inc()
	m.PollLatency.Observe(latencySeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, statusCode int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(durationSeconds)
}

// RecordGRPCRequest records a served gRPC unary call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

func statusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
