package infra

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics implements ports.Metrics on its own registry so tests can
// build as many as they like.
type PromMetrics struct {
	registry *prometheus.Registry

	// Sessions
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter

	// Recording
	RecordingsCompleted prometheus.Counter
	RecordingSize       prometheus.Histogram
	FragmentsReceived   prometheus.Counter
	FragmentsDiscarded  prometheus.Counter

	// Upload
	UploadsStarted   prometheus.Counter
	UploadsSucceeded prometheus.Counter
	UploadsFailed    *prometheus.CounterVec
	UploadDuration   prometheus.Histogram

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewPromMetrics() *PromMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &PromMetrics{
		registry: reg,

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicememo_active_sessions",
			Help: "Current number of open recording sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "voicememo_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "voicememo_sessions_closed_total",
			Help: "Total number of sessions closed or expired",
		}),

		RecordingsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicememo_recordings_completed_total",
			Help: "Total number of recordings stopped and assembled",
		}),
		RecordingSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicememo_recording_size_bytes",
			Help:    "Size of assembled recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		FragmentsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "voicememo_fragments_received_total",
			Help: "Total number of audio fragments buffered",
		}),
		FragmentsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "voicememo_fragments_discarded_total",
			Help: "Total number of fragments dropped because no take was recording",
		}),

		UploadsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicememo_uploads_started_total",
			Help: "Total number of uploads started",
		}),
		UploadsSucceeded: f.NewCounter(prometheus.CounterOpts{
			Name: "voicememo_uploads_succeeded_total",
			Help: "Total number of uploads that returned a transcript",
		}),
		UploadsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicememo_uploads_failed_total",
			Help: "Total number of failed uploads by error kind",
		}, []string{"kind"}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicememo_upload_duration_seconds",
			Help:    "Time from upload start to outcome",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicememo_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicememo_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PromMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PromMetrics) SessionOpened() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

func (m *PromMetrics) SessionClosed() {
	m.SessionsClosed.Inc()
	m.ActiveSessions.Dec()
}

func (m *PromMetrics) RecordingCompleted(sizeBytes int) {
	m.RecordingsCompleted.Inc()
	m.RecordingSize.Observe(float64(sizeBytes))
}

func (m *PromMetrics) FragmentReceived(accepted bool) {
	if accepted {
		m.FragmentsReceived.Inc()
		return
	}
	m.FragmentsDiscarded.Inc()
}

func (m *PromMetrics) UploadStarted() {
	m.UploadsStarted.Inc()
}

func (m *PromMetrics) UploadSucceeded(d time.Duration) {
	m.UploadsSucceeded.Inc()
	m.UploadDuration.Observe(d.Seconds())
}

func (m *PromMetrics) UploadFailed(kind string, d time.Duration) {
	m.UploadsFailed.WithLabelValues(kind).Inc()
	m.UploadDuration.Observe(d.Seconds())
}

func (m *PromMetrics) HTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
