package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the producer, the decision loop and the dashboard.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Producer metrics
	FramesCaptured   *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec
	SubsampledFrames *prometheus.CounterVec
	SourceReconnects *prometheus.CounterVec

	// Decision loop metrics
	Ticks            *prometheus.CounterVec
	InferenceLatency *prometheus.HistogramVec
	InferenceErrors  *prometheus.CounterVec
	AlertsFired      *prometheus.CounterVec
	AlertsSuppressed *prometheus.CounterVec

	// Shared
	StoreErrors *prometheus.CounterVec
}

// NewMetrics registers the metrics on reg. Pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesCaptured: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_frames_captured_total",
			Help: "Frames read from the camera and pushed to the realtime queue",
		}, []string{"room"}),

		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_frames_dropped_total",
			Help: "Frames discarded before reaching the store",
		}, []string{"room", "reason"}), // reason: "decode", "store"

		SubsampledFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_subsampled_frames_total",
			Help: "Frames pushed to the subsampled queue",
		}, []string{"room"}),

		SourceReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_source_reconnects_total",
			Help: "Camera source reopen attempts",
		}, []string{"room"}),

		Ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_ticks_total",
			Help: "Decision loop ticks by outcome",
		}, []string{"room", "outcome"}),

		InferenceLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomwatch_inference_duration_seconds",
			Help:    "Inference call latency in seconds, retries included",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"room"}),

		InferenceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_inference_errors_total",
			Help: "Inference failures by kind",
		}, []string{"room", "kind"}), // kind: "request", "parse"

		AlertsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_alerts_fired_total",
			Help: "Alerts signalled",
		}, []string{"room"}),

		AlertsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_alerts_suppressed_total",
			Help: "Alerting verdicts swallowed by the cooldown",
		}, []string{"room"}),

		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_store_errors_total",
			Help: "Frame store operations that failed",
		}, []string{"component"}),
	}
}

// RegisterViewerGauge exposes the live dashboard viewer count
func RegisterViewerGauge(reg prometheus.Registerer, connManager *ConnectionManager) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "roomwatch_dashboard_viewers",
		Help: "Current number of dashboard websocket viewers",
	}, func() float64 {
		if connManager != nil {
			return float64(connManager.Count())
		}
		return 0
	})
}

// RecordCapture records a frame pushed to the realtime queue
func (m *Metrics) RecordCapture(room string, subsampled bool) {
	if m == nil {
		return
	}
	m.FramesCaptured.WithLabelValues(room).Inc()
	if subsampled {
		m.SubsampledFrames.WithLabelValues(room).Inc()
	}
}

// RecordDrop records a discarded frame
func (m *Metrics) RecordDrop(room, reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(room, reason).Inc()
}

// RecordReconnect records a camera source reopen
func (m *Metrics) RecordReconnect(room string) {
	if m == nil {
		return
	}
	m.SourceReconnects.WithLabelValues(room).Inc()
}

// RecordTick records a decision loop tick outcome
func (m *Metrics) RecordTick(room, outcome string) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(room, outcome).Inc()
}

// RecordInference records an inference call's latency and, when failed, its error kind
func (m *Metrics) RecordInference(room string, duration time.Duration, errKind string) {
	if m == nil {
		return
	}
	m.InferenceLatency.WithLabelValues(room).Observe(duration.Seconds())
	if errKind != "" {
		m.InferenceErrors.WithLabelValues(room, errKind).Inc()
	}
}

// RecordAlert records whether an alerting verdict fired or was suppressed
func (m *Metrics) RecordAlert(room string, fired bool) {
	if m == nil {
		return
	}
	if fired {
		m.AlertsFired.WithLabelValues(room).Inc()
	} else {
		m.AlertsSuppressed.WithLabelValues(room).Inc()
	}
}

// RecordStoreError records a failed store operation
func (m *Metrics) RecordStoreError(component string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(component).Inc()
}
