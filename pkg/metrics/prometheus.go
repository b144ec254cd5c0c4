package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	apiCalls    *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	predictions *prometheus.CounterVec
	confidence  prometheus.Histogram
	rows        *prometheus.GaugeVec
}

// New registers the collectors on reg, or on the default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		apiCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockaction_provider_calls_total",
				Help: "Market data provider calls by endpoint and outcome",
			},
			[]string{"endpoint", "status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockaction_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockaction_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 15, 60, 300},
			},
			[]string{"operation"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockaction_predictions_total",
				Help: "Predictions served by winning label",
			},
			[]string{"label"},
		),
		confidence: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockaction_prediction_confidence",
				Help:    "Probability of the winning label",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		rows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockaction_dataset_rows",
				Help: "Rows assembled per symbol in the last dataset build",
			},
			[]string{"symbol"},
		),
	}
}

// RecordAPICall counts one provider request.
func (r *Recorder) RecordAPICall(endpoint, status string) {
	r.apiCalls.WithLabelValues(endpoint, status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordPrediction counts a served prediction and its confidence.
func (r *Recorder) RecordPrediction(label string, confidence float64) {
	r.predictions.WithLabelValues(label).Inc()
	r.confidence.Observe(confidence)
}

// RecordRows sets the row count for a symbol.
func (r *Recorder) RecordRows(symbol string, n int) {
	r.rows.WithLabelValues(symbol).Set(float64(n))
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordAPICall(string, string)     {}
func (Nop) RecordError(string)               {}
func (Nop) RecordLatency(string, float64)    {}
func (Nop) RecordPrediction(string, float64) {}
func (Nop) RecordRows(string, int)           {}
