package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. Each router owns its own registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	TrainingRuns     *prometheus.CounterVec
	TrainingDuration *prometheus.HistogramVec
	Predictions      *prometheus.CounterVec
	ModelAccuracy    *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exoplanet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exoplanet_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "route"},
		),
		TrainingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exoplanet_training_runs_total",
				Help: "Total number of training runs",
			},
			[]string{"model_type", "status"}, // status: success|error
		),
		TrainingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exoplanet_training_duration_seconds",
				Help:    "Training duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model_type"},
		),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exoplanet_predictions_total",
				Help: "Total number of classified records",
			},
			[]string{"mode", "label"}, // mode: single|batch
		),
		ModelAccuracy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exoplanet_model_accuracy",
				Help: "Held-out accuracy of the current model",
			},
			[]string{"model_type"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.TrainingRuns,
		m.TrainingDuration,
		m.Predictions,
		m.ModelAccuracy,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTraining records a finished training run.
func (m *Metrics) RecordTraining(modelType string, d time.Duration, accuracy float64, err error) {
	if err != nil {
		m.TrainingRuns.WithLabelValues(modelType, "error").Inc()
		return
	}
	m.TrainingRuns.WithLabelValues(modelType, "success").Inc()
	m.TrainingDuration.WithLabelValues(modelType).Observe(d.Seconds())
	m.ModelAccuracy.Reset()
	m.ModelAccuracy.WithLabelValues(modelType).Set(accuracy)
}
