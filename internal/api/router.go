// Package api exposes the exoplanet service over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/service"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
)

// Options configures the router.
type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	Metrics        *Metrics // a fresh set is created when nil
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	m := opts.Metrics
	if m == nil {
		m = NewMetrics()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	h := NewHandler(svc, m, maxUpload)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(log.GetLoggerWithName("http"), m))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.Root)
	r.Handle("/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/", h.Index)
		r.Get("/health", h.Health)
		r.Post("/train", h.Train)
		r.Post("/predict", h.Predict)
		r.Post("/predict-batch", h.PredictBatch)
		r.Post("/upload-dataset", h.UploadDataset)
		r.Get("/metrics", h.Metrics)
		r.Get("/dataset-info", h.DatasetInfo)
		r.Get("/model-info", h.ModelInfo)
		r.Get("/feature-importance", h.FeatureImportance)
		r.Get("/feature-importance.png", h.FeatureImportancePlot)
		r.Get("/training-history", h.TrainingHistory)
	})
	return r
}
