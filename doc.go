// Package exoplanet is the root of the exoplanet classification service.
//
// The service labels Kepler-style transit survey records as False Positive,
// Candidate or Confirmed. It trains one of four classifiers on a staged CSV
// dataset, persists the fitted pipeline and serves predictions over HTTP.
//
// # Layout
//
//	cmd/exoplanetd          HTTP server
//	cmd/gen-sample          synthetic dataset generator
//	internal/api            chi router, handlers, Prometheus collectors
//	internal/service        resident pipeline, dataset staging, caches
//	internal/pipeline       model kinds, trainer, predictor
//	internal/features       label mapping, feature selection, imputation
//	internal/dataset        CSV frames and summaries
//	internal/store          atomic artifact directory
//	internal/history        SQLite training log
//	internal/report         feature-importance chart
//	internal/config         defaults, YAML, .env and environment
//	sklearn/...             estimators: trees, ensembles, SVC, logistic regression, splitting
//	preprocessing           standard scaler, median imputer
//	metrics                 classification and probability metrics
//	core/model, core/parallel  estimator contracts, gob persistence, worker fan-out
//	pkg/errors, pkg/log     error taxonomy and structured logging
//
// # Quick start
//
//	go run ./cmd/gen-sample -n 300 -o data/nasa_exoplanets.csv
//	go run ./cmd/exoplanetd
//	curl -X POST localhost:8000/api/train -d '{"model_type":"xgboost"}'
//	curl -X POST localhost:8000/api/predict \
//	    -d '{"koi_period":12.4,"koi_duration":3.1,"koi_depth":640,"koi_prad":1.8}'
package exoplanet
