package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/features"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/pipeline"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/service"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
)

// API identity.
const (
	APIName    = "NASA Exoplanet Detection API"
	APIVersion = "1.0.0"
)

// maxJSONBody bounds the train and predict request bodies.
const maxJSONBody = 1 << 20

// Handler serves the exoplanet API.
type Handler struct {
	svc       *service.Service
	metrics   *Metrics
	maxUpload int64
	logger    log.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *service.Service, m *Metrics, maxUpload int64) *Handler {
	return &Handler{svc: svc, metrics: m, maxUpload: maxUpload, logger: log.GetLoggerWithName("api")}
}

// Root answers GET / with the API name and version.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": APIName,
		"version": APIVersion,
		"docs":    "/api",
		"health":  "/api/health",
	})
}

// Index lists the endpoints under /api.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_name": APIName,
		"version":  APIVersion,
		"endpoints": map[string]string{
			"train":                   "POST /api/train",
			"predict":                 "POST /api/predict",
			"predict_batch":           "POST /api/predict-batch",
			"upload_dataset":          "POST /api/upload-dataset",
			"metrics":                 "GET /api/metrics",
			"dataset_info":            "GET /api/dataset-info",
			"model_info":              "GET /api/model-info",
			"feature_importance":      "GET /api/feature-importance",
			"feature_importance_plot": "GET /api/feature-importance.png",
			"training_history":        "GET /api/training-history",
			"health":                  "GET /api/health",
			"prometheus":              "GET /metrics",
		},
	})
}

// Health reports liveness and whether a model is available. It never waits on training.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"model_trained": h.svc.IsTrained(),
		"version":       APIVersion,
	})
}

// Train fits a model on the staged dataset. An empty body trains with the defaults.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	var opts pipeline.TrainOptions
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		h.writeError(w, r, errors.NewValidationError("body", "invalid training request: "+err.Error(), nil))
		return
	}

	modelType := opts.ModelType
	if modelType == "" {
		modelType = string(pipeline.RandomForest)
	}
	start := time.Now()
	m, err := h.svc.Train(r.Context(), opts)
	if err != nil {
		h.metrics.RecordTraining(modelType, time.Since(start), 0, err)
		h.writeError(w, r, err)
		return
	}
	h.metrics.RecordTraining(string(m.ModelType), time.Since(start), m.Accuracy, nil)
	writeJSON(w, http.StatusOK, m)
}

// decodeRecord reads a flat JSON object of feature values. The required
// features must be numbers; the other candidates default to 0 and unknown
// keys are ignored.
func decodeRecord(r io.Reader) (map[string]float64, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.NewValidationError("body", "invalid prediction request: "+err.Error(), nil)
	}
	required := make(map[string]bool, len(features.RequiredFeatures))
	for _, name := range features.RequiredFeatures {
		required[name] = true
	}

	record := make(map[string]float64, len(features.CandidateFeatures))
	for _, name := range features.CandidateFeatures {
		v, ok := raw[name]
		if !ok || v == nil {
			if required[name] {
				return nil, errors.NewValidationError(name, "field required", nil)
			}
			continue
		}
		f, ok := v.(float64)
		if !ok {
			return nil, errors.NewValidationError(name, "must be a number", v)
		}
		record[name] = f
	}
	return record, nil
}

// Predict classifies the JSON record in the body.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	record, err := decodeRecord(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pred, err := h.svc.Predict(record)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.Predictions.WithLabelValues("single", pred.PredictionLabel).Inc()
	writeJSON(w, http.StatusOK, pred)
}

// formFile opens the multipart "file" field.
func (h *Handler) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, errors.NewValidationError("file", "upload exceeds size limit", tooLarge.Limit)
		}
		return nil, nil, errors.NewValidationError("file", "expected a multipart upload: "+err.Error(), nil)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.NewValidationError("file", "field required", nil)
	}
	return file, header, nil
}

// PredictBatch classifies every row of the uploaded CSV in the "file" form field.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	file, _, err := h.formFile(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer file.Close()

	preds, err := h.svc.PredictBatch(file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	for _, p := range preds {
		h.metrics.Predictions.WithLabelValues("batch", p.PredictionLabel).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": preds,
		"total_count": len(preds),
	})
}

// UploadDataset stages the uploaded CSV as the training dataset.
func (h *Handler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	file, header, err := h.formFile(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer file.Close()

	stats, err := h.svc.StageDataset(header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Metrics returns the evaluation of the current model.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Metrics()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DatasetInfo summarises the staged dataset.
func (h *Handler) DatasetInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.DatasetInfo()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ModelInfo describes the current model.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ModelInfo()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// FeatureImportance returns the importances keyed by feature name.
func (h *Handler) FeatureImportance(w http.ResponseWriter, r *http.Request) {
	kind, imp, err := h.svc.FeatureImportance()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model_type":         kind,
		"feature_importance": imp,
	})
}

// FeatureImportancePlot renders the importances as a PNG.
func (h *Handler) FeatureImportancePlot(w http.ResponseWriter, r *http.Request) {
	png, err := h.svc.FeatureImportanceChart()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}

// TrainingHistory lists recent runs, newest first. ?limit caps the count.
func (h *Handler) TrainingHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, r, errors.NewValidationError("limit", "must be a positive integer", s))
			return
		}
		limit = n
	}
	runs, err := h.svc.History(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":        runs,
		"total_count": len(runs),
	})
}
