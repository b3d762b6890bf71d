// Package pipeline trains, evaluates and applies the exoplanet classifier:
// a fitted scaler, a fitted classifier and the metadata that ties them to a
// feature order.
package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/dataset"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/features"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/preprocessing"
)

// Metadata is persisted next to the fitted artifacts. LabelMapping is keyed
// by the decimal class label so that it survives JSON.
type Metadata struct {
	ModelType       ModelKind              `json:"model_type"`
	FeatureNames    []string               `json:"feature_names"`
	LabelMapping    map[string]string      `json:"label_mapping"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
	TrainedAt       time.Time              `json:"trained_at,omitempty"`
	RunID           string                 `json:"run_id,omitempty"`
}

// DefaultLabelMapping returns the class display names keyed by label.
func DefaultLabelMapping() map[string]string {
	out := make(map[string]string, len(features.ClassNames))
	for label, name := range features.ClassNames {
		out[strconv.Itoa(label)] = name
	}
	return out
}

// Pipeline is an immutable fitted unit. It is safe for concurrent use.
type Pipeline struct {
	Meta       Metadata
	Scaler     *preprocessing.StandardScaler
	Classifier model.Classifier
}

// Prediction is the result for one record.
type Prediction struct {
	Prediction      int                `json:"prediction"`
	PredictionLabel string             `json:"prediction_label"`
	Confidence      float64            `json:"confidence"`
	Probabilities   map[string]float64 `json:"probabilities"`
}

// BatchPrediction is a Prediction tagged with its input row.
type BatchPrediction struct {
	Index int `json:"index"`
	Prediction
}

// LabelName returns the display name of label.
func (p *Pipeline) LabelName(label int) string {
	if name, ok := p.Meta.LabelMapping[strconv.Itoa(label)]; ok {
		return name
	}
	return strconv.Itoa(label)
}

// Predict classifies one record. Features absent from record are 0.
func (p *Pipeline) Predict(record map[string]float64) (Prediction, error) {
	row := make([]float64, len(p.Meta.FeatureNames))
	for j, name := range p.Meta.FeatureNames {
		row[j] = record[name]
	}
	out, err := p.predictMatrix(mat.NewDense(1, len(row), row))
	if err != nil {
		return Prediction{}, err
	}
	return out[0], nil
}

// PredictBatch classifies every row of f. A missing feature column fails the
// whole batch; empty cells are 0.
func (p *Pipeline) PredictBatch(f *dataset.Frame) ([]BatchPrediction, error) {
	if missing := f.MissingColumns(p.Meta.FeatureNames); len(missing) > 0 {
		return nil, errors.NewSchemaError("predict-batch", "missing feature columns", missing...)
	}
	n := f.NRows()
	if n == 0 {
		return []BatchPrediction{}, nil
	}

	X := mat.NewDense(n, len(p.Meta.FeatureNames), nil)
	for j, name := range p.Meta.FeatureNames {
		col := f.Index(name)
		for i := 0; i < n; i++ {
			cell := f.Cell(i, col)
			if dataset.IsMissing(cell) {
				continue
			}
			v, err := dataset.ParseNumber(cell)
			if err != nil || math.IsInf(v, 0) {
				return nil, errors.NewValidationError(name, fmt.Sprintf("non-numeric value at row %d", i), cell)
			}
			X.Set(i, j, v)
		}
	}

	preds, err := p.predictMatrix(X)
	if err != nil {
		return nil, err
	}
	out := make([]BatchPrediction, n)
	for i, pr := range preds {
		out[i] = BatchPrediction{Index: i, Prediction: pr}
	}
	return out, nil
}

func (p *Pipeline) predictMatrix(X *mat.Dense) ([]Prediction, error) {
	scaled, err := p.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	proba, err := p.Classifier.PredictProba(scaled)
	if err != nil {
		return nil, err
	}
	classes := p.Classifier.Classes()
	r, c := proba.Dims()

	out := make([]Prediction, r)
	for i := 0; i < r; i++ {
		probs := make(map[string]float64, len(features.Classes))
		for _, label := range features.Classes {
			probs[p.LabelName(label)] = 0
		}
		best := 0
		for j := 0; j < c; j++ {
			v := proba.At(i, j)
			probs[p.LabelName(classes[j])] = v
			if v > proba.At(i, best) {
				best = j
			}
		}
		out[i] = Prediction{
			Prediction:      classes[best],
			PredictionLabel: p.LabelName(classes[best]),
			Confidence:      proba.At(i, best),
			Probabilities:   probs,
		}
	}
	return out, nil
}

// FeatureImportance returns the normalised importance of each feature.
func (p *Pipeline) FeatureImportance() (map[string]float64, error) {
	fi, ok := p.Classifier.(model.FeatureImportancer)
	if !ok || !p.Meta.ModelType.HasFeatureImportance() {
		return nil, errors.NewValidationError("model_type",
			fmt.Sprintf("feature importance not supported for %s", p.Meta.ModelType), nil)
	}
	imp := fi.FeatureImportances()
	if len(imp) != len(p.Meta.FeatureNames) {
		return nil, errors.NewDimensionError("FeatureImportance", len(p.Meta.FeatureNames), len(imp), 1)
	}
	out := make(map[string]float64, len(imp))
	for j, name := range p.Meta.FeatureNames {
		out[name] = imp[j]
	}
	return out, nil
}
