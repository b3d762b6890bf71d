package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is implemented by supervised estimators.
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor returns one predicted label per row as an n×1 matrix.
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier is a fitted-or-fittable probabilistic classifier.
type Classifier interface {
	Fitter
	Predictor

	// PredictProba returns an n×k matrix whose columns follow Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted class labels seen during fitting.
	Classes() []int

	IsFitted() bool
}

// Transformer learns a column-wise transform from X alone.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// FeatureImportancer exposes normalised impurity or gain importances.
type FeatureImportancer interface {
	FeatureImportances() []float64
}

// ParameterGetter exposes hyperparameters for logging and metadata.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}
