// Package linear_model provides multinomial logistic regression.
package linear_model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/sklearn/tree"
)

// LogisticRegression is a softmax regression fitted by full-batch gradient
// descent on the mean cross entropy plus an L2 penalty of 1/(2·C·n)·‖W‖².
type LogisticRegression struct {
	State *model.StateManager

	// Learned parameters
	Coef        [][]float64 // n_classes x n_features
	Intercept   []float64
	ClassLabels []int
	NIter       int

	// Hyperparameters
	C            float64
	fitIntercept bool
	maxIter      int
	tol          float64
	learningRate float64
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		State:        model.NewStateManager(),
		C:            1.0,
		fitIntercept: true,
		maxIter:      500,
		tol:          1e-5,
		learningRate: 0.5,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the gradient tolerance for stopping
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRLearningRate sets the gradient descent step
func WithLRLearningRate(rate float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.learningRate = rate
	}
}

// IsFitted reports whether Fit has completed.
func (lr *LogisticRegression) IsFitted() bool {
	return lr.State != nil && lr.State.IsFitted()
}

// Classes returns the class labels in probability-column order.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.ClassLabels...)
}

// Fit trains the model. A ConvergenceWarning is emitted when the gradient
// is still above tol after maxIter steps.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}
	labels, err := tree.LabelsFromMatrix(y)
	if err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(labels) != nSamples {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, len(labels), 0)
	}
	if lr.State == nil {
		lr.State = model.NewStateManager()
	}
	lr.State.Reset()

	lr.extractClasses(labels)
	k := len(lr.ClassLabels)
	if k < 2 {
		return errors.NewValueError("LogisticRegression.Fit", "y must contain at least two classes")
	}
	index := make(map[int]int, k)
	for i, c := range lr.ClassLabels {
		index[c] = i
	}

	lr.Coef = make([][]float64, k)
	for c := range lr.Coef {
		lr.Coef[c] = make([]float64, nFeatures)
	}
	lr.Intercept = make([]float64, k)

	alpha := 1.0 / (lr.C * float64(nSamples))
	row := make([]float64, nFeatures)
	scores := make([]float64, k)
	gradW := make([][]float64, k)
	for c := range gradW {
		gradW[c] = make([]float64, nFeatures)
	}
	gradB := make([]float64, k)

	converged := false
	for iter := 0; iter < lr.maxIter; iter++ {
		for c := range gradW {
			for j := range gradW[c] {
				gradW[c][j] = 0
			}
			gradB[c] = 0
		}

		for i := 0; i < nSamples; i++ {
			mat.Row(row, i, X)
			lr.scores(row, scores)
			errors.Softmax(scores, scores)
			target := index[labels[i]]
			for c := 0; c < k; c++ {
				diff := scores[c]
				if c == target {
					diff -= 1
				}
				gradB[c] += diff
				for j, v := range row {
					gradW[c][j] += diff * v
				}
			}
		}

		maxGrad := 0.0
		for c := 0; c < k; c++ {
			for j := range gradW[c] {
				g := gradW[c][j]/float64(nSamples) + alpha*lr.Coef[c][j]
				lr.Coef[c][j] -= lr.learningRate * g
				maxGrad = math.Max(maxGrad, math.Abs(g))
			}
			if lr.fitIntercept {
				g := gradB[c] / float64(nSamples)
				lr.Intercept[c] -= lr.learningRate * g
				maxGrad = math.Max(maxGrad, math.Abs(g))
			}
		}
		lr.NIter = iter + 1
		if math.IsNaN(maxGrad) || math.IsInf(maxGrad, 0) {
			return errors.NewNumericalInstabilityError("LogisticRegression.Fit", []float64{maxGrad}, iter)
		}
		if maxGrad < lr.tol {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter, ""))
	}

	lr.State.SetDimensions(nFeatures, nSamples)
	lr.State.SetFitted()
	return nil
}

// extractClasses identifies unique class labels in ascending order
func (lr *LogisticRegression) extractClasses(labels []int) {
	seen := make(map[int]bool)
	lr.ClassLabels = lr.ClassLabels[:0]
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			lr.ClassLabels = append(lr.ClassLabels, l)
		}
	}
	for i := 0; i < len(lr.ClassLabels)-1; i++ {
		for j := i + 1; j < len(lr.ClassLabels); j++ {
			if lr.ClassLabels[i] > lr.ClassLabels[j] {
				lr.ClassLabels[i], lr.ClassLabels[j] = lr.ClassLabels[j], lr.ClassLabels[i]
			}
		}
	}
}

func (lr *LogisticRegression) scores(row, out []float64) {
	for c := range lr.Coef {
		s := lr.Intercept[c]
		for j, w := range lr.Coef[c] {
			s += w * row[j]
		}
		out[c] = s
	}
}

// PredictProba returns probability estimates for each class
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !lr.IsFitted() {
		return nil, errors.NewNotFittedError("LogisticRegression", "PredictProba")
	}
	nSamples, nFeatures := X.Dims()
	if err := lr.State.RequireFeatures("LogisticRegression.PredictProba", nFeatures); err != nil {
		return nil, err
	}

	k := len(lr.ClassLabels)
	probas := mat.NewDense(nSamples, k, nil)
	row := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		out := probas.RawRowView(i)
		lr.scores(row, out)
		errors.Softmax(out, out)
	}
	return probas, nil
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxLabels(proba, lr.ClassLabels), nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"learning_rate": lr.learningRate,
	}
}
