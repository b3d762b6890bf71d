package linear_model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

func TestLogisticRegression_FitPredict_Binary(t *testing.T) {
	// Class 0 around (1, 1), class 1 around (3, 3)
	X := mat.NewDense(6, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	lr := NewLogisticRegression(WithLRMaxIter(2000), WithLRC(100))
	require.NoError(t, lr.Fit(X, y))

	predictions, err := lr.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.Equal(t, y.At(i, 0), predictions.At(i, 0), "sample %d", i)
	}

	XTest := mat.NewDense(2, 2, []float64{1.0, 1.0, 3.0, 3.0})
	testPreds, err := lr.Predict(XTest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, testPreds.At(0, 0))
	assert.Equal(t, 1.0, testPreds.At(1, 0))
}

func TestLogisticRegression_Multiclass(t *testing.T) {
	// One-hot style scores, as produced by a one-vs-rest decision function
	X := mat.NewDense(9, 3, []float64{
		1, -1, -1,
		0.8, -0.9, -1.1,
		1.2, -1, -0.8,
		-1, 1, -1,
		-0.9, 0.7, -1,
		-1.1, 1.3, -0.9,
		-1, -1, 1,
		-0.8, -1, 0.9,
		-1, -1.2, 1.1,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, []int{0, 1, 2}, lr.Classes())
	assert.Equal(t, 1.0, lr.Score(X, y))

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	require.Equal(t, 9, r)
	require.Equal(t, 3, c)
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1)+proba.At(i, 2), 1e-9)
	}
	assert.Greater(t, proba.At(0, 0), proba.At(0, 1))
	assert.Greater(t, proba.At(8, 2), proba.At(8, 0))
}

func TestLogisticRegression_ConvergenceWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	lr := NewLogisticRegression(WithLRMaxIter(1))
	require.NoError(t, lr.Fit(X, y))

	require.Len(t, warnings, 1)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &cw))
	assert.Equal(t, 1, lr.NIter)
}

func TestLogisticRegression_Errors(t *testing.T) {
	lr := NewLogisticRegression()
	_, err := lr.PredictProba(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	err = lr.Fit(X, mat.NewDense(3, 1, []float64{1, 1, 1}))
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))

	err = NewLogisticRegression(WithLRC(0)).Fit(X, mat.NewDense(3, 1, []float64{0, 1, 1}))
	var val *errors.ValidationError
	assert.True(t, errors.As(err, &val))
}
