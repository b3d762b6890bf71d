package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		1, 10, 5,
		2, 20, 5,
		3, 30, 5,
		4, 40, 5,
	})

	scaler := NewStandardScalerDefault()
	out, err := scaler.FitTransform(X)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{2.5, 25, 5}, scaler.Mean, 1e-12)
	// population std of 1..4 is sqrt(1.25)
	assert.InDelta(t, math.Sqrt(1.25), scaler.Scale[0], 1e-12)
	assert.Equal(t, 1.0, scaler.Scale[2], "constant column keeps unit scale")

	r, c := out.Dims()
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += out.At(i, j)
		}
		assert.InDelta(t, 0, sum/float64(r), 1e-12)
	}
	assert.Equal(t, 0.0, out.At(0, 2))

	back, err := scaler.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-9))
}

func TestStandardScalerErrors(t *testing.T) {
	scaler := NewStandardScalerDefault()

	_, err := scaler.Transform(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	require.NoError(t, scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = scaler.Transform(mat.NewDense(1, 3, nil))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	err = scaler.Fit(mat.NewDense(1, 1, []float64{math.NaN()}))
	var ni *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &ni))
}

func TestStandardScalerSurvivesGob(t *testing.T) {
	scaler := NewStandardScalerDefault()
	require.NoError(t, scaler.Fit(mat.NewDense(3, 1, []float64{1, 2, 3})))

	path := t.TempDir() + "/scaler.gob"
	require.NoError(t, model.SaveModel(scaler, path))

	var loaded StandardScaler
	require.NoError(t, model.LoadModel(&loaded, path))
	require.True(t, loaded.IsFitted())

	x := mat.NewDense(1, 1, []float64{3})
	want, err := scaler.Transform(x)
	require.NoError(t, err)
	got, err := loaded.Transform(x)
	require.NoError(t, err)
	assert.Equal(t, want.At(0, 0), got.At(0, 0))
}

func TestSimpleImputerMedian(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(4, 2, []float64{
		1, nan,
		nan, 4,
		3, 2,
		10, nan,
	})

	imp := NewSimpleImputer("median")
	out, err := imp.FitTransform(X)
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 3}, imp.Statistics)
	assert.Equal(t, 3.0, out.At(1, 0))
	assert.Equal(t, 3.0, out.At(0, 1))
	assert.Equal(t, 10.0, out.At(3, 0))
}

func TestSimpleImputerAllMissingColumn(t *testing.T) {
	nan := math.NaN()
	imp := NewSimpleImputer("median")
	err := imp.Fit(mat.NewDense(2, 2, []float64{1, nan, 2, nan}))

	var ve *errors.ValueError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Message, "column 1")
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{5}, 5},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Median(tt.in))
	}
	assert.True(t, math.IsNaN(Median(nil)))
}
