package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLogLoss(t *testing.T) {
	classes := []int{0, 1, 2}
	tests := []struct {
		name  string
		yTrue []float64
		proba []float64
		want  float64
	}{
		{
			name:  "perfect",
			yTrue: []float64{0, 2},
			proba: []float64{1, 0, 0, 0, 0, 1},
			want:  0,
		},
		{
			name:  "uniform",
			yTrue: []float64{0, 1, 2},
			proba: []float64{1. / 3, 1. / 3, 1. / 3, 1. / 3, 1. / 3, 1. / 3, 1. / 3, 1. / 3, 1. / 3},
			want:  math.Log(3),
		},
		{
			name:  "mixed",
			yTrue: []float64{1, 0},
			proba: []float64{0.2, 0.5, 0.3, 0.8, 0.1, 0.1},
			want:  -(math.Log(0.5) + math.Log(0.8)) / 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.yTrue)
			got, err := LogLoss(mat.NewVecDense(n, tt.yTrue), mat.NewDense(n, 3, tt.proba), classes)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestLogLossClipsZeros(t *testing.T) {
	got, err := LogLoss(mat.NewVecDense(1, []float64{1}), mat.NewDense(1, 3, []float64{1, 0, 0}), []int{0, 1, 2})
	require.NoError(t, err)
	assert.False(t, math.IsInf(got, 0))
	assert.InDelta(t, -math.Log(probaEps), got, 1e-6)
}

func TestBrierScore(t *testing.T) {
	yTrue := mat.NewVecDense(2, []float64{1, 0})
	proba := mat.NewDense(2, 3, []float64{0.2, 0.5, 0.3, 0.8, 0.1, 0.1})
	got, err := BrierScore(yTrue, proba, []int{0, 1, 2})
	require.NoError(t, err)
	// (0.04 + 0.25 + 0.09 + 0.04 + 0.01 + 0.01) / 2
	assert.InDelta(t, 0.22, got, 1e-12)
}

func TestProbabilityMetricErrors(t *testing.T) {
	classes := []int{0, 1, 2}
	_, err := LogLoss(&mat.VecDense{}, mat.NewDense(1, 3, nil), classes)
	assert.Error(t, err)
	_, err = LogLoss(mat.NewVecDense(2, []float64{0, 1}), mat.NewDense(1, 3, nil), classes)
	assert.Error(t, err)
	_, err = BrierScore(mat.NewVecDense(1, []float64{0}), mat.NewDense(1, 2, nil), classes)
	assert.Error(t, err)
	_, err = BrierScore(mat.NewVecDense(1, []float64{7}), mat.NewDense(1, 3, nil), classes)
	assert.Error(t, err)
}
