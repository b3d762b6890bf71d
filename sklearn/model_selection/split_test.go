package model_selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

func labelled(counts ...int) (*mat.Dense, *mat.VecDense) {
	n := 0
	for _, c := range counts {
		n += c
	}
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	r := 0
	for label, c := range counts {
		for i := 0; i < c; i++ {
			X.Set(r, 0, float64(r))
			X.Set(r, 1, float64(label))
			y.SetVec(r, float64(label))
			r++
		}
	}
	return X, y
}

func classCounts(y *mat.VecDense) map[int]int {
	out := make(map[int]int)
	for i := 0; i < y.Len(); i++ {
		out[int(y.AtVec(i))]++
	}
	return out
}

func TestTrainTestSplitStratified(t *testing.T) {
	tests := []struct {
		name      string
		counts    []int
		testSize  float64
		wantTest  int
		wantPerCl map[int]int
	}{
		{"balanced 300", []int{100, 100, 100}, 0.2, 60, map[int]int{0: 20, 1: 20, 2: 20}},
		{"ceil rounding", []int{5, 5, 5}, 0.25, 4, nil},
		{"imbalanced", []int{50, 30, 20}, 0.3, 30, map[int]int{0: 15, 1: 9, 2: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X, y := labelled(tt.counts...)
			split, err := TrainTestSplit(X, y, tt.testSize, 42)
			require.NoError(t, err)

			n, _ := X.Dims()
			assert.Len(t, split.TestIndices, tt.wantTest)
			assert.Len(t, split.TrainIndices, n-tt.wantTest)
			if tt.wantPerCl != nil {
				assert.Equal(t, tt.wantPerCl, classCounts(split.YTest))
			}

			seen := make(map[int]bool)
			for _, i := range append(append([]int(nil), split.TrainIndices...), split.TestIndices...) {
				assert.False(t, seen[i], "row %d used twice", i)
				seen[i] = true
			}
			assert.Len(t, seen, n)

			for i, idx := range split.TestIndices {
				assert.Equal(t, float64(idx), split.XTest.At(i, 0))
				assert.Equal(t, y.AtVec(idx), split.YTest.AtVec(i))
			}
		})
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	X, y := labelled(40, 40, 40)
	a, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)
	b, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, a.TestIndices, b.TestIndices)

	c, err := TrainTestSplit(X, y, 0.2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a.TestIndices, c.TestIndices)
}

func TestTrainTestSplitErrors(t *testing.T) {
	X, y := labelled(10, 10)

	for _, ts := range []float64{0, 1, -0.5, 1.5} {
		_, err := TrainTestSplit(X, y, ts, 42)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve), "test_size %v", ts)
	}

	X1, y1 := labelled(10, 1)
	_, err := TrainTestSplit(X1, y1, 0.3, 42)
	var val *errors.ValueError
	assert.True(t, errors.As(err, &val))

	Xs, ys := labelled(3, 3, 3)
	_, err = TrainTestSplit(Xs, ys, 0.1, 42)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve), "one test row cannot hold three classes")
}
