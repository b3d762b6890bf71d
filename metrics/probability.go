package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// probaEps clips probabilities away from 0 and 1 before taking logs.
const probaEps = 1e-15

// checkProba validates an n×k probability matrix against yTrue and returns
// the column of each true label.
func checkProba(op string, yTrue *mat.VecDense, proba mat.Matrix, classes []int) ([]int, error) {
	if yTrue == nil || yTrue.Len() == 0 {
		return nil, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	r, c := proba.Dims()
	if r != n {
		return nil, errors.NewDimensionError(op, n, r, 0)
	}
	if c != len(classes) {
		return nil, errors.NewDimensionError(op, len(classes), c, 1)
	}

	column := make(map[int]int, len(classes))
	for j, label := range classes {
		column[label] = j
	}
	cols := make([]int, n)
	for i := 0; i < n; i++ {
		j, ok := column[int(yTrue.AtVec(i))]
		if !ok {
			return nil, errors.NewValueError(op, "y_true contains a label absent from classes")
		}
		cols[i] = j
	}
	return cols, nil
}

// LogLoss is the mean negative log-likelihood of the true labels. Column j
// of proba holds the probability of classes[j]; rows are renormalised after
// clipping.
func LogLoss(yTrue *mat.VecDense, proba mat.Matrix, classes []int) (float64, error) {
	cols, err := checkProba("LogLoss", yTrue, proba, classes)
	if err != nil {
		return 0, err
	}
	_, k := proba.Dims()

	var sum float64
	for i, col := range cols {
		var rowSum float64
		for j := 0; j < k; j++ {
			rowSum += errors.ClipValue(proba.At(i, j), probaEps, 1-probaEps)
		}
		p := errors.ClipValue(proba.At(i, col), probaEps, 1-probaEps) / rowSum
		sum -= math.Log(p)
	}
	return sum / float64(len(cols)), nil
}

// BrierScore is the mean squared distance between each probability row and
// the one-hot encoding of its true label, summed over classes.
func BrierScore(yTrue *mat.VecDense, proba mat.Matrix, classes []int) (float64, error) {
	cols, err := checkProba("BrierScore", yTrue, proba, classes)
	if err != nil {
		return 0, err
	}
	_, k := proba.Dims()

	var sum float64
	for i, col := range cols {
		for j := 0; j < k; j++ {
			target := 0.0
			if j == col {
				target = 1
			}
			d := proba.At(i, j) - target
			sum += d * d
		}
	}
	return sum / float64(len(cols)), nil
}
