package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// SimpleImputer replaces NaN cells with a per-column statistic learned from
// the non-missing values of the fitting data.
type SimpleImputer struct {
	State *model.StateManager

	// Strategy is "median" or "mean".
	Strategy string

	// Statistics holds the fill value of each column.
	Statistics []float64
}

// NewSimpleImputer creates an imputer for strategy ("median" or "mean").
func NewSimpleImputer(strategy string) *SimpleImputer {
	return &SimpleImputer{State: model.NewStateManager(), Strategy: strategy}
}

// IsFitted reports whether Fit has completed.
func (im *SimpleImputer) IsFitted() bool {
	return im.State != nil && im.State.IsFitted()
}

// Fit computes the fill value of each column. A column with no observed
// values cannot be imputed and is reported as a ValueError naming its index.
func (im *SimpleImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	if im.State == nil {
		im.State = model.NewStateManager()
	}
	im.State.Reset()

	im.Statistics = make([]float64, c)
	observed := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		observed = observed[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			return errors.NewValueError("SimpleImputer.Fit", fmt.Sprintf("column %d has no observed values", j))
		}

		switch im.Strategy {
		case "", "median":
			im.Statistics[j] = Median(observed)
		case "mean":
			sum := 0.0
			for _, v := range observed {
				sum += v
			}
			im.Statistics[j] = sum / float64(len(observed))
		default:
			return errors.NewValidationError("strategy", "must be median or mean", im.Strategy)
		}
	}

	im.State.SetDimensions(c, r)
	im.State.SetFitted()
	return nil
}

// Transform returns a copy of X with NaN cells replaced.
func (im *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := im.State.RequireFitted("SimpleImputer", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := im.State.RequireFeatures("SimpleImputer.Transform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		if math.IsNaN(v) {
			return im.Statistics[j]
		}
		return v
	}, X)
	return result, nil
}

// FitTransform fits on X and returns the imputed copy.
func (im *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := im.Fit(X); err != nil {
		return nil, err
	}
	return im.Transform(X)
}

// Median returns the median of values, averaging the two middle elements for
// even lengths. values is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
