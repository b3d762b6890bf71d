// Package svm provides a support vector classifier with an RBF kernel.
//
// Multiclass problems are decomposed one-vs-rest. Each binary dual is solved
// with SMO, and class probabilities come from a multinomial logistic model
// fitted on the decision values.
package svm

import (
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/core/parallel"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
	"github.com/YuminosukeSato/exoplanet-classifier/sklearn/linear_model"
	"github.com/YuminosukeSato/exoplanet-classifier/sklearn/tree"
)

// Gamma modes.
const (
	GammaScale = "scale" // 1 / (n_features · Var(X))
	GammaAuto  = "auto"  // 1 / n_features
)

// SVC is a kernel support vector classifier.
type SVC struct {
	State          *model.StateManager
	SupportVectors [][]float64
	DualCoef       [][]float64 // [class][support vector], α·y
	Rho            []float64
	Gamma          float64
	ClassLabels    []int
	NIter          []int
	Calibrator     *linear_model.LogisticRegression

	c           float64
	gamma       string
	tol         float64
	maxIter     int
	cacheRows   int
	randomState int64
}

// Option configures an SVC.
type Option func(*SVC)

// WithC sets the penalty parameter.
func WithC(c float64) Option {
	return func(s *SVC) { s.c = c }
}

// WithGamma sets the kernel coefficient: "scale", "auto" or a positive number.
func WithGamma(gamma string) Option {
	return func(s *SVC) { s.gamma = gamma }
}

// WithTol sets the KKT gap at which SMO stops.
func WithTol(tol float64) Option {
	return func(s *SVC) { s.tol = tol }
}

// WithMaxIter caps SMO iterations per binary subproblem.
func WithMaxIter(n int) Option {
	return func(s *SVC) { s.maxIter = n }
}

// WithCacheRows sets how many kernel rows are kept in memory.
func WithCacheRows(n int) Option {
	return func(s *SVC) { s.cacheRows = n }
}

// WithRandomState records a seed. SMO with maximal violating pairs is deterministic.
func WithRandomState(seed int64) Option {
	return func(s *SVC) { s.randomState = seed }
}

// NewSVC creates an SVC with C=1 and gamma="scale".
func NewSVC(opts ...Option) *SVC {
	s := &SVC{
		State:     model.NewStateManager(),
		c:         1,
		gamma:     GammaScale,
		tol:       1e-3,
		maxIter:   200000,
		cacheRows: 512,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsFitted reports whether Fit has completed.
func (s *SVC) IsFitted() bool {
	return s.State != nil && s.State.IsFitted()
}

// Classes returns the class labels in probability-column order.
func (s *SVC) Classes() []int {
	return append([]int(nil), s.ClassLabels...)
}

func (s *SVC) resolveGamma(X mat.Matrix) (float64, error) {
	_, d := X.Dims()
	switch s.gamma {
	case GammaScale:
		r, _ := X.Dims()
		all := make([]float64, 0, r*d)
		for i := 0; i < r; i++ {
			for j := 0; j < d; j++ {
				all = append(all, X.At(i, j))
			}
		}
		_, variance := stat.PopMeanVariance(all, nil)
		if variance <= 0 {
			return 1, nil
		}
		return 1 / (float64(d) * variance), nil
	case GammaAuto:
		return 1 / float64(d), nil
	}
	g, err := strconv.ParseFloat(s.gamma, 64)
	if err != nil || g <= 0 {
		return 0, errors.NewValidationError("gamma", "must be scale, auto or a positive number", s.gamma)
	}
	return g, nil
}

// Fit solves one binary SVM per class and calibrates the decision values.
func (s *SVC) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "SVC.Fit")

	if s.c <= 0 {
		return errors.NewValidationError("C", "must be positive", s.c)
	}
	labels, err := tree.LabelsFromMatrix(y)
	if err != nil {
		return err
	}
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return errors.NewModelError("SVC.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(labels) != n {
		return errors.NewDimensionError("SVC.Fit", n, len(labels), 0)
	}
	if err := errors.CheckMatrix("SVC.Fit", X, n, d, 0); err != nil {
		return err
	}
	gamma, err := s.resolveGamma(X)
	if err != nil {
		return err
	}
	if s.State == nil {
		s.State = model.NewStateManager()
	}
	s.State.Reset()

	classes := uniqueSorted(labels)
	if len(classes) < 2 {
		return errors.NewValueError("SVC.Fit", "y must contain at least two classes")
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}
	kernel, err := newRBFKernel(rows, gamma, s.cacheRows)
	if err != nil {
		return errors.Wrap(err, "kernel cache")
	}

	start := time.Now()
	solutions := make([]binarySolution, len(classes))
	signs := make([][]float64, len(classes))
	err = parallel.ParallelizeErr(len(classes), func(lo, hi int) error {
		for c := lo; c < hi; c++ {
			yc := make([]float64, n)
			for i, l := range labels {
				if l == classes[c] {
					yc[i] = 1
				} else {
					yc[i] = -1
				}
			}
			p := &binaryProblem{kernel: kernel, y: yc, c: s.c, eps: s.tol, maxIter: s.maxIter}
			solutions[c] = p.solve()
			signs[c] = yc
		}
		return nil
	})
	if err != nil {
		return errors.NewModelError("SVC.Fit", "smo failed", err)
	}

	// union of support vectors across the subproblems
	var support []int
	for i := 0; i < n; i++ {
		for _, sol := range solutions {
			if sol.alpha[i] > 0 {
				support = append(support, i)
				break
			}
		}
	}
	s.SupportVectors = make([][]float64, len(support))
	for k, i := range support {
		s.SupportVectors[k] = rows[i]
	}
	s.DualCoef = make([][]float64, len(classes))
	s.Rho = make([]float64, len(classes))
	s.NIter = make([]int, len(classes))
	for c, sol := range solutions {
		s.DualCoef[c] = make([]float64, len(support))
		for k, i := range support {
			s.DualCoef[c][k] = sol.alpha[i] * signs[c][i]
		}
		s.Rho[c] = sol.rho
		s.NIter[c] = sol.iter
		if !sol.converged {
			errors.Warn(errors.NewConvergenceWarning("SVC",
				sol.iter, "one-vs-rest subproblem for class "+strconv.Itoa(classes[c])+" hit max_iter"))
		}
	}
	s.Gamma = gamma
	s.ClassLabels = classes
	s.State.SetDimensions(d, n)

	decision, err := s.decision(X)
	if err != nil {
		return err
	}
	calibrator := linear_model.NewLogisticRegression(
		linear_model.WithLRMaxIter(1000),
		linear_model.WithLRTol(1e-4),
	)
	if err := calibrator.Fit(decision, y); err != nil {
		return errors.NewModelError("SVC.Fit", "probability calibration failed", err)
	}
	s.Calibrator = calibrator
	s.State.SetFitted()

	log.GetLoggerWithName("svm").Debug("SVC fitted",
		log.ModelNameKey, "SVC",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.ClassesKey, len(classes),
		"n_support", len(support),
		"gamma", gamma,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *SVC) decision(X mat.Matrix) (*mat.Dense, error) {
	r, d := X.Dims()
	if err := s.State.RequireFeatures("SVC.DecisionFunction", d); err != nil {
		return nil, err
	}
	k := len(s.ClassLabels)
	out := mat.NewDense(r, k, nil)
	parallel.ParallelizeWithThreshold(r, 32, func(start, end int) {
		row := make([]float64, d)
		kv := make([]float64, len(s.SupportVectors))
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			for j, sv := range s.SupportVectors {
				kv[j] = rbf(row, sv, s.Gamma)
			}
			for c := 0; c < k; c++ {
				out.Set(i, c, dot(s.DualCoef[c], kv)-s.Rho[c])
			}
		}
	})
	return out, nil
}

// DecisionFunction returns the one-vs-rest decision values, one column per class.
func (s *SVC) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("SVC", "DecisionFunction")
	}
	return s.decision(X)
}

// PredictProba returns calibrated class probabilities.
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("SVC", "PredictProba")
	}
	decision, err := s.decision(X)
	if err != nil {
		return nil, err
	}
	return s.Calibrator.PredictProba(decision)
}

// Predict returns the most probable class, consistent with PredictProba.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := s.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxLabels(proba, s.ClassLabels), nil
}

// NSupport returns the number of distinct support vectors.
func (s *SVC) NSupport() int {
	return len(s.SupportVectors)
}

// GetParams returns the hyperparameters.
func (s *SVC) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":            s.c,
		"gamma":        s.gamma,
		"tol":          s.tol,
		"max_iter":     s.maxIter,
		"cache_rows":   s.cacheRows,
		"random_state": s.randomState,
	}
}

func uniqueSorted(labels []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
