package ensemble

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/core/parallel"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
	"github.com/YuminosukeSato/exoplanet-classifier/sklearn/tree"
)

// Boosting objectives.
const (
	// ObjectiveSoftmax fits second-order trees on the multinomial log loss,
	// starting from a zero margin, with L2 leaf regularisation.
	ObjectiveSoftmax = "softmax"
	// ObjectiveDeviance fits least-squares trees on the residuals y-p,
	// starting from the log class priors, with a one-step Newton leaf.
	ObjectiveDeviance = "deviance"
)

// GradientBoostingClassifier fits one regression tree per class and round on
// the gradients of the multinomial log loss.
type GradientBoostingClassifier struct {
	State        *model.StateManager
	Trees        [][]*tree.GradientTree // [round][class]
	InitScores   []float64
	LearningRate float64
	Objective    string
	ClassLabels  []int
	Importances  []float64

	nEstimators    int
	maxDepth       int
	minSamplesLeaf int
	minChildWeight float64
	lambda         float64
	randomState    int64
}

// BoostingOption configures a GradientBoostingClassifier.
type BoostingOption func(*GradientBoostingClassifier)

// WithBoostingRounds sets the number of boosting rounds.
func WithBoostingRounds(n int) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.nEstimators = n }
}

// WithBoostingMaxDepth limits the depth of every tree.
func WithBoostingMaxDepth(depth int) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.maxDepth = depth }
}

// WithLearningRate sets the shrinkage applied to every tree.
func WithLearningRate(lr float64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.LearningRate = lr }
}

// WithObjective selects ObjectiveSoftmax or ObjectiveDeviance.
func WithObjective(objective string) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.Objective = objective }
}

// WithLambda sets the L2 leaf regularisation of the softmax objective.
func WithLambda(lambda float64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.lambda = lambda }
}

// WithMinChildWeight sets the minimum hessian sum per child.
func WithMinChildWeight(w float64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.minChildWeight = w }
}

// WithBoostingMinSamplesLeaf sets the minimum samples per leaf.
func WithBoostingMinSamplesLeaf(n int) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.minSamplesLeaf = n }
}

// WithBoostingRandomState is recorded for reproducibility reporting. Fitting
// uses every row and every feature, so it is deterministic regardless.
func WithBoostingRandomState(seed int64) BoostingOption {
	return func(gb *GradientBoostingClassifier) { gb.randomState = seed }
}

// NewGradientBoostingClassifier creates a booster with 100 rounds of depth 3
// trees and the softmax objective.
func NewGradientBoostingClassifier(opts ...BoostingOption) *GradientBoostingClassifier {
	gb := &GradientBoostingClassifier{
		State:          model.NewStateManager(),
		LearningRate:   0.1,
		Objective:      ObjectiveSoftmax,
		nEstimators:    100,
		maxDepth:       3,
		minSamplesLeaf: 1,
		minChildWeight: 1,
		lambda:         1,
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

// IsFitted reports whether Fit has completed.
func (gb *GradientBoostingClassifier) IsFitted() bool {
	return gb.State != nil && gb.State.IsFitted()
}

// Classes returns the class labels in probability-column order.
func (gb *GradientBoostingClassifier) Classes() []int {
	return append([]int(nil), gb.ClassLabels...)
}

func (gb *GradientBoostingClassifier) validate() error {
	switch {
	case gb.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be at least 1", gb.nEstimators)
	case gb.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", gb.LearningRate)
	case gb.Objective != ObjectiveSoftmax && gb.Objective != ObjectiveDeviance:
		return errors.NewValidationError("objective", "must be softmax or deviance", gb.Objective)
	case gb.lambda < 0:
		return errors.NewValidationError("lambda", "must be non-negative", gb.lambda)
	}
	return nil
}

// Fit runs the boosting rounds.
func (gb *GradientBoostingClassifier) Fit(X, y mat.Matrix) error {
	if err := gb.validate(); err != nil {
		return err
	}
	labels, err := tree.LabelsFromMatrix(y)
	if err != nil {
		return err
	}
	n, nFeatures := X.Dims()
	if n == 0 || nFeatures == 0 {
		return errors.NewModelError("GradientBoostingClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(labels) != n {
		return errors.NewDimensionError("GradientBoostingClassifier.Fit", n, len(labels), 0)
	}
	if gb.State == nil {
		gb.State = model.NewStateManager()
	}
	gb.State.Reset()

	classes := sortedUnique(labels)
	k := len(classes)
	if k < 2 {
		return errors.NewValueError("GradientBoostingClassifier.Fit", "y must contain at least two classes")
	}
	index := make(map[int]int, k)
	for i, c := range classes {
		index[c] = i
	}
	target := make([]int, n)
	for i, l := range labels {
		target[i] = index[l]
	}

	cols := tree.Columns(X)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	sorted := tree.Presort(cols, all)

	init := make([]float64, k)
	if gb.Objective == ObjectiveDeviance {
		counts := make([]float64, k)
		for _, t := range target {
			counts[t]++
		}
		for c := range init {
			init[c] = math.Log(counts[c] / float64(n))
		}
	}

	// raw scores, row-major n×k
	raw := make([]float64, n*k)
	for i := 0; i < n; i++ {
		copy(raw[i*k:(i+1)*k], init)
	}
	proba := make([]float64, n*k)

	lambda, minChild := gb.lambda, gb.minChildWeight
	if gb.Objective == ObjectiveDeviance {
		lambda, minChild = 0, 0
	}

	logger := log.GetLoggerWithName("ensemble")
	start := time.Now()
	rounds := make([][]*tree.GradientTree, 0, gb.nEstimators)
	for m := 0; m < gb.nEstimators; m++ {
		for i := 0; i < n; i++ {
			errors.Softmax(raw[i*k:(i+1)*k], proba[i*k:(i+1)*k])
		}

		round := make([]*tree.GradientTree, k)
		err := parallel.ParallelizeErr(k, func(lo, hi int) error {
			for c := lo; c < hi; c++ {
				t, err := gb.fitClassTree(cols, sorted, target, proba, c, k, lambda, minChild)
				if err != nil {
					return err
				}
				round[c] = t
			}
			return nil
		})
		if err != nil {
			return errors.NewModelError("GradientBoostingClassifier.Fit", "tree fitting failed", err)
		}

		row := make([]float64, nFeatures)
		for i := 0; i < n; i++ {
			for j := range row {
				row[j] = cols[j][i]
			}
			for c, t := range round {
				raw[i*k+c] += gb.LearningRate * t.PredictRow(row)
			}
		}
		if err := errors.CheckMatrix("GradientBoostingClassifier.Fit", mat.NewDense(n, k, raw), n, k, m); err != nil {
			return err
		}
		rounds = append(rounds, round)
	}

	gb.Trees = rounds
	gb.InitScores = init
	gb.ClassLabels = classes
	gb.Importances = gainImportances(rounds, nFeatures)
	gb.State.SetDimensions(nFeatures, n)
	gb.State.SetFitted()

	logger.Debug("Gradient boosting fitted",
		log.ModelNameKey, "GradientBoostingClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, k,
		"objective", gb.Objective,
		"rounds", gb.nEstimators,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (gb *GradientBoostingClassifier) fitClassTree(cols [][]float64, sorted [][]int, target []int, proba []float64, c, k int, lambda, minChild float64) (*tree.GradientTree, error) {
	n := len(target)
	grad := make([]float64, n)
	hess := make([]float64, n)
	var leaf tree.LeafFunc

	switch gb.Objective {
	case ObjectiveSoftmax:
		for i := 0; i < n; i++ {
			p := proba[i*k+c]
			yc := 0.0
			if target[i] == c {
				yc = 1
			}
			grad[i] = p - yc
			hess[i] = math.Max(2*p*(1-p), 1e-16)
		}
	case ObjectiveDeviance:
		resid := make([]float64, n)
		for i := 0; i < n; i++ {
			yc := 0.0
			if target[i] == c {
				yc = 1
			}
			resid[i] = yc - proba[i*k+c]
			grad[i] = -resid[i]
			hess[i] = 1
		}
		scale := float64(k-1) / float64(k)
		leaf = func(samples []int) float64 {
			var num, den float64
			for _, s := range samples {
				r := resid[s]
				num += r
				den += math.Abs(r) * (1 - math.Abs(r))
			}
			if den < 1e-150 {
				return 0
			}
			return scale * num / den
		}
	}

	t := &tree.GradientTree{
		MaxDepth:       gb.maxDepth,
		MinSamplesLeaf: gb.minSamplesLeaf,
		MinChildWeight: minChild,
		Lambda:         lambda,
	}
	if err := t.FitGradients(cols, sorted, grad, hess, leaf); err != nil {
		return nil, err
	}
	return t, nil
}

// DecisionFunction returns the raw per-class scores.
func (gb *GradientBoostingClassifier) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if !gb.IsFitted() {
		return nil, errors.NewNotFittedError("GradientBoostingClassifier", "DecisionFunction")
	}
	r, c := X.Dims()
	if err := gb.State.RequireFeatures("GradientBoostingClassifier.DecisionFunction", c); err != nil {
		return nil, err
	}
	k := len(gb.ClassLabels)
	out := mat.NewDense(r, k, nil)
	parallel.ParallelizeWithThreshold(r, 64, func(start, end int) {
		row := make([]float64, c)
		scores := make([]float64, k)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			copy(scores, gb.InitScores)
			for _, round := range gb.Trees {
				for cls, t := range round {
					scores[cls] += gb.LearningRate * t.PredictRow(row)
				}
			}
			out.SetRow(i, scores)
		}
	})
	return out, nil
}

// PredictProba returns the softmax of the raw scores.
func (gb *GradientBoostingClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := gb.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	d := scores.(*mat.Dense)
	r, _ := d.Dims()
	for i := 0; i < r; i++ {
		row := d.RawRowView(i)
		errors.Softmax(row, row)
	}
	return d, nil
}

// Predict returns the most probable class of each row.
func (gb *GradientBoostingClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxLabels(proba, gb.ClassLabels), nil
}

// FeatureImportances returns the normalised total split gain per feature.
func (gb *GradientBoostingClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), gb.Importances...)
}

// GetParams returns the hyperparameters.
func (gb *GradientBoostingClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     gb.nEstimators,
		"max_depth":        gb.maxDepth,
		"learning_rate":    gb.LearningRate,
		"objective":        gb.Objective,
		"lambda":           gb.lambda,
		"min_child_weight": gb.minChildWeight,
		"min_samples_leaf": gb.minSamplesLeaf,
		"random_state":     gb.randomState,
	}
}

func gainImportances(rounds [][]*tree.GradientTree, nFeatures int) []float64 {
	imp := make([]float64, nFeatures)
	for _, round := range rounds {
		for _, t := range round {
			for j, g := range t.Gains {
				imp[j] += g
			}
		}
	}
	sum := 0.0
	for _, v := range imp {
		sum += v
	}
	for j := range imp {
		imp[j] = errors.SafeDivide(imp[j], sum)
	}
	return imp
}
