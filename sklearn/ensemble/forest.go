// Package ensemble provides tree ensembles: a bagged random forest and a
// gradient boosted classifier with two loss formulations.
package ensemble

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/core/parallel"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
	"github.com/YuminosukeSato/exoplanet-classifier/sklearn/tree"
)

// MaxFeaturesSqrt selects floor(sqrt(n_features)) candidates per split.
const MaxFeaturesSqrt = -1

// RandomForestClassifier averages the class distributions of bootstrapped
// decision trees.
type RandomForestClassifier struct {
	State       *model.StateManager
	Trees       []*tree.DecisionTreeClassifier
	ClassLabels []int
	Importances []float64

	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	bootstrap       bool
	randomState     int64
}

// ForestOption configures a RandomForestClassifier.
type ForestOption func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithForestCriterion sets the impurity measure of every tree.
func WithForestCriterion(criterion string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithForestMaxDepth limits tree depth. Zero or less means unlimited.
func WithForestMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithForestMinSamplesSplit sets min_samples_split of every tree.
func WithForestMinSamplesSplit(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithForestMinSamplesLeaf sets min_samples_leaf of every tree.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithForestMaxFeatures sets the per-split feature count, or MaxFeaturesSqrt.
func WithForestMaxFeatures(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = n }
}

// WithBootstrap toggles bootstrap resampling.
func WithBootstrap(bootstrap bool) ForestOption {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithForestRandomState seeds tree seeds and bootstrap draws.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// NewRandomForestClassifier creates a forest of 100 gini trees with sqrt
// feature sampling and bootstrap.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		State:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     MaxFeaturesSqrt,
		bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.State != nil && rf.State.IsFitted()
}

// Classes returns the class labels in probability-column order.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.ClassLabels...)
}

// Fit grows the forest. Tree seeds and bootstrap samples are drawn up front
// from the forest seed, so the result does not depend on scheduling.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	labels, err := tree.LabelsFromMatrix(y)
	if err != nil {
		return err
	}
	n, nFeatures := X.Dims()
	if n == 0 || nFeatures == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(labels) != n {
		return errors.NewDimensionError("RandomForestClassifier.Fit", n, len(labels), 0)
	}
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	if rf.State == nil {
		rf.State = model.NewStateManager()
	}
	rf.State.Reset()

	classes := sortedUnique(labels)
	maxFeatures := rf.maxFeatures
	if maxFeatures == MaxFeaturesSqrt {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))))
	}

	rng := rand.New(rand.NewSource(rf.randomState))
	seeds := make([]int64, rf.nEstimators)
	samples := make([][]int, rf.nEstimators)
	for t := range seeds {
		seeds[t] = rng.Int63()
		samples[t] = make([]int, n)
		for i := range samples[t] {
			if rf.bootstrap {
				samples[t][i] = rng.Intn(n)
			} else {
				samples[t][i] = i
			}
		}
	}

	cols := tree.Columns(X)
	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	err = parallel.ParallelizeErr(rf.nEstimators, func(start, end int) error {
		for t := start; t < end; t++ {
			dt := tree.NewDecisionTreeClassifier(
				tree.WithCriterion(rf.criterion),
				tree.WithMaxDepth(rf.maxDepth),
				tree.WithMinSamplesSplit(rf.minSamplesSplit),
				tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
				tree.WithMaxFeatures(maxFeatures),
				tree.WithRandomState(seeds[t]),
				tree.WithClasses(classes),
			)
			if err := dt.FitSamples(cols, labels, samples[t]); err != nil {
				return errors.Wrapf(err, "tree %d", t)
			}
			trees[t] = dt
		}
		return nil
	})
	if err != nil {
		return errors.NewModelError("RandomForestClassifier.Fit", "tree fitting failed", err)
	}

	rf.Trees = trees
	rf.ClassLabels = classes
	rf.Importances = averageImportances(trees, nFeatures)
	rf.State.SetDimensions(nFeatures, n)
	rf.State.SetFitted()

	log.GetLoggerWithName("ensemble").Debug("Random forest fitted",
		log.ModelNameKey, "RandomForestClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, nFeatures,
		"n_estimators", rf.nEstimators,
	)
	return nil
}

// PredictProba returns the mean of the tree class distributions.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestClassifier", "PredictProba")
	}
	r, c := X.Dims()
	if err := rf.State.RequireFeatures("RandomForestClassifier.PredictProba", c); err != nil {
		return nil, err
	}

	k := len(rf.ClassLabels)
	out := mat.NewDense(r, k, nil)
	parallel.ParallelizeWithThreshold(r, 64, func(start, end int) {
		row := make([]float64, c)
		acc := make([]float64, k)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			for j := range acc {
				acc[j] = 0
			}
			for _, dt := range rf.Trees {
				dt.ProbaRow(row, acc)
			}
			for j := range acc {
				acc[j] /= float64(len(rf.Trees))
			}
			out.SetRow(i, acc)
		}
	})
	return out, nil
}

// Predict returns the most probable class of each row.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxLabels(proba, rf.ClassLabels), nil
}

// FeatureImportances returns the mean normalised impurity decrease.
func (rf *RandomForestClassifier) FeatureImportances() []float64 {
	return append([]float64(nil), rf.Importances...)
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
	}
}

func averageImportances(trees []*tree.DecisionTreeClassifier, nFeatures int) []float64 {
	imp := make([]float64, nFeatures)
	for _, dt := range trees {
		for j, v := range dt.Importances {
			imp[j] += v
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

func sortedUnique(labels []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}
