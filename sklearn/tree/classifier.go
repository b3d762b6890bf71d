package tree

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// DecisionTreeClassifier is a CART classifier with gini or entropy impurity.
//
// Hyperparameters are unexported; only the fitted structure is persisted.
type DecisionTreeClassifier struct {
	State       *model.StateManager
	Nodes       []Node
	ClassLabels []int
	Importances []float64

	criterion       string
	maxDepth        int // <= 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // <= 0 means all features
	randomState     int64
	presetClasses   []int
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure: "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree. Zero or less means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are considered per split.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState seeds the feature sampling.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// WithClasses fixes the class labels (and probability columns) instead of
// deriving them from y. Ensembles use this so that every member agrees.
func WithClasses(classes []int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.presetClasses = append([]int(nil), classes...)
	}
}

// NewDecisionTreeClassifier creates a classifier with gini impurity, unlimited
// depth, min_samples_split=2 and min_samples_leaf=1.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		State:           model.NewStateManager(),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.State != nil && dt.State.IsFitted()
}

// Classes returns the class labels in probability-column order.
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.ClassLabels...)
}

// Fit grows the tree on every row of X. y is an n×1 (or 1×n) matrix of integer labels.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	labels, err := LabelsFromMatrix(y)
	if err != nil {
		return err
	}
	r, _ := X.Dims()
	if len(labels) != r {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", r, len(labels), 0)
	}
	samples := make([]int, r)
	for i := range samples {
		samples[i] = i
	}
	return dt.FitSamples(Columns(X), labels, samples)
}

// FitSamples grows the tree on the given rows of the column-major data.
// samples may contain repeated indices, which act as sample weights.
func (dt *DecisionTreeClassifier) FitSamples(cols [][]float64, y []int, samples []int) error {
	if len(samples) == 0 || len(cols) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	}
	if dt.State == nil {
		dt.State = model.NewStateManager()
	}
	dt.State.Reset()

	classes := dt.presetClasses
	if len(classes) == 0 {
		classes = uniqueLabels(y, samples)
	}
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	encoded := make([]int, len(y))
	for _, s := range samples {
		k, ok := index[y[s]]
		if !ok {
			return errors.NewValueError("DecisionTreeClassifier.Fit", fmt.Sprintf("label %d is not among the configured classes", y[s]))
		}
		encoded[s] = k
	}

	b := &classBuilder{
		dt:          dt,
		cols:        cols,
		y:           encoded,
		nClasses:    len(classes),
		importances: make([]float64, len(cols)),
		rng:         rand.New(rand.NewSource(dt.randomState)),
	}
	dt.Nodes = dt.Nodes[:0]
	b.build(Presort(cols, samples), 0)

	dt.ClassLabels = append([]int(nil), classes...)
	dt.Importances = normalize(b.importances)
	dt.State.SetDimensions(len(cols), len(samples))
	dt.State.SetFitted()
	return nil
}

type classBuilder struct {
	dt          *DecisionTreeClassifier
	cols        [][]float64
	y           []int
	nClasses    int
	importances []float64
	rng         *rand.Rand
}

func (b *classBuilder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	switch b.dt.criterion {
	case "entropy":
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	default:
		g := 1.0
		for _, c := range counts {
			p := c / n
			g -= p * p
		}
		return g
	}
}

type split struct {
	feature   int
	threshold float64
	score     float64 // weighted child impurity
}

func (b *classBuilder) build(sorted [][]int, depth int) int {
	dt := b.dt
	samples := sorted[0]
	counts := make([]float64, b.nClasses)
	for _, s := range samples {
		counts[b.y[s]]++
	}
	n := len(samples)
	imp := b.impurity(counts, float64(n))

	id := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, Node{
		Feature:  Leaf,
		Left:     Leaf,
		Right:    Leaf,
		Value:    normalize(counts),
		NSamples: n,
		Impurity: imp,
	})

	if imp <= 1e-12 ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth) {
		return id
	}

	best, ok := b.bestSplit(sorted)
	if !ok {
		return id
	}

	left, right := splitSorted(sorted, b.cols[best.feature], best.threshold)
	b.importances[best.feature] += float64(n)*imp - best.score

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	node := &dt.Nodes[id]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = r
	return id
}

// bestSplit searches the candidate features for the split with the lowest
// weighted child impurity. Ties keep the first candidate.
func (b *classBuilder) bestSplit(sorted [][]int) (split, bool) {
	dt := b.dt
	nFeatures := len(b.cols)
	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}
	limit := nFeatures
	if dt.maxFeatures > 0 && dt.maxFeatures < nFeatures {
		b.rng.Shuffle(nFeatures, func(i, j int) { features[i], features[j] = features[j], features[i] })
		limit = dt.maxFeatures
	}

	best := split{feature: -1, score: math.Inf(1)}
	n := len(sorted[0])
	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)
	visited := 0

	for _, f := range features {
		// keep drawing past the limit until a usable feature has been seen
		if visited >= limit && best.feature >= 0 {
			break
		}
		col := b.cols[f]
		order := sorted[f]
		if col[order[0]] == col[order[n-1]] {
			continue
		}
		visited++

		for k := range left {
			left[k] = 0
			right[k] = 0
		}
		for _, s := range order {
			right[b.y[s]]++
		}
		for i := 1; i < n; i++ {
			c := b.y[order[i-1]]
			left[c]++
			right[c]--
			if i < dt.minSamplesLeaf || n-i < dt.minSamplesLeaf {
				continue
			}
			lo, hi := col[order[i-1]], col[order[i]]
			if lo == hi {
				continue
			}
			score := float64(i)*b.impurity(left, float64(i)) + float64(n-i)*b.impurity(right, float64(n-i))
			if score < best.score-1e-12 {
				best = split{feature: f, threshold: midpoint(lo, hi), score: score}
			}
		}
	}
	return best, best.feature >= 0
}

// Predict returns the most probable class label of each row as an n×1 matrix.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return ArgmaxLabels(proba, dt.ClassLabels), nil
}

// PredictProba returns the class distribution of the leaf reached by each row.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !dt.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeClassifier", "PredictProba")
	}
	r, c := X.Dims()
	if err := dt.State.RequireFeatures("DecisionTreeClassifier.PredictProba", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, len(dt.ClassLabels), nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.Nodes[apply(dt.Nodes, row)].Value)
	}
	return out, nil
}

// ProbaRow adds the leaf distribution for row into dst. Used by ensembles to
// avoid allocating a matrix per tree.
func (dt *DecisionTreeClassifier) ProbaRow(row []float64, dst []float64) {
	v := dt.Nodes[apply(dt.Nodes, row)].Value
	for k := range v {
		dst[k] += v[k]
	}
}

// Score returns the accuracy on (X, y), or 0 if prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	labels, err := LabelsFromMatrix(y)
	if err != nil || len(labels) == 0 {
		return 0
	}
	correct := 0
	for i, l := range labels {
		if int(pred.At(i, 0)) == l {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}

// GetFeatureImportances returns the normalised impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.Importances...)
}

// FeatureImportances implements model.FeatureImportancer.
func (dt *DecisionTreeClassifier) FeatureImportances() []float64 {
	return dt.GetFeatureImportances()
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return depthOf(dt.Nodes)
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return countLeaves(dt.Nodes)
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams updates the hyperparameters named in params.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.criterion = v
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "max_depth":
				dt.maxDepth = v
			case "min_samples_split":
				dt.minSamplesSplit = v
			case "min_samples_leaf":
				dt.minSamplesLeaf = v
			default:
				dt.maxFeatures = v
			}
		case "random_state":
			v, ok := value.(int64)
			if !ok {
				return errors.NewValidationError(key, "must be an int64", value)
			}
			dt.randomState = v
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

// LabelsFromMatrix reads integer labels from an n×1 or 1×n matrix.
func LabelsFromMatrix(y mat.Matrix) ([]int, error) {
	r, c := y.Dims()
	var n int
	switch {
	case c == 1:
		n = r
	case r == 1:
		n = c
	default:
		return nil, errors.NewDimensionError("labels", 1, c, 1)
	}
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		var v float64
		if c == 1 {
			v = y.At(i, 0)
		} else {
			v = y.At(0, i)
		}
		if v != math.Trunc(v) || math.IsNaN(v) {
			return nil, errors.NewValueError("labels", fmt.Sprintf("label %v at row %d is not an integer", v, i))
		}
		labels[i] = int(v)
	}
	return labels, nil
}

// ArgmaxLabels maps each row of proba to the label of its largest column.
// Ties resolve to the first column.
func ArgmaxLabels(proba mat.Matrix, labels []int) *mat.Dense {
	r, c := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < c; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(labels[best]))
	}
	return out
}

func uniqueLabels(y []int, samples []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, s := range samples {
		if !seen[y[s]] {
			seen[y[s]] = true
			out = append(out, y[s])
		}
	}
	sort.Ints(out)
	return out
}
