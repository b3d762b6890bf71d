package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/sklearn/ensemble"
	"github.com/YuminosukeSato/exoplanet-classifier/sklearn/svm"
)

// ModelKind selects one of the supported classifiers.
type ModelKind string

const (
	RandomForest  ModelKind = "random_forest"
	XGBoost       ModelKind = "xgboost"
	SVM           ModelKind = "svm"
	GradientBoost ModelKind = "gradient_boost"
)

// Kinds lists every supported kind.
var Kinds = []ModelKind{RandomForest, XGBoost, SVM, GradientBoost}

// ParseModelKind validates s. Matching ignores case and surrounding space.
func ParseModelKind(s string) (ModelKind, error) {
	k := ModelKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.NewValidationError("model_type",
		"must be one of random_forest, xgboost, svm, gradient_boost", s)
}

// HasFeatureImportance reports whether the kind exposes importances.
func (k ModelKind) HasFeatureImportance() bool {
	return k != SVM
}

// Params is the hyperparameter set of one kind.
type Params interface {
	Kind() ModelKind
	// Build returns an unfitted classifier configured with the params.
	Build() model.Classifier
	validate() error
}

// ForestParams configures RandomForest.
type ForestParams struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	Seed            int64 `json:"random_state"`
}

// XGBoostParams configures XGBoost: second-order boosting on the softmax loss.
type XGBoostParams struct {
	NEstimators  int     `json:"n_estimators"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	Lambda       float64 `json:"reg_lambda"`
	Seed         int64   `json:"random_state"`
}

// SVMParams configures SVM.
type SVMParams struct {
	C     float64 `json:"C"`
	Gamma string  `json:"gamma"`
	Seed  int64   `json:"random_state"`
}

// BoostParams configures GradientBoost: least-squares trees on the deviance residuals.
type BoostParams struct {
	NEstimators  int     `json:"n_estimators"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	Seed         int64   `json:"random_state"`
}

// Kind implements Params.
func (ForestParams) Kind() ModelKind  { return RandomForest }
func (XGBoostParams) Kind() ModelKind { return XGBoost }
func (SVMParams) Kind() ModelKind     { return SVM }
func (BoostParams) Kind() ModelKind   { return GradientBoost }

// Build returns an unfitted random forest.
func (p ForestParams) Build() model.Classifier {
	return ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(p.NEstimators),
		ensemble.WithForestMaxDepth(p.MaxDepth),
		ensemble.WithForestMinSamplesSplit(p.MinSamplesSplit),
		ensemble.WithForestMinSamplesLeaf(p.MinSamplesLeaf),
		ensemble.WithForestRandomState(p.Seed),
	)
}

// Build returns an unfitted second-order booster with L2 leaf regularisation.
func (p XGBoostParams) Build() model.Classifier {
	return ensemble.NewGradientBoostingClassifier(
		ensemble.WithObjective(ensemble.ObjectiveSoftmax),
		ensemble.WithBoostingRounds(p.NEstimators),
		ensemble.WithBoostingMaxDepth(p.MaxDepth),
		ensemble.WithLearningRate(p.LearningRate),
		ensemble.WithLambda(p.Lambda),
		ensemble.WithMinChildWeight(1),
		ensemble.WithBoostingRandomState(p.Seed),
	)
}

// Build returns an unfitted RBF SVC.
func (p SVMParams) Build() model.Classifier {
	return svm.NewSVC(
		svm.WithC(p.C),
		svm.WithGamma(p.Gamma),
		svm.WithRandomState(p.Seed),
	)
}

// Build returns an unfitted deviance booster.
func (p BoostParams) Build() model.Classifier {
	return ensemble.NewGradientBoostingClassifier(
		ensemble.WithObjective(ensemble.ObjectiveDeviance),
		ensemble.WithBoostingRounds(p.NEstimators),
		ensemble.WithBoostingMaxDepth(p.MaxDepth),
		ensemble.WithLearningRate(p.LearningRate),
		ensemble.WithBoostingRandomState(p.Seed),
	)
}

func positive(name string, v int) error {
	if v < 1 {
		return errors.NewValidationError(name, "must be at least 1", v)
	}
	return nil
}

func (p ForestParams) validate() error {
	for _, check := range []error{
		positive("n_estimators", p.NEstimators),
		positive("max_depth", p.MaxDepth),
		positive("min_samples_leaf", p.MinSamplesLeaf),
	} {
		if check != nil {
			return check
		}
	}
	if p.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", p.MinSamplesSplit)
	}
	return nil
}

func (p XGBoostParams) validate() error {
	if err := positive("n_estimators", p.NEstimators); err != nil {
		return err
	}
	if err := positive("max_depth", p.MaxDepth); err != nil {
		return err
	}
	if p.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	}
	return nil
}

func (p SVMParams) validate() error {
	if p.C <= 0 {
		return errors.NewValidationError("C", "must be positive", p.C)
	}
	return nil
}

func (p BoostParams) validate() error {
	if err := positive("n_estimators", p.NEstimators); err != nil {
		return err
	}
	if err := positive("max_depth", p.MaxDepth); err != nil {
		return err
	}
	if p.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	}
	return nil
}

// DefaultParams returns the defaults of kind.
func DefaultParams(kind ModelKind) Params {
	switch kind {
	case XGBoost:
		return XGBoostParams{NEstimators: 100, MaxDepth: 6, LearningRate: 0.1, Lambda: 1, Seed: 42}
	case SVM:
		return SVMParams{C: 1, Gamma: svm.GammaScale, Seed: 42}
	case GradientBoost:
		return BoostParams{NEstimators: 100, MaxDepth: 5, LearningRate: 0.1, Seed: 42}
	default:
		return ForestParams{NEstimators: 100, MaxDepth: 20, MinSamplesSplit: 5, MinSamplesLeaf: 2, Seed: 42}
	}
}

// NewClassifierShell returns an empty classifier of kind for gob decoding.
func NewClassifierShell(kind ModelKind) (model.Classifier, error) {
	switch kind {
	case RandomForest:
		return &ensemble.RandomForestClassifier{}, nil
	case XGBoost, GradientBoost:
		return &ensemble.GradientBoostingClassifier{}, nil
	case SVM:
		return &svm.SVC{}, nil
	}
	return nil, errors.NewValidationError("model_type", "unknown model kind", string(kind))
}

// TrainOptions is the body of a training request. Nil fields keep the
// defaults of the selected kind.
type TrainOptions struct {
	ModelType    string   `json:"model_type"`
	TestSize     *float64 `json:"test_size,omitempty"`
	NEstimators  *int     `json:"n_estimators,omitempty"`
	MaxDepth     *int     `json:"max_depth,omitempty"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
}

// DefaultTestSize is used when TrainOptions.TestSize is nil.
const DefaultTestSize = 0.2

// Resolve validates the options and overlays them onto the defaults of the
// selected kind. An empty model_type selects random_forest. Tree settings
// apply to the tree kinds and learning_rate to the boosting kinds; other
// combinations are ignored.
func (o TrainOptions) Resolve() (Params, float64, error) {
	kindName := o.ModelType
	if kindName == "" {
		kindName = string(RandomForest)
	}
	kind, err := ParseModelKind(kindName)
	if err != nil {
		return nil, 0, err
	}

	testSize := DefaultTestSize
	if o.TestSize != nil {
		testSize = *o.TestSize
	}
	if !(testSize > 0 && testSize < 1) {
		return nil, 0, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", testSize)
	}

	var p Params
	switch d := DefaultParams(kind).(type) {
	case ForestParams:
		if o.NEstimators != nil {
			d.NEstimators = *o.NEstimators
		}
		if o.MaxDepth != nil {
			d.MaxDepth = *o.MaxDepth
		}
		p = d
	case XGBoostParams:
		if o.NEstimators != nil {
			d.NEstimators = *o.NEstimators
		}
		if o.MaxDepth != nil {
			d.MaxDepth = *o.MaxDepth
		}
		if o.LearningRate != nil {
			d.LearningRate = *o.LearningRate
		}
		p = d
	case BoostParams:
		if o.NEstimators != nil {
			d.NEstimators = *o.NEstimators
		}
		if o.MaxDepth != nil {
			d.MaxDepth = *o.MaxDepth
		}
		if o.LearningRate != nil {
			d.LearningRate = *o.LearningRate
		}
		p = d
	case SVMParams:
		p = d
	}
	if err := p.validate(); err != nil {
		return nil, 0, err
	}
	return p, testSize, nil
}

// ParamsMap flattens p for metadata and logs.
func ParamsMap(p Params) map[string]interface{} {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
