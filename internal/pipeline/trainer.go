package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/dataset"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/features"
	"github.com/YuminosukeSato/exoplanet-classifier/metrics"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
	"github.com/YuminosukeSato/exoplanet-classifier/preprocessing"
	"github.com/YuminosukeSato/exoplanet-classifier/sklearn/model_selection"
)

// SplitSeed seeds the stratified train/test split.
const SplitSeed = 42

// Metrics is the evaluation record of one training run.
type Metrics struct {
	Accuracy             float64                       `json:"accuracy"`
	Precision            float64                       `json:"precision"`
	Recall               float64                       `json:"recall"`
	F1Score              float64                       `json:"f1_score"`
	ConfusionMatrix      [][]int                       `json:"confusion_matrix"`
	ClassificationReport *metrics.ClassificationReport `json:"classification_report"`
	LogLoss              float64                       `json:"log_loss"`
	BrierScore           float64                       `json:"brier_score"`
	ModelType            ModelKind                     `json:"model_type"`
	NSamples             int                           `json:"n_samples"`
	NFeatures            int                           `json:"n_features"`
	FeatureNames         []string                      `json:"feature_names"`
	TestSize             float64                       `json:"test_size"`
	NTrain               int                           `json:"n_train"`
	NTest                int                           `json:"n_test"`
	DroppedRows          int                           `json:"dropped_rows"`
	Hyperparameters      map[string]interface{}        `json:"hyperparameters"`
	TrainedAt            time.Time                     `json:"trained_at"`
	TrainingDurationMs   int64                         `json:"training_duration_ms"`
	RunID                string                        `json:"run_id"`
}

// Trainer fits pipelines.
type Trainer struct {
	logger log.Logger
	now    func() time.Time
}

// NewTrainer creates a Trainer logging under the "trainer" component.
func NewTrainer() *Trainer {
	return &Trainer{logger: log.GetLoggerWithName("trainer"), now: time.Now}
}

// Train preprocesses f, splits it, fits the scaler on the training rows
// only, fits the classifier and evaluates it on the held-out rows.
func (t *Trainer) Train(ctx context.Context, f *dataset.Frame, opts TrainOptions) (*Pipeline, *Metrics, error) {
	params, testSize, err := opts.Resolve()
	if err != nil {
		return nil, nil, err
	}
	res, err := features.Preprocess(f)
	if err != nil {
		return nil, nil, err
	}
	return t.Fit(ctx, res, params, testSize)
}

// Fit trains on an already preprocessed dataset.
func (t *Trainer) Fit(ctx context.Context, res *features.Result, params Params, testSize float64) (*Pipeline, *Metrics, error) {
	kind := params.Kind()
	runID := uuid.NewString()
	logger := t.logger.With(log.RunIDKey, runID, log.ModelNameKey, string(kind))
	start := t.now()

	split, err := model_selection.TrainTestSplit(res.X, res.YVec(), testSize, SplitSeed)
	if err != nil {
		return nil, nil, errors.NewTrainingError(string(kind), "split", err)
	}

	scaler := preprocessing.NewStandardScalerDefault()
	xTrain, err := scaler.FitTransform(split.XTrain)
	if err != nil {
		return nil, nil, errors.NewTrainingError(string(kind), "scale", err)
	}
	xTest, err := scaler.Transform(split.XTest)
	if err != nil {
		return nil, nil, errors.NewTrainingError(string(kind), "scale", err)
	}

	logger.Info("Training started",
		log.OperationKey, log.OperationTrain,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, len(split.TrainIndices),
		log.FeaturesKey, len(res.FeatureNames),
		log.HyperParamsKey, ParamsMap(params),
	)

	clf := params.Build()
	err = errors.SafeExecute(string(kind)+".Fit", func() error {
		return clf.Fit(xTrain, split.YTrain)
	})
	if err != nil {
		return nil, nil, errors.NewTrainingError(string(kind), "fit", err)
	}
	if ctx.Err() != nil {
		return nil, nil, errors.Wrap(ctx.Err(), "training cancelled")
	}

	predMatrix, err := clf.Predict(xTest)
	if err != nil {
		return nil, nil, errors.NewTrainingError(string(kind), "evaluate", err)
	}
	yPred := mat.NewVecDense(len(split.TestIndices), mat.Col(nil, 0, predMatrix))
	proba, err := clf.PredictProba(xTest)
	if err != nil {
		return nil, nil, errors.NewTrainingError(string(kind), "evaluate", err)
	}

	m, err := evaluate(split.YTest, yPred, proba, clf.Classes())
	if err != nil {
		return nil, nil, errors.NewTrainingError(string(kind), "evaluate", err)
	}

	finished := t.now()
	m.ModelType = kind
	m.NSamples = len(res.Y)
	m.NFeatures = len(res.FeatureNames)
	m.FeatureNames = append([]string(nil), res.FeatureNames...)
	m.TestSize = testSize
	m.NTrain = len(split.TrainIndices)
	m.NTest = len(split.TestIndices)
	m.DroppedRows = res.DroppedRows
	m.Hyperparameters = ParamsMap(params)
	m.TrainedAt = finished.UTC()
	m.TrainingDurationMs = finished.Sub(start).Milliseconds()
	m.RunID = runID

	p := &Pipeline{
		Meta: Metadata{
			ModelType:       kind,
			FeatureNames:    m.FeatureNames,
			LabelMapping:    DefaultLabelMapping(),
			Hyperparameters: m.Hyperparameters,
			TrainedAt:       m.TrainedAt,
			RunID:           runID,
		},
		Scaler:     scaler,
		Classifier: clf,
	}

	logger.Info("Training complete",
		log.OperationKey, log.OperationTrain,
		log.PhaseKey, log.PhaseTesting,
		log.AccuracyKey, m.Accuracy,
		log.F1ScoreKey, m.F1Score,
		log.DurationMsKey, m.TrainingDurationMs,
	)
	return p, m, nil
}

// evaluate computes the weighted scores, the fixed 3×3 confusion matrix, the
// per-class report and the probability losses. Undefined ratios are 0.
func evaluate(yTrue, yPred *mat.VecDense, proba mat.Matrix, classes []int) (*Metrics, error) {
	labels := features.Classes
	report, err := metrics.NewClassificationReport(yTrue, yPred, labels, features.ClassNameList())
	if err != nil {
		return nil, err
	}
	cm, err := metrics.ConfusionMatrix(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}
	grid := make([][]int, len(labels))
	for i := range grid {
		grid[i] = make([]int, len(labels))
		for j := range grid[i] {
			grid[i][j] = int(cm.At(i, j))
		}
	}

	logLoss, err := metrics.LogLoss(yTrue, proba, classes)
	if err != nil {
		return nil, err
	}
	brier, err := metrics.BrierScore(yTrue, proba, classes)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Accuracy:             report.Accuracy,
		Precision:            report.WeightedAvg.Precision,
		Recall:               report.WeightedAvg.Recall,
		F1Score:              report.WeightedAvg.F1Score,
		ConfusionMatrix:      grid,
		ClassificationReport: report,
		LogLoss:              logLoss,
		BrierScore:           brier,
	}, nil
}
