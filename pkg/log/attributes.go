package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator or pipeline kind.
	// Examples: "RandomForestClassifier", "StandardScaler", "xgboost"
	ModelNameKey = "model.name"

	// OperationKey names the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or service component.
	ComponentKey = "ml.component"

	// PhaseKey indicates the lifecycle phase.
	PhaseKey = "ml.phase"

	// RunIDKey identifies a single training run.
	RunIDKey = "training.run_id"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"

	// DroppedRowsKey counts rows excluded because their label could not be mapped.
	DroppedRowsKey = "data.dropped_rows"

	// LabelColumnKey is the label column resolved from the alias list.
	LabelColumnKey = "data.label_column"

	// DatasetPathKey is the path of the staged dataset file.
	DatasetPathKey = "data.path"
)

// Performance and evaluation.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	F1ScoreKey    = "metrics.f1_score"
	LossKey       = "metrics.loss"
	IterationKey  = "training.iteration"
)

// Prediction context.
const (
	PredsKey      = "preds.count"
	ConfidenceKey = "preds.confidence"
)

// Errors.
const (
	ErrorKey      = "error"
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters.
const (
	HyperParamsKey  = "model.hyperparams"
	LearningRateKey = "hyperparams.learning_rate"
	RandomSeedKey   = "config.random_seed"
)

// Persistence and transport.
const (
	ArtifactDirKey = "store.dir"
	HTTPMethodKey  = "http.method"
	HTTPPathKey    = "http.path"
	HTTPStatusKey  = "http.status"
	HTTPBytesKey   = "http.bytes"
	RequestIDKey   = "http.request_id"
)

// Standard values for OperationKey and PhaseKey.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationPredictBatch = "predict_batch"
	OperationTransform    = "transform"
	OperationPreprocess   = "preprocess"
	OperationTrain        = "train"
	OperationSave         = "save"
	OperationLoad         = "load"

	PhaseTraining      = "training"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
