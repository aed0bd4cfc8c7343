package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "LinearRegression".
	ModelNameKey = "model.name"

	// EstimatorIDKey identifies one estimator instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"

	// ComponentKey names the package or component that logs.
	ComponentKey = "ml.component"

	// PhaseKey is one of the Phase* values below.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	TargetsKey  = "data.targets"
)

// Performance and scores.
const (
	DurationMsKey = "perf.duration_ms"
	R2ScoreKey    = "metrics.r2_score"
	LossKey       = "metrics.loss"
	IterationKey  = "training.iteration"
)

// Predictions.
const (
	PredsKey = "preds.count"
)

// Error context.
const (
	// ErrAttrKey holds the error message of an error passed to Logger.Error.
	ErrAttrKey = "error"

	// StacktraceKey holds the stack trace extracted from a cockroachdb error.
	StacktraceKey = "error.stacktrace"

	ErrorTypeKey = "error.type"
)

// Configuration.
const (
	RandomSeedKey     = "config.random_seed"
	HyperParamsKey    = "model.hyperparams"
	LearningRateKey   = "hyperparams.learning_rate"
	RegularizationKey = "hyperparams.regularization"
)

// Pipeline context.
const (
	// StageKey is the pipeline stage: ingestion, transformation, evaluation,
	// selection or inference.
	StageKey = "pipeline.stage"

	// RunIDKey identifies one training run.
	RunIDKey = "pipeline.run_id"

	// ArtifactPathKey is the file an artifact was written to or read from.
	ArtifactPathKey = "artifact.path"

	// CandidateKey is the candidate model name during evaluation.
	CandidateKey = "model.candidate"

	// ThresholdKey is the minimum acceptable score.
	ThresholdKey = "pipeline.threshold"
)

// Standard values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"

	PhaseTraining      = "training"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
