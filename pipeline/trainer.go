package pipeline

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/config"
	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/artifact"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// TrainingResult describes the model chosen by a training run.
type TrainingResult struct {
	RunID     string
	BestModel string
	// Score is the R² of the persisted model on the test partition.
	Score     float64
	ModelPath string
	Report    *EvaluationReport
	Model     model.Estimator

	TestTarget      []float64
	TestPredictions []float64
}

// ModelTrainer evaluates the candidates, selects the best one and persists
// it.
type ModelTrainer struct {
	ModelPath string
	MinScore  float64
	// Candidates builds the candidate list for a run.
	Candidates func() []Candidate
	// Only restricts the run to the named candidates when non-empty.
	Only []string

	settings
}

// NewModelTrainer creates a ModelTrainer from cfg. Candidates are restricted
// to cfg.Training.Candidates when that list is set.
func NewModelTrainer(cfg *config.Config, opts ...Option) *ModelTrainer {
	return &ModelTrainer{
		ModelPath:  cfg.Artifacts.ModelPath(),
		MinScore:   cfg.Training.MinScore,
		Candidates: DefaultCandidates,
		Only:       cfg.Training.Candidates,
		settings:   newSettings(append([]Option{WithSeed(cfg.Data.Seed)}, opts...)),
	}
}

// SelectBest returns the highest-scoring candidate of report. Candidates are
// visited in declared order and only a strictly greater score replaces the
// current best, so ties go to the earlier candidate. ok is false when the
// report holds no scores.
func SelectBest(report *EvaluationReport) (name string, score float64, ok bool) {
	if report == nil {
		return "", 0, false
	}
	for _, n := range report.Order {
		s, scored := report.Scores[n]
		if !scored {
			continue
		}
		if !ok || s > score {
			name, score, ok = n, s, true
		}
	}
	return name, score, ok
}

// Run trains every candidate on train, scores it on test, and persists the
// best model if its score reaches MinScore. Both matrices carry the target
// as their last column.
func (t *ModelTrainer) Run(train, test *mat.Dense) (result *TrainingResult, err error) {
	event := StageEvent{Stage: StageSelection, Started: t.now(), Threshold: t.MinScore}
	defer func() {
		event.Err = err
		t.emit(event)
	}()

	logger := t.logger.With(log.StageKey, StageSelection, log.RunIDKey, t.runID)

	xTrain, yTrain, err := splitTarget(train)
	if err != nil {
		return nil, errors.WithStage(StageSelection, "split train target", err)
	}
	xTest, yTest, err := splitTarget(test)
	if err != nil {
		return nil, errors.WithStage(StageSelection, "split test target", err)
	}
	trainRows, features := xTrain.Dims()
	testRows, _ := xTest.Dims()
	logger.Info("training candidates",
		"train_rows", trainRows,
		"test_rows", testRows,
		log.FeaturesKey, features,
	)

	var candidates []Candidate
	if t.Candidates != nil {
		candidates = t.Candidates()
	}
	candidates, err = FilterCandidates(candidates, t.Only)
	if err != nil {
		return nil, errors.WithStage(StageSelection, "filter candidates", err)
	}
	report, err := t.evaluate(xTrain, yTrain, xTest, yTest, candidates)
	if err != nil {
		return nil, err
	}

	best, score, ok := SelectBest(report)
	if !ok {
		return nil, errors.NewNoModelTrainedError(len(candidates), report.Failures)
	}
	event.BestModel, event.BestScore = best, score
	logger.Info("best model identified", log.ModelNameKey, best, log.R2ScoreKey, score)

	if score < t.MinScore {
		return nil, errors.NewInsufficientQualityError(best, score, t.MinScore)
	}

	est := report.Models[best]
	if err := artifact.SaveEstimator(t.ModelPath, est); err != nil {
		return nil, err
	}
	event.Artifacts = []string{t.ModelPath}

	pred, err := est.Predict(xTest)
	if err != nil {
		return nil, errors.WithStage(StageSelection, "predict test set with "+best, err)
	}
	final, err := metrics.R2ScoreMatrix(yTest, pred)
	if err != nil {
		return nil, errors.WithStage(StageSelection, "score "+best, err)
	}
	logger.Info("model saved",
		log.ModelNameKey, best,
		log.R2ScoreKey, final,
		log.ArtifactPathKey, t.ModelPath,
	)

	return &TrainingResult{
		RunID:           t.runID,
		BestModel:       best,
		Score:           final,
		ModelPath:       t.ModelPath,
		Report:          report,
		Model:           est,
		TestTarget:      mat.Col(nil, 0, yTest),
		TestPredictions: mat.Col(nil, 0, pred),
	}, nil
}
