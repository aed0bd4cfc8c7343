package pipeline

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// Candidate is a named, unfitted estimator taking part in model selection.
type Candidate struct {
	Name      string
	Estimator model.Estimator
}

// EvaluationReport holds the test R² of every candidate that trained
// successfully.
type EvaluationReport struct {
	// Scores maps candidate name to test R².
	Scores map[string]float64
	// Order lists every candidate name in declared order.
	Order []string
	// Failures holds the candidates that could not be scored.
	Failures []*errors.EvaluationFailure
	// Models holds the fitted estimator of every scored candidate.
	Models map[string]model.Estimator
	// Durations holds the fit and predict time of every candidate.
	Durations map[string]time.Duration
}

// Len returns the number of scored candidates.
func (r *EvaluationReport) Len() int { return len(r.Scores) }

// Ranked returns the scored candidate names by descending score, keeping
// declared order among equal scores.
func (r *EvaluationReport) Ranked() []string {
	var names []string
	for _, name := range r.Order {
		if _, ok := r.Scores[name]; ok {
			names = append(names, name)
		}
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && r.Scores[names[j]] > r.Scores[names[j-1]]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// EvaluateModels fits each candidate on the training data and scores it on
// the test data. A candidate that returns an error, panics, or predicts a
// non-finite value is recorded as a failure and left out of the scores; the
// others are unaffected. Randomized candidates receive the configured seed.
func EvaluateModels(xTrain, yTrain, xTest, yTest mat.Matrix, candidates []Candidate, opts ...Option) (*EvaluationReport, error) {
	s := newSettings(opts)
	return s.evaluate(xTrain, yTrain, xTest, yTest, candidates)
}

func (s *settings) evaluate(xTrain, yTrain, xTest, yTest mat.Matrix, candidates []Candidate) (report *EvaluationReport, err error) {
	event := StageEvent{Stage: StageEvaluation, Started: s.now()}
	defer func() {
		if report != nil {
			event.Scores = report.Scores
			event.Order = report.Order
			event.Failures = report.Failures
		}
		event.Err = err
		s.emit(event)
	}()

	if err := checkShapes(xTrain, yTrain, xTest, yTest); err != nil {
		return nil, errors.WithStage(StageEvaluation, "check shapes", err)
	}

	report = &EvaluationReport{
		Scores:    make(map[string]float64, len(candidates)),
		Models:    make(map[string]model.Estimator, len(candidates)),
		Durations: make(map[string]time.Duration, len(candidates)),
	}
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.Name == "" || seen[c.Name] {
			return nil, errors.WithStage(StageEvaluation, "check candidates",
				errors.NewValidationError("candidates", "candidate names must be unique and non-empty", c.Name))
		}
		seen[c.Name] = true
		report.Order = append(report.Order, c.Name)
	}

	logger := s.logger.With(log.StageKey, StageEvaluation, log.RunIDKey, s.runID)
	for _, c := range candidates {
		if pg, ok := c.Estimator.(model.ParameterGetter); ok {
			logger.Debug("evaluating candidate", log.CandidateKey, c.Name, log.HyperParamsKey, pg.GetParams())
		}
		start := s.now()
		score, err := s.evaluateOne(c, xTrain, yTrain, xTest, yTest)
		elapsed := s.now().Sub(start)
		report.Durations[c.Name] = elapsed

		if err != nil {
			failure := errors.NewEvaluationFailure(c.Name, err)
			report.Failures = append(report.Failures, failure)
			logger.Warn("candidate failed", log.CandidateKey, c.Name, log.ErrAttrKey, err.Error())
			continue
		}
		report.Scores[c.Name] = score
		report.Models[c.Name] = c.Estimator
		logger.Info("candidate evaluated",
			log.CandidateKey, c.Name,
			log.R2ScoreKey, score,
			log.DurationMsKey, elapsed.Milliseconds(),
		)
	}
	return report, nil
}

func (s *settings) evaluateOne(c Candidate, xTrain, yTrain, xTest, yTest mat.Matrix) (score float64, err error) {
	if c.Estimator == nil {
		return 0, errors.NewValueError(c.Name, "estimator is nil")
	}
	err = errors.SafeExecute("evaluate "+c.Name, func() error {
		if setter, ok := c.Estimator.(model.RandomStateSetter); ok {
			setter.SetRandomState(s.seed)
		}
		if err := c.Estimator.Fit(xTrain, yTrain); err != nil {
			return errors.Wrap(err, "fit")
		}
		pred, err := c.Estimator.Predict(xTest)
		if err != nil {
			return errors.Wrap(err, "predict")
		}
		rows, cols := pred.Dims()
		if err := errors.CheckMatrix(c.Name+".Predict", pred, rows, cols, 0); err != nil {
			return err
		}
		score, err = metrics.R2ScoreMatrix(yTest, pred)
		if err != nil {
			return errors.Wrap(err, "score")
		}
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return errors.NewValueError(c.Name, fmt.Sprintf("non-finite R² %v", score))
		}
		return nil
	})
	return score, err
}

func checkShapes(xTrain, yTrain, xTest, yTest mat.Matrix) error {
	trainRows, trainCols := xTrain.Dims()
	testRows, testCols := xTest.Dims()
	if r, _ := yTrain.Dims(); r != trainRows {
		return errors.NewDimensionError("EvaluateModels.train", trainRows, r, 0)
	}
	if r, _ := yTest.Dims(); r != testRows {
		return errors.NewDimensionError("EvaluateModels.test", testRows, r, 0)
	}
	if trainCols != testCols {
		return errors.NewDimensionError("EvaluateModels", trainCols, testCols, 1)
	}
	if trainRows == 0 || testRows == 0 {
		return errors.NewModelError("EvaluateModels", "empty data", errors.ErrEmptyData)
	}
	return nil
}
