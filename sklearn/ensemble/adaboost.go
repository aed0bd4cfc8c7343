package ensemble

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/sklearn/tree"
)

func init() {
	model.Register(&AdaBoostRegressor{})
}

// Loss functions for AdaBoostRegressor.
const (
	LossLinear      = "linear"
	LossSquare      = "square"
	LossExponential = "exponential"
)

// AdaBoostRegressor implements AdaBoost.R2. Each stage fits a tree on a
// weighted resample of the training rows; predictions are the weighted
// median of the stage predictions.
type AdaBoostRegressor struct {
	State *model.StateManager

	NEstimators  int
	LearningRate float64
	Loss         string
	MaxDepth     int
	RandomState  int64

	Estimators_       []*tree.DecisionTreeRegressor
	EstimatorWeights_ []float64
	EstimatorErrors_  []float64
}

var _ model.Regressor = (*AdaBoostRegressor)(nil)

// AdaOption configures an AdaBoostRegressor.
type AdaOption func(*AdaBoostRegressor)

// WithAdaNEstimators sets the maximum number of stages.
func WithAdaNEstimators(n int) AdaOption {
	return func(a *AdaBoostRegressor) { a.NEstimators = n }
}

// WithAdaLearningRate scales the contribution of every stage.
func WithAdaLearningRate(lr float64) AdaOption {
	return func(a *AdaBoostRegressor) { a.LearningRate = lr }
}

// WithLoss selects linear, square or exponential loss.
func WithLoss(loss string) AdaOption {
	return func(a *AdaBoostRegressor) { a.Loss = loss }
}

// WithAdaMaxDepth sets the depth of the base trees.
func WithAdaMaxDepth(d int) AdaOption {
	return func(a *AdaBoostRegressor) { a.MaxDepth = d }
}

// WithAdaRandomState seeds the weighted resampling.
func WithAdaRandomState(seed int64) AdaOption {
	return func(a *AdaBoostRegressor) { a.RandomState = seed }
}

// NewAdaBoostRegressor creates a booster of up to 50 depth-3 trees with
// linear loss.
func NewAdaBoostRegressor(opts ...AdaOption) *AdaBoostRegressor {
	a := &AdaBoostRegressor{
		State:        model.NewStateManager(),
		NEstimators:  50,
		LearningRate: 1.0,
		Loss:         LossLinear,
		MaxDepth:     3,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetRandomState implements model.RandomStateSetter.
func (a *AdaBoostRegressor) SetRandomState(seed int64) { a.RandomState = seed }

// Fit runs the boosting rounds. It stops early on a perfect stage or when a
// stage's weighted error reaches 0.5.
func (a *AdaBoostRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "AdaBoostRegressor.Fit")

	if a.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be positive", a.NEstimators)
	}
	if a.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", a.LearningRate)
	}
	switch a.Loss {
	case LossLinear, LossSquare, LossExponential:
	default:
		return errors.NewValidationError("loss", "must be linear, square or exponential", a.Loss)
	}
	cols, target, err := tree.Prepare("AdaBoostRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	n := cols.NRows
	rng := rand.New(rand.NewSource(a.RandomState))

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}
	cdf := make([]float64, n)
	samples := make([]int, n)
	pred := make([]float64, n)
	errs := make([]float64, n)
	row := make([]float64, cols.NFeatures())

	a.Estimators_ = a.Estimators_[:0]
	a.EstimatorWeights_ = a.EstimatorWeights_[:0]
	a.EstimatorErrors_ = a.EstimatorErrors_[:0]

	for stage := 0; stage < a.NEstimators; stage++ {
		floats.CumSum(cdf, weights)
		total := cdf[n-1]
		for i := range samples {
			u := rng.Float64() * total
			j := sort.SearchFloat64s(cdf, u)
			if j >= n {
				j = n - 1
			}
			samples[i] = j
		}

		t := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(a.MaxDepth),
			tree.WithRandomState(rng.Int63()),
		)
		if err := t.FitSamples(cols, target, samples); err != nil {
			return errors.Wrapf(err, "stage %d", stage)
		}

		for i := 0; i < n; i++ {
			cols.Row(row, i)
			pred[i] = t.PredictRow(row)
			errs[i] = math.Abs(pred[i] - target[i])
		}
		if maxErr := floats.Max(errs); maxErr > 0 {
			floats.Scale(1/maxErr, errs)
		}
		switch a.Loss {
		case LossSquare:
			for i := range errs {
				errs[i] *= errs[i]
			}
		case LossExponential:
			for i := range errs {
				errs[i] = 1 - math.Exp(-errs[i])
			}
		}
		stageErr := floats.Dot(weights, errs) / total

		if stageErr <= 0 {
			a.Estimators_ = append(a.Estimators_, t)
			a.EstimatorWeights_ = append(a.EstimatorWeights_, 1)
			a.EstimatorErrors_ = append(a.EstimatorErrors_, 0)
			break
		}
		if stageErr >= 0.5 {
			if len(a.Estimators_) == 0 {
				// keep the first stage so the model can still predict
				a.Estimators_ = append(a.Estimators_, t)
				a.EstimatorWeights_ = append(a.EstimatorWeights_, 1)
				a.EstimatorErrors_ = append(a.EstimatorErrors_, stageErr)
			}
			break
		}

		beta := stageErr / (1 - stageErr)
		a.Estimators_ = append(a.Estimators_, t)
		a.EstimatorWeights_ = append(a.EstimatorWeights_, a.LearningRate*math.Log(1/beta))
		a.EstimatorErrors_ = append(a.EstimatorErrors_, stageErr)

		if stage == a.NEstimators-1 {
			break
		}
		for i := range weights {
			weights[i] *= math.Pow(beta, (1-errs[i])*a.LearningRate)
		}
		if s := floats.Sum(weights); s > 0 {
			floats.Scale(1/s, weights)
		} else {
			break
		}
	}

	a.State.SetDimensions(cols.NFeatures(), n)
	a.State.SetFitted()
	return nil
}

// Predict returns the weighted median of the stage predictions.
func (a *AdaBoostRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	k := len(a.Estimators_)
	preds := make([]float64, k)
	order := make([]int, k)
	return a.State.PredictRows("AdaBoostRegressor", X, func(row []float64) float64 {
		for m, t := range a.Estimators_ {
			preds[m] = t.PredictRow(row)
			order[m] = m
		}
		sort.SliceStable(order, func(i, j int) bool { return preds[order[i]] < preds[order[j]] })
		return weightedMedian(preds, a.EstimatorWeights_, order)
	})
}

// weightedMedian returns the first value, in ascending order, whose
// cumulative weight reaches half the total.
func weightedMedian(values, weights []float64, order []int) float64 {
	total := floats.Sum(weights)
	cum := 0.0
	for _, m := range order {
		cum += weights[m]
		if cum >= 0.5*total {
			return values[m]
		}
	}
	return values[order[len(order)-1]]
}

// Score returns the R² on X and y.
func (a *AdaBoostRegressor) Score(X, y mat.Matrix) (float64, error) { return score(a, X, y) }

// IsFitted reports whether Fit has completed.
func (a *AdaBoostRegressor) IsFitted() bool { return a.State.IsFitted() }

// GetParams returns the hyperparameters.
func (a *AdaBoostRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":  a.NEstimators,
		"learning_rate": a.LearningRate,
		"loss":          a.Loss,
		"max_depth":     a.MaxDepth,
		"random_state":  a.RandomState,
	}
}

func (a *AdaBoostRegressor) String() string {
	return fmt.Sprintf("AdaBoostRegressor(n_estimators=%d, loss=%s)", a.NEstimators, a.Loss)
}
