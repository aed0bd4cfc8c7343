package ensemble

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/sklearn/tree"
)

func init() {
	model.Register(&GradientBoostingRegressor{})
}

// GradientBoostingRegressor fits shallow trees stage-wise to the residuals
// of the squared-error loss.
type GradientBoostingRegressor struct {
	State *model.StateManager

	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	// Subsample is the fraction of rows drawn without replacement per stage.
	Subsample   float64
	RandomState int64

	Init_       float64
	Estimators_ []*tree.DecisionTreeRegressor
	TrainScore_ []float64
}

var _ model.Regressor = (*GradientBoostingRegressor)(nil)

// GBOption configures a GradientBoostingRegressor.
type GBOption func(*GradientBoostingRegressor)

// WithGBNEstimators sets the number of boosting stages.
func WithGBNEstimators(n int) GBOption {
	return func(g *GradientBoostingRegressor) { g.NEstimators = n }
}

// WithGBLearningRate sets the shrinkage applied to every stage.
func WithGBLearningRate(lr float64) GBOption {
	return func(g *GradientBoostingRegressor) { g.LearningRate = lr }
}

// WithGBMaxDepth sets the depth of each stage tree.
func WithGBMaxDepth(d int) GBOption {
	return func(g *GradientBoostingRegressor) { g.MaxDepth = d }
}

// WithSubsample sets the row fraction used per stage.
func WithSubsample(s float64) GBOption {
	return func(g *GradientBoostingRegressor) { g.Subsample = s }
}

// WithGBRandomState seeds row subsampling.
func WithGBRandomState(seed int64) GBOption {
	return func(g *GradientBoostingRegressor) { g.RandomState = seed }
}

// NewGradientBoostingRegressor creates a booster with 100 stages of depth 3
// and learning rate 0.1.
func NewGradientBoostingRegressor(opts ...GBOption) *GradientBoostingRegressor {
	g := &GradientBoostingRegressor{
		State:          model.NewStateManager(),
		NEstimators:    100,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 1,
		Subsample:      1.0,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetRandomState implements model.RandomStateSetter.
func (g *GradientBoostingRegressor) SetRandomState(seed int64) { g.RandomState = seed }

// Fit runs NEstimators boosting stages starting from the target mean.
func (g *GradientBoostingRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")

	if g.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be positive", g.NEstimators)
	}
	if g.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", g.LearningRate)
	}
	if g.Subsample <= 0 || g.Subsample > 1 {
		return errors.NewValidationError("subsample", "must be in (0, 1]", g.Subsample)
	}
	cols, target, err := tree.Prepare("GradientBoostingRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	n := cols.NRows
	rng := rand.New(rand.NewSource(g.RandomState))

	mean := 0.0
	for _, v := range target {
		mean += v
	}
	mean /= float64(n)
	g.Init_ = mean

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = mean
	}
	residual := make([]float64, n)
	nSub := int(g.Subsample * float64(n))
	if nSub < 1 {
		nSub = 1
	}

	g.Estimators_ = make([]*tree.DecisionTreeRegressor, 0, g.NEstimators)
	g.TrainScore_ = make([]float64, 0, g.NEstimators)
	row := make([]float64, cols.NFeatures())
	for stage := 0; stage < g.NEstimators; stage++ {
		// negative gradient of 1/2 (y - F)^2
		for i := range residual {
			residual[i] = target[i] - raw[i]
		}
		samples := tree.AllSamples(n)
		if nSub < n {
			rng.Shuffle(n, func(i, j int) { samples[i], samples[j] = samples[j], samples[i] })
			samples = samples[:nSub]
		}

		t := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(g.MaxDepth),
			tree.WithMinSamplesLeaf(g.MinSamplesLeaf),
			tree.WithRandomState(rng.Int63()),
		)
		if err := t.FitSamples(cols, residual, samples); err != nil {
			return errors.Wrapf(err, "stage %d", stage)
		}

		loss := 0.0
		for i := 0; i < n; i++ {
			cols.Row(row, i)
			raw[i] += g.LearningRate * t.PredictRow(row)
			d := target[i] - raw[i]
			loss += d * d
		}
		g.Estimators_ = append(g.Estimators_, t)
		g.TrainScore_ = append(g.TrainScore_, loss/float64(n))
	}

	g.State.SetDimensions(cols.NFeatures(), n)
	g.State.SetFitted()
	return nil
}

// Predict sums the shrunken stage predictions onto the initial mean.
func (g *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	return g.State.PredictRows("GradientBoostingRegressor", X, func(row []float64) float64 {
		v := g.Init_
		for _, t := range g.Estimators_ {
			v += g.LearningRate * t.PredictRow(row)
		}
		return v
	})
}

// Score returns the R² on X and y.
func (g *GradientBoostingRegressor) Score(X, y mat.Matrix) (float64, error) { return score(g, X, y) }

// IsFitted reports whether Fit has completed.
func (g *GradientBoostingRegressor) IsFitted() bool { return g.State.IsFitted() }

// GetParams returns the hyperparameters.
func (g *GradientBoostingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     g.NEstimators,
		"learning_rate":    g.LearningRate,
		"max_depth":        g.MaxDepth,
		"min_samples_leaf": g.MinSamplesLeaf,
		"subsample":        g.Subsample,
		"random_state":     g.RandomState,
	}
}

func (g *GradientBoostingRegressor) String() string {
	return fmt.Sprintf("GradientBoostingRegressor(n_estimators=%d, learning_rate=%g, max_depth=%d)",
		g.NEstimators, g.LearningRate, g.MaxDepth)
}
