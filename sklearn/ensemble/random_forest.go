package ensemble

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/core/parallel"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/sklearn/tree"
)

func init() {
	model.Register(&RandomForestRegressor{})
}

// RandomForestRegressor averages fully grown regression trees, each fitted
// on a bootstrap sample of the training rows.
type RandomForestRegressor struct {
	State *model.StateManager

	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures per split; 0 uses every feature.
	MaxFeatures int
	Bootstrap   bool
	RandomState int64
	// NJobs is the number of trees grown at once; below 1 means GOMAXPROCS.
	NJobs int

	Estimators_         []*tree.DecisionTreeRegressor
	FeatureImportances_ []float64
}

var _ model.Regressor = (*RandomForestRegressor)(nil)

// ForestOption configures a RandomForestRegressor.
type ForestOption func(*RandomForestRegressor)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(f *RandomForestRegressor) { f.NEstimators = n }
}

// WithForestMaxDepth limits the depth of every tree.
func WithForestMaxDepth(d int) ForestOption {
	return func(f *RandomForestRegressor) { f.MaxDepth = d }
}

// WithForestMaxFeatures sets the number of features tried per split.
func WithForestMaxFeatures(k int) ForestOption {
	return func(f *RandomForestRegressor) { f.MaxFeatures = k }
}

// WithForestMinSamplesLeaf sets the minimum leaf size of every tree.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(f *RandomForestRegressor) { f.MinSamplesLeaf = n }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) ForestOption {
	return func(f *RandomForestRegressor) { f.Bootstrap = b }
}

// WithNJobs sets how many trees are grown concurrently.
func WithNJobs(n int) ForestOption {
	return func(f *RandomForestRegressor) { f.NJobs = n }
}

// WithForestRandomState seeds the bootstrap draws and feature sampling.
func WithForestRandomState(seed int64) ForestOption {
	return func(f *RandomForestRegressor) { f.RandomState = seed }
}

// NewRandomForestRegressor creates a forest of 100 bootstrap trees.
func NewRandomForestRegressor(opts ...ForestOption) *RandomForestRegressor {
	f := &RandomForestRegressor{
		State:           model.NewStateManager(),
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		NJobs:           1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetRandomState implements model.RandomStateSetter.
func (f *RandomForestRegressor) SetRandomState(seed int64) { f.RandomState = seed }

// Fit grows NEstimators trees, NJobs at a time.
func (f *RandomForestRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.Fit")

	if f.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be positive", f.NEstimators)
	}
	cols, target, err := tree.Prepare("RandomForestRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	n := cols.NRows
	rng := rand.New(rand.NewSource(f.RandomState))

	// draws happen up front so trees can be grown concurrently with the
	// same result as a sequential fit
	samples := make([][]int, f.NEstimators)
	seeds := make([]int64, f.NEstimators)
	for k := range samples {
		samples[k] = make([]int, n)
		for i := range samples[k] {
			if f.Bootstrap {
				samples[k][i] = rng.Intn(n)
			} else {
				samples[k][i] = i
			}
		}
		seeds[k] = rng.Int63()
	}

	trees := make([]*tree.DecisionTreeRegressor, f.NEstimators)
	err = parallel.Each(f.NEstimators, f.NJobs, func(k int) error {
		return errors.SafeExecute(fmt.Sprintf("tree %d", k), func() error {
			t := tree.NewDecisionTreeRegressor(
				tree.WithMaxDepth(f.MaxDepth),
				tree.WithMinSamplesSplit(f.MinSamplesSplit),
				tree.WithMinSamplesLeaf(f.MinSamplesLeaf),
				tree.WithMaxFeatures(f.MaxFeatures),
				tree.WithRandomState(seeds[k]),
			)
			if err := t.FitSamples(cols, target, samples[k]); err != nil {
				return errors.Wrapf(err, "tree %d", k)
			}
			trees[k] = t
			return nil
		})
	})
	if err != nil {
		return err
	}

	importances := make([]float64, cols.NFeatures())
	for _, t := range trees {
		for j, v := range t.FeatureImportances_ {
			importances[j] += v / float64(f.NEstimators)
		}
	}
	f.Estimators_ = trees
	f.FeatureImportances_ = importances

	f.State.SetDimensions(cols.NFeatures(), n)
	f.State.SetFitted()
	return nil
}

// Predict returns the mean prediction of the trees.
func (f *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	return f.State.PredictRows("RandomForestRegressor", X, func(row []float64) float64 {
		sum := 0.0
		for _, t := range f.Estimators_ {
			sum += t.PredictRow(row)
		}
		return sum / float64(len(f.Estimators_))
	})
}

// Score returns the R² on X and y.
func (f *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) { return score(f, X, y) }

// IsFitted reports whether Fit has completed.
func (f *RandomForestRegressor) IsFitted() bool { return f.State.IsFitted() }

// GetParams returns the hyperparameters.
func (f *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      f.NEstimators,
		"max_depth":         f.MaxDepth,
		"min_samples_split": f.MinSamplesSplit,
		"min_samples_leaf":  f.MinSamplesLeaf,
		"max_features":      f.MaxFeatures,
		"bootstrap":         f.Bootstrap,
		"random_state":      f.RandomState,
		"n_jobs":            f.NJobs,
	}
}

func (f *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d)", f.NEstimators)
}
