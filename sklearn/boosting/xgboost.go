package boosting

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/sklearn/tree"
)

func init() {
	model.Register(&XGBRegressor{})
}

// minSplitLoss is the smallest loss reduction treated as a real split.
const minSplitLoss = 1e-6

// Node is a node of a depth-wise regression tree. Leaves have LeftChild and
// RightChild set to -1 and carry the already shrunken LeafValue.
type Node struct {
	SplitFeature int
	Threshold    float64
	LeftChild    int
	RightChild   int
	Gain         float64
	Cover        float64
	LeafValue    float64
}

// RegTree is one boosting round.
type RegTree struct {
	Nodes []Node
}

// Predict walks the tree for one row.
func (t *RegTree) Predict(x []float64) float64 {
	idx := 0
	for {
		n := &t.Nodes[idx]
		if n.LeftChild == -1 {
			return n.LeafValue
		}
		if x[n.SplitFeature] <= n.Threshold {
			idx = n.LeftChild
		} else {
			idx = n.RightChild
		}
	}
}

// XGBRegressor is a second-order gradient boosted tree ensemble. Splits
// maximize
//
//	1/2 [G_L²/(H_L+λ) + G_R²/(H_R+λ) - G²/(H+λ)] - γ
//
// and leaves take the weight -G/(H+λ) scaled by LearningRate, with G
// soft-thresholded by Alpha.
type XGBRegressor struct {
	State *model.StateManager

	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinChildWeight  float64
	Lambda          float64
	Alpha           float64
	Gamma           float64
	Subsample       float64
	ColsampleByTree float64
	Objective       string
	HuberSlope      float64
	RandomState     int64

	BaseScore_          float64
	Trees_              []RegTree
	FeatureImportances_ []float64
	EvalHistory_        []float64
}

var _ model.Regressor = (*XGBRegressor)(nil)

// XGBOption configures an XGBRegressor.
type XGBOption func(*XGBRegressor)

// WithXGBNEstimators sets the number of boosting rounds.
func WithXGBNEstimators(n int) XGBOption { return func(x *XGBRegressor) { x.NEstimators = n } }

// WithXGBLearningRate sets eta.
func WithXGBLearningRate(eta float64) XGBOption {
	return func(x *XGBRegressor) { x.LearningRate = eta }
}

// WithXGBMaxDepth sets the maximum tree depth.
func WithXGBMaxDepth(d int) XGBOption { return func(x *XGBRegressor) { x.MaxDepth = d } }

// WithMinChildWeight sets the minimum hessian sum per child.
func WithMinChildWeight(w float64) XGBOption {
	return func(x *XGBRegressor) { x.MinChildWeight = w }
}

// WithRegLambda sets the L2 penalty on leaf weights.
func WithRegLambda(l float64) XGBOption { return func(x *XGBRegressor) { x.Lambda = l } }

// WithRegAlpha sets the L1 penalty on leaf weights.
func WithRegAlpha(a float64) XGBOption { return func(x *XGBRegressor) { x.Alpha = a } }

// WithGamma sets the minimum loss reduction needed to split.
func WithGamma(g float64) XGBOption { return func(x *XGBRegressor) { x.Gamma = g } }

// WithXGBSubsample sets the row fraction sampled per round.
func WithXGBSubsample(s float64) XGBOption { return func(x *XGBRegressor) { x.Subsample = s } }

// WithColsampleByTree sets the feature fraction sampled per round.
func WithColsampleByTree(c float64) XGBOption {
	return func(x *XGBRegressor) { x.ColsampleByTree = c }
}

// WithXGBObjective selects reg:squarederror or reg:pseudohubererror.
func WithXGBObjective(name string) XGBOption {
	return func(x *XGBRegressor) { x.Objective = name }
}

// WithHuberSlope sets delta for reg:pseudohubererror.
func WithHuberSlope(d float64) XGBOption { return func(x *XGBRegressor) { x.HuberSlope = d } }

// WithXGBRandomState seeds row and feature sampling.
func WithXGBRandomState(seed int64) XGBOption {
	return func(x *XGBRegressor) { x.RandomState = seed }
}

// NewXGBRegressor creates a booster with the XGBoost defaults: 100 rounds,
// eta 0.3, depth 6, lambda 1, gamma 0.
func NewXGBRegressor(opts ...XGBOption) *XGBRegressor {
	x := &XGBRegressor{
		State:           model.NewStateManager(),
		NEstimators:     100,
		LearningRate:    0.3,
		MaxDepth:        6,
		MinChildWeight:  1,
		Lambda:          1,
		Subsample:       1,
		ColsampleByTree: 1,
		Objective:       ObjectiveSquaredError,
		HuberSlope:      1,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// SetRandomState implements model.RandomStateSetter.
func (x *XGBRegressor) SetRandomState(seed int64) { x.RandomState = seed }

func (x *XGBRegressor) validate() error {
	switch {
	case x.NEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be positive", x.NEstimators)
	case x.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", x.LearningRate)
	case x.MaxDepth < 1:
		return errors.NewValidationError("max_depth", "must be positive", x.MaxDepth)
	case x.Lambda < 0:
		return errors.NewValidationError("reg_lambda", "must be non-negative", x.Lambda)
	case x.Alpha < 0:
		return errors.NewValidationError("reg_alpha", "must be non-negative", x.Alpha)
	case x.Gamma < 0:
		return errors.NewValidationError("gamma", "must be non-negative", x.Gamma)
	case x.Subsample <= 0 || x.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", x.Subsample)
	case x.ColsampleByTree <= 0 || x.ColsampleByTree > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", x.ColsampleByTree)
	}
	return nil
}

// Fit runs NEstimators boosting rounds.
func (x *XGBRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "XGBRegressor.Fit")

	if err := x.validate(); err != nil {
		return err
	}
	objective, err := NewObjective(x.Objective, x.HuberSlope)
	if err != nil {
		return err
	}
	cols, target, err := tree.Prepare("XGBRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	n, nFeatures := cols.NRows, cols.NFeatures()
	rng := rand.New(rand.NewSource(x.RandomState))

	b := &xgbBuilder{
		params:      x,
		cols:        cols,
		gradients:   make([]float64, n),
		hessians:    make([]float64, n),
		importances: make([]float64, nFeatures),
	}

	x.BaseScore_ = objective.InitScore(target)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = x.BaseScore_
	}

	x.Trees_ = make([]RegTree, 0, x.NEstimators)
	x.EvalHistory_ = make([]float64, 0, x.NEstimators)
	row := make([]float64, nFeatures)
	for round := 0; round < x.NEstimators; round++ {
		for i := 0; i < n; i++ {
			b.gradients[i] = objective.Gradient(pred[i], target[i])
			b.hessians[i] = objective.Hessian(pred[i], target[i])
		}

		samples := tree.AllSamples(n)
		if x.Subsample < 1 {
			samples = sampleWithoutReplacement(rng, n, x.Subsample)
		}
		b.features = tree.AllSamples(nFeatures)
		if x.ColsampleByTree < 1 {
			b.features = sampleWithoutReplacement(rng, nFeatures, x.ColsampleByTree)
		}

		t := b.build(samples)
		loss := 0.0
		for i := 0; i < n; i++ {
			pred[i] += t.Predict(cols.Row(row, i))
			loss += objective.Loss(pred[i], target[i])
		}
		x.Trees_ = append(x.Trees_, t)
		x.EvalHistory_ = append(x.EvalHistory_, loss/float64(n))
	}

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for i := range b.importances {
			b.importances[i] /= total
		}
	}
	x.FeatureImportances_ = b.importances

	x.State.SetDimensions(nFeatures, n)
	x.State.SetFitted()
	return nil
}

// sampleWithoutReplacement draws max(1, floor(frac*n)) sorted indices.
func sampleWithoutReplacement(rng *rand.Rand, n int, frac float64) []int {
	k := int(frac * float64(n))
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}

type xgbBuilder struct {
	params      *XGBRegressor
	cols        *tree.Columns
	features    []int
	gradients   []float64
	hessians    []float64
	importances []float64
}

type xgbSplit struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *xgbBuilder) build(samples []int) RegTree {
	t := RegTree{}
	b.grow(&t, samples, 0)
	return t
}

func (b *xgbBuilder) sums(samples []int) (g, h float64) {
	for _, i := range samples {
		g += b.gradients[i]
		h += b.hessians[i]
	}
	return g, h
}

// thresholdL1 applies the Alpha soft threshold to a gradient sum.
func (b *xgbBuilder) thresholdL1(g float64) float64 {
	a := b.params.Alpha
	switch {
	case g > a:
		return g - a
	case g < -a:
		return g + a
	}
	return 0
}

func (b *xgbBuilder) score(g, h float64) float64 {
	tg := b.thresholdL1(g)
	return tg * tg / (h + b.params.Lambda)
}

func (b *xgbBuilder) leafWeight(g, h float64) float64 {
	return -b.thresholdL1(g) / (h + b.params.Lambda)
}

func (b *xgbBuilder) grow(t *RegTree, samples []int, depth int) int {
	g, h := b.sums(samples)
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		SplitFeature: -1,
		LeftChild:    -1,
		RightChild:   -1,
		Cover:        h,
		LeafValue:    b.params.LearningRate * b.leafWeight(g, h),
	})
	if depth >= b.params.MaxDepth || len(samples) < 2 {
		return idx
	}

	best, ok := b.findSplit(samples, g, h)
	if !ok {
		return idx
	}

	var left, right []int
	col := b.cols.Data[best.feature]
	for _, i := range samples {
		if col[i] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importances[best.feature] += best.gain

	l := b.grow(t, left, depth+1)
	r := b.grow(t, right, depth+1)
	node := &t.Nodes[idx]
	node.SplitFeature = best.feature
	node.Threshold = best.threshold
	node.Gain = best.gain
	node.LeftChild = l
	node.RightChild = r
	node.LeafValue = 0
	return idx
}

// findSplit runs the exact greedy search over the sampled features.
func (b *xgbBuilder) findSplit(samples []int, g, h float64) (xgbSplit, bool) {
	parent := b.score(g, h)
	best := xgbSplit{gain: minSplitLoss}
	found := false
	order := make([]int, len(samples))

	for _, f := range b.features {
		col := b.cols.Data[f]
		copy(order, samples)
		sort.SliceStable(order, func(a, c int) bool { return col[order[a]] < col[order[c]] })

		gl, hl := 0.0, 0.0
		for pos := 0; pos < len(order)-1; pos++ {
			gl += b.gradients[order[pos]]
			hl += b.hessians[order[pos]]
			lo, hi := col[order[pos]], col[order[pos+1]]
			if lo == hi {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < b.params.MinChildWeight || hr < b.params.MinChildWeight {
				continue
			}
			gain := 0.5*(b.score(gl, hl)+b.score(gr, hr)-parent) - b.params.Gamma
			if gain > best.gain {
				threshold := lo + (hi-lo)/2
				if threshold == hi {
					threshold = lo
				}
				best = xgbSplit{feature: f, threshold: threshold, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

// Predict sums the round outputs onto BaseScore_.
func (x *XGBRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	return x.State.PredictRows("XGBRegressor", X, func(row []float64) float64 {
		v := x.BaseScore_
		for i := range x.Trees_ {
			v += x.Trees_[i].Predict(row)
		}
		return v
	})
}

// Score returns the R² on X and y.
func (x *XGBRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := x.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, pred)
}

// IsFitted reports whether Fit has completed.
func (x *XGBRegressor) IsFitted() bool { return x.State.IsFitted() }

// GetParams returns the hyperparameters under their XGBoost names.
func (x *XGBRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":     x.NEstimators,
		"learning_rate":    x.LearningRate,
		"max_depth":        x.MaxDepth,
		"min_child_weight": x.MinChildWeight,
		"reg_lambda":       x.Lambda,
		"reg_alpha":        x.Alpha,
		"gamma":            x.Gamma,
		"subsample":        x.Subsample,
		"colsample_bytree": x.ColsampleByTree,
		"objective":        x.Objective,
		"huber_slope":      x.HuberSlope,
		"random_state":     x.RandomState,
	}
}

func (x *XGBRegressor) String() string {
	return fmt.Sprintf("XGBRegressor(n_estimators=%d, learning_rate=%g, max_depth=%d)",
		x.NEstimators, x.LearningRate, x.MaxDepth)
}
