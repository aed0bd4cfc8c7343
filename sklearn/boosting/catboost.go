package boosting

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/sklearn/tree"
)

func init() {
	model.Register(&CatBoostRegressor{})
}

// ObliviousTree applies the same split to every node of a level. Bit k of a
// leaf index is set when x[Features[k]] > Borders[k].
type ObliviousTree struct {
	Features   []int
	Borders    []float64
	LeafValues []float64
}

// LeafIndex returns the leaf reached by x.
func (t *ObliviousTree) LeafIndex(x []float64) int {
	idx := 0
	for k, f := range t.Features {
		if x[f] > t.Borders[k] {
			idx |= 1 << k
		}
	}
	return idx
}

// Predict returns the leaf value reached by x.
func (t *ObliviousTree) Predict(x []float64) float64 {
	return t.LeafValues[t.LeafIndex(x)]
}

// CatBoostRegressor boosts symmetric trees over quantized features.
type CatBoostRegressor struct {
	State *model.StateManager

	Iterations   int
	LearningRate float64
	Depth        int
	L2LeafReg    float64
	BorderCount  int
	// Subsample is the Bernoulli row sampling rate per iteration.
	Subsample    float64
	LossFunction string
	RandomState  int64

	BaseScore_   float64
	Borders_     [][]float64
	Trees_       []ObliviousTree
	LossHistory_ []float64
}

var _ model.Regressor = (*CatBoostRegressor)(nil)

// CatOption configures a CatBoostRegressor.
type CatOption func(*CatBoostRegressor)

// WithIterations sets the number of trees.
func WithIterations(n int) CatOption { return func(c *CatBoostRegressor) { c.Iterations = n } }

// WithCatLearningRate sets the shrinkage.
func WithCatLearningRate(lr float64) CatOption {
	return func(c *CatBoostRegressor) { c.LearningRate = lr }
}

// WithDepth sets the depth of every oblivious tree.
func WithDepth(d int) CatOption { return func(c *CatBoostRegressor) { c.Depth = d } }

// WithL2LeafReg sets the L2 regularization of leaf values.
func WithL2LeafReg(l float64) CatOption { return func(c *CatBoostRegressor) { c.L2LeafReg = l } }

// WithBorderCount sets the maximum number of borders per feature.
func WithBorderCount(n int) CatOption { return func(c *CatBoostRegressor) { c.BorderCount = n } }

// WithCatSubsample sets the Bernoulli row sampling rate.
func WithCatSubsample(s float64) CatOption { return func(c *CatBoostRegressor) { c.Subsample = s } }

// WithCatRandomState seeds row sampling.
func WithCatRandomState(seed int64) CatOption {
	return func(c *CatBoostRegressor) { c.RandomState = seed }
}

// NewCatBoostRegressor creates a booster with 1000 depth-6 trees, learning
// rate 0.03, l2_leaf_reg 3 and 254 borders per feature.
func NewCatBoostRegressor(opts ...CatOption) *CatBoostRegressor {
	c := &CatBoostRegressor{
		State:        model.NewStateManager(),
		Iterations:   1000,
		LearningRate: 0.03,
		Depth:        6,
		L2LeafReg:    3,
		BorderCount:  254,
		Subsample:    0.8,
		LossFunction: "RMSE",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRandomState implements model.RandomStateSetter.
func (c *CatBoostRegressor) SetRandomState(seed int64) { c.RandomState = seed }

func (c *CatBoostRegressor) validate() error {
	switch {
	case c.Iterations < 1:
		return errors.NewValidationError("iterations", "must be positive", c.Iterations)
	case c.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", c.LearningRate)
	case c.Depth < 1 || c.Depth > 16:
		return errors.NewValidationError("depth", "must be in [1, 16]", c.Depth)
	case c.L2LeafReg < 0:
		return errors.NewValidationError("l2_leaf_reg", "must be non-negative", c.L2LeafReg)
	case c.BorderCount < 1 || c.BorderCount > 65535:
		return errors.NewValidationError("border_count", "must be in [1, 65535]", c.BorderCount)
	case c.Subsample <= 0 || c.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", c.Subsample)
	}
	return nil
}

// Fit quantizes the features and grows Iterations oblivious trees.
func (c *CatBoostRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "CatBoostRegressor.Fit")

	if err := c.validate(); err != nil {
		return err
	}
	objective, err := NewObjective(c.LossFunction, 1)
	if err != nil {
		return err
	}
	cols, target, err := tree.Prepare("CatBoostRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	n, nFeatures := cols.NRows, cols.NFeatures()
	rng := rand.New(rand.NewSource(c.RandomState))

	c.Borders_ = make([][]float64, nFeatures)
	bins := make([][]uint16, nFeatures)
	for f := 0; f < nFeatures; f++ {
		c.Borders_[f] = Borders(cols.Data[f], c.BorderCount)
		bins[f] = make([]uint16, n)
		for i, v := range cols.Data[f] {
			bins[f][i] = uint16(binIndex(c.Borders_[f], v))
		}
	}

	b := &obliviousBuilder{
		depth:     c.Depth,
		l2:        c.L2LeafReg,
		borders:   c.Borders_,
		bins:      bins,
		gradients: make([]float64, n),
		hessians:  make([]float64, n),
		leafOf:    make([]int, n),
	}

	c.BaseScore_ = objective.InitScore(target)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = c.BaseScore_
	}

	c.Trees_ = make([]ObliviousTree, 0, c.Iterations)
	c.LossHistory_ = make([]float64, 0, c.Iterations)
	samples := make([]int, 0, n)
	for it := 0; it < c.Iterations; it++ {
		for i := 0; i < n; i++ {
			b.gradients[i] = objective.Gradient(pred[i], target[i])
			b.hessians[i] = objective.Hessian(pred[i], target[i])
		}
		samples = samples[:0]
		for i := 0; i < n; i++ {
			if c.Subsample >= 1 || rng.Float64() < c.Subsample {
				samples = append(samples, i)
			}
		}
		if len(samples) == 0 {
			samples = append(samples, rng.Intn(n))
		}

		t := b.build(samples)
		for k := range t.LeafValues {
			t.LeafValues[k] *= c.LearningRate
		}

		loss := 0.0
		for i := 0; i < n; i++ {
			pred[i] += t.LeafValues[b.leafIndex(t, i)]
			loss += objective.Loss(pred[i], target[i])
		}
		c.Trees_ = append(c.Trees_, t)
		c.LossHistory_ = append(c.LossHistory_, math.Sqrt(2*loss/float64(n)))
	}

	c.State.SetDimensions(nFeatures, n)
	c.State.SetFitted()
	return nil
}

type obliviousBuilder struct {
	depth     int
	l2        float64
	borders   [][]float64
	bins      [][]uint16
	gradients []float64
	hessians  []float64
	leafOf    []int
}

// leafIndex finds the leaf of training row i from its bins.
func (b *obliviousBuilder) leafIndex(t ObliviousTree, i int) int {
	idx := 0
	for k, f := range t.Features {
		if int(b.bins[f][i]) > b.borderPos(f, t.Borders[k]) {
			idx |= 1 << k
		}
	}
	return idx
}

func (b *obliviousBuilder) borderPos(f int, border float64) int {
	return binIndex(b.borders[f], border)
}

// build grows one tree level by level. Every level picks the (feature,
// border) pair maximizing sum over leaves of G²/(H+λ).
func (b *obliviousBuilder) build(samples []int) ObliviousTree {
	for _, i := range samples {
		b.leafOf[i] = 0
	}
	t := ObliviousTree{}

	for level := 0; level < b.depth; level++ {
		nLeaves := 1 << level
		bestScore := math.Inf(-1)
		bestFeature, bestBorder := -1, 0

		for f, borders := range b.borders {
			nb := len(borders)
			if nb == 0 {
				continue
			}
			nBins := nb + 1
			hg := make([]float64, nLeaves*nBins)
			hh := make([]float64, nLeaves*nBins)
			for _, i := range samples {
				k := b.leafOf[i]*nBins + int(b.bins[f][i])
				hg[k] += b.gradients[i]
				hh[k] += b.hessians[i]
			}

			// prefix sums per leaf so that [0..k] is the left side of border k
			totG := make([]float64, nLeaves)
			totH := make([]float64, nLeaves)
			for leaf := 0; leaf < nLeaves; leaf++ {
				base := leaf * nBins
				for k := 1; k < nBins; k++ {
					hg[base+k] += hg[base+k-1]
					hh[base+k] += hh[base+k-1]
				}
				totG[leaf] = hg[base+nBins-1]
				totH[leaf] = hh[base+nBins-1]
			}

			for k := 0; k < nb; k++ {
				s := 0.0
				for leaf := 0; leaf < nLeaves; leaf++ {
					gl, hl := hg[leaf*nBins+k], hh[leaf*nBins+k]
					gr, hr := totG[leaf]-gl, totH[leaf]-hl
					s += gl*gl/(hl+b.l2) + gr*gr/(hr+b.l2)
				}
				if s > bestScore+1e-12 {
					bestScore = s
					bestFeature, bestBorder = f, k
				}
			}
		}

		if bestFeature < 0 {
			break
		}
		border := b.borders[bestFeature][bestBorder]
		t.Features = append(t.Features, bestFeature)
		t.Borders = append(t.Borders, border)
		for _, i := range samples {
			if int(b.bins[bestFeature][i]) > bestBorder {
				b.leafOf[i] |= 1 << level
			}
		}
	}

	nLeaves := 1 << len(t.Features)
	g := make([]float64, nLeaves)
	h := make([]float64, nLeaves)
	for _, i := range samples {
		g[b.leafOf[i]] += b.gradients[i]
		h[b.leafOf[i]] += b.hessians[i]
	}
	t.LeafValues = make([]float64, nLeaves)
	for k := range t.LeafValues {
		t.LeafValues[k] = -g[k] / (h[k] + b.l2)
	}
	return t
}

// Predict sums the tree outputs onto BaseScore_.
func (c *CatBoostRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	return c.State.PredictRows("CatBoostRegressor", X, func(row []float64) float64 {
		v := c.BaseScore_
		for i := range c.Trees_ {
			v += c.Trees_[i].Predict(row)
		}
		return v
	})
}

// Score returns the R² on X and y.
func (c *CatBoostRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, pred)
}

// IsFitted reports whether Fit has completed.
func (c *CatBoostRegressor) IsFitted() bool { return c.State.IsFitted() }

// GetParams returns the hyperparameters under their CatBoost names.
func (c *CatBoostRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"iterations":    c.Iterations,
		"learning_rate": c.LearningRate,
		"depth":         c.Depth,
		"l2_leaf_reg":   c.L2LeafReg,
		"border_count":  c.BorderCount,
		"subsample":     c.Subsample,
		"loss_function": c.LossFunction,
		"random_state":  c.RandomState,
	}
}

func (c *CatBoostRegressor) String() string {
	return fmt.Sprintf("CatBoostRegressor(iterations=%d, learning_rate=%g, depth=%d)",
		c.Iterations, c.LearningRate, c.Depth)
}
