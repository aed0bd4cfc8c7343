// Package tree provides a CART regression tree with a squared-error
// criterion. The ensembles in sklearn/ensemble build on it.
package tree

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

func init() {
	model.Register(&DecisionTreeRegressor{})
}

// Node is one node of a fitted tree. Leaves have LeftChild and RightChild
// set to -1.
type Node struct {
	SplitFeature int
	Threshold    float64
	LeftChild    int
	RightChild   int

	Value    float64
	NSamples int
	Impurity float64
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// DecisionTreeRegressor is a CART regression tree. Samples with a feature
// value <= Threshold go left.
type DecisionTreeRegressor struct {
	State *model.StateManager

	// MaxDepth limits the depth of the tree; 0 means unlimited.
	MaxDepth int
	// MinSamplesSplit is the minimum number of samples needed to split a node.
	MinSamplesSplit int
	// MinSamplesLeaf is the minimum number of samples in each child.
	MinSamplesLeaf int
	// MaxFeatures is the number of features considered per split; 0 means all.
	MaxFeatures int
	// RandomState seeds the feature sampling.
	RandomState int64

	Nodes               []Node
	FeatureImportances_ []float64
}

var _ model.Regressor = (*DecisionTreeRegressor)(nil)

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// WithMaxDepth sets the maximum depth (0 for unlimited).
func WithMaxDepth(d int) Option { return func(t *DecisionTreeRegressor) { t.MaxDepth = d } }

// WithMinSamplesSplit sets the minimum number of samples required to split.
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeRegressor) { t.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples per leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeRegressor) { t.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features tried at each split.
func WithMaxFeatures(k int) Option { return func(t *DecisionTreeRegressor) { t.MaxFeatures = k } }

// WithRandomState seeds the feature sampling.
func WithRandomState(seed int64) Option {
	return func(t *DecisionTreeRegressor) { t.RandomState = seed }
}

// NewDecisionTreeRegressor creates a fully grown tree unless limited by options.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	t := &DecisionTreeRegressor{
		State:           model.NewStateManager(),
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetRandomState implements model.RandomStateSetter.
func (t *DecisionTreeRegressor) SetRandomState(seed int64) { t.RandomState = seed }

// Fit grows the tree on X and y.
func (t *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	cols, target, err := Prepare("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	return t.FitSamples(cols, target, AllSamples(cols.NRows))
}

// FitSamples grows the tree on the rows listed in samples, which may contain
// repeats (bootstrap draws count once per occurrence).
func (t *DecisionTreeRegressor) FitSamples(X *Columns, y []float64, samples []int) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")

	if len(samples) == 0 || X.NFeatures() == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if t.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", t.MinSamplesSplit)
	}
	if t.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", t.MinSamplesLeaf)
	}

	b := &builder{
		tree:        t,
		X:           X,
		y:           y,
		rng:         rand.New(rand.NewSource(t.RandomState)),
		importances: make([]float64, X.NFeatures()),
	}
	t.Nodes = t.Nodes[:0]
	b.build(append([]int(nil), samples...), 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for i := range b.importances {
			b.importances[i] /= total
		}
	}
	t.FeatureImportances_ = b.importances

	t.State.SetDimensions(X.NFeatures(), len(samples))
	t.State.SetFitted()
	return nil
}

type builder struct {
	tree        *DecisionTreeRegressor
	X           *Columns
	y           []float64
	rng         *rand.Rand
	importances []float64
}

type split struct {
	feature   int
	threshold float64
	pos       int // samples[:pos] go left after sorting by feature
	score     float64
}

// build appends the subtree for samples and returns its node index.
func (b *builder) build(samples []int, depth int) int {
	n := len(samples)
	sum, sumSq := 0.0, 0.0
	for _, i := range samples {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	mean := sum / float64(n)
	impurity := math.Max(0, sumSq/float64(n)-mean*mean)

	idx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		SplitFeature: -1,
		LeftChild:    -1,
		RightChild:   -1,
		Value:        mean,
		NSamples:     n,
		Impurity:     impurity,
	})

	t := b.tree
	if n < t.MinSamplesSplit || n < 2*t.MinSamplesLeaf ||
		(t.MaxDepth > 0 && depth >= t.MaxDepth) || impurity <= 1e-12 {
		return idx
	}

	best, ok := b.findSplit(samples, sum)
	if !ok {
		return idx
	}

	feature := b.X.Data[best.feature]
	sort.SliceStable(samples, func(a, c int) bool { return feature[samples[a]] < feature[samples[c]] })
	left := samples[:best.pos]
	right := samples[best.pos:]

	// weighted impurity decrease: n*impurity - (left SSE + right SSE)
	parentSSE := impurity * float64(n)
	childSSE := sumSq - best.score
	b.importances[best.feature] += parentSSE - childSSE

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	b.tree.Nodes[idx].SplitFeature = best.feature
	b.tree.Nodes[idx].Threshold = best.threshold
	b.tree.Nodes[idx].LeftChild = leftIdx
	b.tree.Nodes[idx].RightChild = rightIdx
	return idx
}

// findSplit maximizes sumL²/nL + sumR²/nR, which minimizes the children's
// summed squared error.
func (b *builder) findSplit(samples []int, total float64) (split, bool) {
	nFeatures := b.X.NFeatures()
	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}
	if k := b.tree.MaxFeatures; k > 0 && k < nFeatures {
		b.rng.Shuffle(nFeatures, func(i, j int) { features[i], features[j] = features[j], features[i] })
		features = features[:k]
		sort.Ints(features)
	}

	n := len(samples)
	minLeaf := b.tree.MinSamplesLeaf
	order := make([]int, n)
	best := split{score: math.Inf(-1)}
	found := false

	for _, f := range features {
		col := b.X.Data[f]
		copy(order, samples)
		sort.SliceStable(order, func(a, c int) bool { return col[order[a]] < col[order[c]] })

		leftSum := 0.0
		for pos := 1; pos < n; pos++ {
			leftSum += b.y[order[pos-1]]
			lo, hi := col[order[pos-1]], col[order[pos]]
			if lo == hi || pos < minLeaf || n-pos < minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(pos) + rightSum*rightSum/float64(n-pos)
			if score > best.score+1e-12 {
				threshold := lo + (hi-lo)/2
				if threshold == hi {
					threshold = lo
				}
				best = split{feature: f, threshold: threshold, pos: pos, score: score}
				found = true
			}
		}
	}
	return best, found
}

// Predict returns the leaf value reached by every row of X.
func (t *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	return t.State.PredictRows("DecisionTreeRegressor", X, t.PredictRow)
}

// PredictRow walks the tree for a single feature vector.
func (t *DecisionTreeRegressor) PredictRow(x []float64) float64 {
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return node.Value
		}
		if x[node.SplitFeature] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

// Score returns the R² of the predictions for X against y.
func (t *DecisionTreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := t.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, pred)
}

// Depth returns the depth of the fitted tree (a single leaf has depth 0).
func (t *DecisionTreeRegressor) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		n := &t.Nodes[idx]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.LeftChild), walk(n.RightChild))
	}
	return walk(0)
}

// NLeaves returns the number of leaves.
func (t *DecisionTreeRegressor) NLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// IsFitted reports whether Fit has completed.
func (t *DecisionTreeRegressor) IsFitted() bool { return t.State.IsFitted() }

// GetParams returns the hyperparameters.
func (t *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         t.MaxDepth,
		"min_samples_split": t.MinSamplesSplit,
		"min_samples_leaf":  t.MinSamplesLeaf,
		"max_features":      t.MaxFeatures,
		"random_state":      t.RandomState,
	}
}

func (t *DecisionTreeRegressor) String() string {
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, nodes=%d)", t.MaxDepth, len(t.Nodes))
}
