package tree

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

func stepData() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 1, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y := mat.NewDense(8, 1, []float64{1, 1, 1, 1, 5, 5, 5, 5})
	return X, y
}

func TestDecisionTreeStepFunction(t *testing.T) {
	X, y := stepData()
	tree := NewDecisionTreeRegressor()
	require.NoError(t, tree.Fit(X, y))

	require.Len(t, tree.Nodes, 3)
	root := tree.Nodes[0]
	assert.Equal(t, 0, root.SplitFeature)
	assert.InDelta(t, 4.5, root.Threshold, 1e-12)
	assert.Equal(t, 1, tree.Depth())
	assert.Equal(t, 2, tree.NLeaves())

	pred, err := tree.Predict(mat.NewDense(3, 1, []float64{0, 4.5, 100}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, pred.At(0, 0))
	assert.Equal(t, 1.0, pred.At(1, 0))
	assert.Equal(t, 5.0, pred.At(2, 0))

	score, err := tree.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-12)
}

func TestDecisionTreeLimits(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 200
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := rng.Float64()*10, rng.Float64()*10
		X.SetRow(i, []float64{a, b})
		y.Set(i, 0, math.Sin(a)+0.5*b)
	}

	tests := []struct {
		name  string
		opts  []Option
		check func(t *testing.T, tree *DecisionTreeRegressor)
	}{
		{
			name: "max depth",
			opts: []Option{WithMaxDepth(3)},
			check: func(t *testing.T, tree *DecisionTreeRegressor) {
				assert.LessOrEqual(t, tree.Depth(), 3)
				assert.LessOrEqual(t, tree.NLeaves(), 8)
			},
		},
		{
			name: "min samples leaf",
			opts: []Option{WithMinSamplesLeaf(20)},
			check: func(t *testing.T, tree *DecisionTreeRegressor) {
				for _, node := range tree.Nodes {
					if node.IsLeaf() {
						assert.GreaterOrEqual(t, node.NSamples, 20)
					}
				}
			},
		},
		{
			name: "min samples split",
			opts: []Option{WithMinSamplesSplit(50)},
			check: func(t *testing.T, tree *DecisionTreeRegressor) {
				for _, node := range tree.Nodes {
					if !node.IsLeaf() {
						assert.GreaterOrEqual(t, node.NSamples, 50)
					}
				}
			},
		},
		{
			name: "unlimited fits training data",
			check: func(t *testing.T, tree *DecisionTreeRegressor) {
				score, err := tree.Score(X, y)
				require.NoError(t, err)
				assert.InDelta(t, 1.0, score, 1e-9)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := NewDecisionTreeRegressor(tt.opts...)
			require.NoError(t, tree.Fit(X, y))
			tt.check(t, tree)
		})
	}
}

func TestDecisionTreeFeatureImportances(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n := 100
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a := rng.Float64()
		X.SetRow(i, []float64{rng.Float64(), a})
		y.Set(i, 0, 10*a)
	}

	tree := NewDecisionTreeRegressor(WithMaxDepth(4))
	require.NoError(t, tree.Fit(X, y))
	require.Len(t, tree.FeatureImportances_, 2)
	assert.InDelta(t, 1.0, tree.FeatureImportances_[0]+tree.FeatureImportances_[1], 1e-9)
	assert.Greater(t, tree.FeatureImportances_[1], 0.9)
}

func TestDecisionTreeMaxFeaturesDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	n := 120
	X := mat.NewDense(n, 4, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		row := []float64{rng.Float64(), rng.Float64(), rng.Float64(), rng.Float64()}
		X.SetRow(i, row)
		y.Set(i, 0, row[0]+2*row[1]-row[2]+0.5*row[3])
	}

	fit := func() *DecisionTreeRegressor {
		tree := NewDecisionTreeRegressor(WithMaxFeatures(2), WithRandomState(11), WithMaxDepth(5))
		require.NoError(t, tree.Fit(X, y))
		return tree
	}
	assert.Equal(t, fit().Nodes, fit().Nodes)
}

func TestDecisionTreeFitSamplesWithRepeats(t *testing.T) {
	X, y := stepData()
	cols := NewColumns(X)
	target := mat.Col(nil, 0, y)

	tree := NewDecisionTreeRegressor()
	require.NoError(t, tree.FitSamples(cols, target, []int{0, 0, 0, 7}))
	assert.Equal(t, 4, tree.Nodes[0].NSamples)
	assert.InDelta(t, 2.0, tree.Nodes[0].Value, 1e-12)
	assert.Equal(t, 1.0, tree.PredictRow([]float64{1}))
	assert.Equal(t, 5.0, tree.PredictRow([]float64{8}))
}

func TestDecisionTreeConstantTarget(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{7, 7, 7, 7})
	tree := NewDecisionTreeRegressor()
	require.NoError(t, tree.Fit(X, y))
	assert.Len(t, tree.Nodes, 1)
	assert.Equal(t, 7.0, tree.PredictRow([]float64{100}))
}

func TestDecisionTreeErrors(t *testing.T) {
	t.Run("not fitted", func(t *testing.T) {
		_, err := NewDecisionTreeRegressor().Predict(mat.NewDense(1, 1, nil))
		var nf *errors.NotFittedError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("row mismatch", func(t *testing.T) {
		err := NewDecisionTreeRegressor().Fit(mat.NewDense(3, 1, nil), mat.NewDense(2, 1, nil))
		var de *errors.DimensionError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, 0, de.Axis)
	})

	t.Run("feature mismatch", func(t *testing.T) {
		X, y := stepData()
		tree := NewDecisionTreeRegressor()
		require.NoError(t, tree.Fit(X, y))
		_, err := tree.Predict(mat.NewDense(1, 2, nil))
		var de *errors.DimensionError
		assert.True(t, errors.As(err, &de))
	})

	t.Run("invalid min samples split", func(t *testing.T) {
		X, y := stepData()
		err := NewDecisionTreeRegressor(WithMinSamplesSplit(1)).Fit(X, y)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve))
	})
}

func TestDecisionTreePersistence(t *testing.T) {
	X, y := stepData()
	tree := NewDecisionTreeRegressor(WithMaxDepth(2))
	require.NoError(t, tree.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.EncodeEstimator(tree, &buf))
	est, err := model.DecodeEstimator(&buf)
	require.NoError(t, err)

	loaded, ok := est.(*DecisionTreeRegressor)
	require.True(t, ok)
	want, err := tree.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}
