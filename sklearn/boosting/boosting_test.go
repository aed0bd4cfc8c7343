package boosting

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

func synthetic(n int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 4, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b := rng.Float64()*4-2, rng.Float64()*4-2
		g := float64(rng.Intn(2))
		X.SetRow(i, []float64{a, b, g, rng.Float64()})
		y.Set(i, 0, 3*a+math.Sin(2*b)+2*g+0.05*rng.NormFloat64())
	}
	return X, y
}

func boosters() map[string]func() model.Estimator {
	return map[string]func() model.Estimator{
		"xgboost": func() model.Estimator {
			return NewXGBRegressor(WithXGBNEstimators(50), WithXGBRandomState(1))
		},
		"xgboost sampled": func() model.Estimator {
			return NewXGBRegressor(WithXGBNEstimators(80), WithXGBSubsample(0.8),
				WithColsampleByTree(0.75), WithXGBRandomState(1))
		},
		"catboost": func() model.Estimator {
			return NewCatBoostRegressor(WithIterations(300), WithCatLearningRate(0.1), WithCatRandomState(1))
		},
	}
}

// minGeneralizationR2 is the held-out R² each booster must exceed. Row and
// column sampling cost the sampled configuration a few points.
var minGeneralizationR2 = map[string]float64{
	"xgboost":         0.9,
	"xgboost sampled": 0.85,
	"catboost":        0.9,
}

func TestBoostersGeneralize(t *testing.T) {
	xTrain, yTrain := synthetic(400, 1)
	xTest, yTest := synthetic(200, 2)
	for name, build := range boosters() {
		t.Run(name, func(t *testing.T) {
			est := build()
			require.NoError(t, est.Fit(xTrain, yTrain))
			score, err := est.(model.Scorer).Score(xTest, yTest)
			require.NoError(t, err)
			assert.Greater(t, score, minGeneralizationR2[name])
		})
	}
}

func TestBoostersDeterministicAndPersistent(t *testing.T) {
	X, y := synthetic(150, 3)
	for name, build := range boosters() {
		t.Run(name, func(t *testing.T) {
			first, second := build(), build()
			require.NoError(t, first.Fit(X, y))
			require.NoError(t, second.Fit(X, y))

			p1, err := first.Predict(X)
			require.NoError(t, err)
			p2, err := second.Predict(X)
			require.NoError(t, err)
			assert.True(t, mat.Equal(p1, p2))

			var buf bytes.Buffer
			require.NoError(t, model.EncodeEstimator(first, &buf))
			loaded, err := model.DecodeEstimator(&buf)
			require.NoError(t, err)
			p3, err := loaded.Predict(X)
			require.NoError(t, err)
			assert.True(t, mat.Equal(p1, p3))
		})
	}
}

func TestBoostersRandomState(t *testing.T) {
	for name, build := range boosters() {
		t.Run(name, func(t *testing.T) {
			est := build()
			est.(model.RandomStateSetter).SetRandomState(7)
			assert.Equal(t, int64(7), est.(model.ParameterGetter).GetParams()["random_state"])
		})
	}
}

func TestBoostersNotFitted(t *testing.T) {
	for name, build := range boosters() {
		t.Run(name, func(t *testing.T) {
			_, err := build().Predict(mat.NewDense(1, 4, nil))
			var nf *errors.NotFittedError
			assert.True(t, errors.As(err, &nf))
		})
	}
}

func TestXGBSingleRoundMatchesClosedForm(t *testing.T) {
	// one stump on a step target: leaf weights are -G/(H+λ) times eta
	X := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	y := mat.NewDense(4, 1, []float64{0, 0, 4, 4})
	x := NewXGBRegressor(WithXGBNEstimators(1), WithXGBMaxDepth(1), WithRegLambda(1), WithXGBLearningRate(0.5))
	require.NoError(t, x.Fit(X, y))

	assert.Equal(t, 2.0, x.BaseScore_)
	tr := x.Trees_[0]
	require.Len(t, tr.Nodes, 3)
	assert.Equal(t, 0.5, tr.Nodes[0].Threshold)
	// left: G = 2*(2-0) = 4, H = 2, w = -4/3
	assert.InDelta(t, 0.5*-4.0/3.0, tr.Predict([]float64{0}), 1e-12)
	assert.InDelta(t, 0.5*4.0/3.0, tr.Predict([]float64{1}), 1e-12)
}

func TestXGBPseudoHuberReducesLoss(t *testing.T) {
	X, y := synthetic(200, 9)
	x := NewXGBRegressor(WithXGBNEstimators(30), WithXGBObjective(ObjectivePseudoHuberError), WithHuberSlope(10))
	require.NoError(t, x.Fit(X, y))
	require.Len(t, x.EvalHistory_, 30)
	assert.Less(t, x.EvalHistory_[29], x.EvalHistory_[0])
}

func TestXGBGammaPrunes(t *testing.T) {
	X, y := synthetic(100, 4)
	x := NewXGBRegressor(WithXGBNEstimators(3), WithGamma(1e9))
	require.NoError(t, x.Fit(X, y))
	for _, tr := range x.Trees_ {
		assert.Len(t, tr.Nodes, 1)
	}
}

func TestXGBMinChildWeight(t *testing.T) {
	X, y := synthetic(60, 5)
	x := NewXGBRegressor(WithXGBNEstimators(2), WithMinChildWeight(25))
	require.NoError(t, x.Fit(X, y))
	for _, tr := range x.Trees_ {
		for _, n := range tr.Nodes {
			if n.LeftChild == -1 {
				assert.GreaterOrEqual(t, n.Cover, 25.0)
			}
		}
	}
}

func TestXGBValidation(t *testing.T) {
	X, y := synthetic(20, 6)
	tests := []struct {
		name string
		opt  XGBOption
	}{
		{"rounds", WithXGBNEstimators(0)},
		{"eta", WithXGBLearningRate(0)},
		{"depth", WithXGBMaxDepth(0)},
		{"lambda", WithRegLambda(-1)},
		{"gamma", WithGamma(-1)},
		{"subsample", WithXGBSubsample(0)},
		{"colsample", WithColsampleByTree(2)},
		{"objective", WithXGBObjective("reg:logistic")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewXGBRegressor(tt.opt).Fit(X, y)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestCatBoostObliviousStructure(t *testing.T) {
	X, y := synthetic(200, 7)
	c := NewCatBoostRegressor(WithIterations(20), WithDepth(4), WithCatRandomState(3))
	require.NoError(t, c.Fit(X, y))
	require.Len(t, c.Trees_, 20)
	for _, tr := range c.Trees_ {
		assert.Len(t, tr.Features, 4)
		assert.Len(t, tr.Borders, 4)
		assert.Len(t, tr.LeafValues, 16)
	}
	for i := 1; i < len(c.LossHistory_); i++ {
		assert.Less(t, c.LossHistory_[i], c.LossHistory_[0]+1e-9)
	}
}

func TestCatBoostLeafIndex(t *testing.T) {
	tr := ObliviousTree{
		Features:   []int{0, 1},
		Borders:    []float64{0.5, 10},
		LeafValues: []float64{1, 2, 3, 4},
	}
	tests := []struct {
		x    []float64
		want float64
	}{
		{[]float64{0, 0}, 1},
		{[]float64{1, 0}, 2},
		{[]float64{0, 11}, 3},
		{[]float64{1, 11}, 4},
		{[]float64{0.5, 10}, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tr.Predict(tt.x))
	}
}

func TestCatBoostValidation(t *testing.T) {
	X, y := synthetic(20, 8)
	tests := []struct {
		name string
		opt  CatOption
	}{
		{"iterations", WithIterations(0)},
		{"depth", WithDepth(17)},
		{"l2", WithL2LeafReg(-1)},
		{"borders", WithBorderCount(0)},
		{"subsample", WithCatSubsample(1.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCatBoostRegressor(tt.opt).Fit(X, y)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestBorders(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		max    int
		want   []float64
	}{
		{"binary indicator", []float64{0, 1, 1, 0}, 254, []float64{0.5}},
		{"constant", []float64{3, 3, 3}, 254, []float64{}},
		{"few values", []float64{1, 2, 4}, 254, []float64{1.5, 3}},
		{"quantiles", []float64{1, 2, 3, 4, 5, 6, 7, 8}, 3, []float64{2.5, 4.5, 6.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Borders(tt.values, tt.max))
		})
	}
}

func TestBinIndexAgreesWithBorders(t *testing.T) {
	borders := []float64{0.5, 1.5, 2.5}
	for _, v := range []float64{-1, 0.5, 0.6, 1.5, 2, 3} {
		bin := binIndex(borders, v)
		for k, b := range borders {
			assert.Equal(t, v > b, bin > k, "value %v border %v", v, b)
		}
	}
}

func TestObjectives(t *testing.T) {
	sq := SquaredError{}
	assert.Equal(t, 2.0, sq.Gradient(3, 1))
	assert.Equal(t, 1.0, sq.Hessian(3, 1))
	assert.Equal(t, 2.0, sq.InitScore([]float64{1, 2, 3}))

	ph := PseudoHuber{Delta: 1}
	assert.InDelta(t, 0.0, ph.Gradient(1, 1), 1e-12)
	assert.InDelta(t, 1.0, ph.Hessian(1, 1), 1e-12)
	assert.InDelta(t, 1.0, math.Abs(ph.Gradient(1e6, 0)), 1e-6)
	assert.Equal(t, 2.5, ph.InitScore([]float64{4, 1, 2, 3}))
}
