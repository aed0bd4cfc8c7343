package model

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// constantModel predicts a stored constant.
type constantModel struct {
	State *StateManager
	Value float64
}

func (c *constantModel) Fit(X, y mat.Matrix) error {
	r, _ := y.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		sum += y.At(i, 0)
	}
	c.Value = sum / float64(r)
	_, cols := X.Dims()
	c.State.SetDimensions(cols, r)
	c.State.SetFitted()
	return nil
}

func (c *constantModel) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := c.State.RequireFitted("constantModel", "Predict"); err != nil {
		return nil, err
	}
	r, cols := X.Dims()
	if err := c.State.RequireFeatures("constantModel.Predict", cols); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, c.Value)
	}
	return out, nil
}

func init() {
	Register(&constantModel{})
}

func TestStateManager(t *testing.T) {
	sm := NewStateManager()
	assert.False(t, sm.IsFitted())

	err := sm.RequireFitted("M", "Predict")
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "M", nf.ModelName)

	sm.SetDimensions(3, 10)
	sm.SetFitted()
	assert.NoError(t, sm.RequireFitted("M", "Predict"))
	assert.NoError(t, sm.RequireFeatures("op", 3))

	var dim *errors.DimensionError
	require.True(t, errors.As(sm.RequireFeatures("op", 4), &dim))
	assert.Equal(t, 3, dim.Expected)

	sm.Reset()
	f, n := sm.GetDimensions()
	assert.Equal(t, 0, f)
	assert.Equal(t, 0, n)
	assert.False(t, sm.IsFitted())
}

func TestEstimatorRoundTrip(t *testing.T) {
	m := &constantModel{State: NewStateManager()}
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	y := mat.NewDense(2, 1, []float64{10, 20})
	require.NoError(t, m.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, EncodeEstimator(m, &buf))

	restored, err := DecodeEstimator(&buf)
	require.NoError(t, err)
	require.IsType(t, &constantModel{}, restored)

	pred, err := restored.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 15.0, pred.At(1, 0))
}

func TestEncodeEstimatorNil(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, EncodeEstimator(nil, &buf))
}

func TestSaveLoadModelStream(t *testing.T) {
	m := &constantModel{State: NewStateManager(), Value: 3.5}
	m.State.SetFitted()
	var buf bytes.Buffer
	require.NoError(t, SaveModelToWriter(m, &buf))

	var loaded constantModel
	require.NoError(t, LoadModelFromReader(&loaded, &buf))
	assert.Equal(t, 3.5, loaded.Value)
	assert.True(t, loaded.State.IsFitted())

	assert.Error(t, LoadModelFromReader(&loaded, bytes.NewReader([]byte("not gob"))))
}
