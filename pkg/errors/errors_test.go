package errors

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "mlpipe: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			wantMsg: "mlpipe: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())

			var modelErr *ModelError
			require.True(t, As(err, &modelErr))
			assert.Equal(t, tt.op, modelErr.Op)
			if tt.err != nil {
				assert.True(t, Is(err, tt.err))
			}
			assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")
		})
	}
}

func TestDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 3, 2, 1)
	assert.Contains(t, err.Error(), "axis 1 (features)")
	assert.Contains(t, err.Error(), "Expected 3, got 2")

	var dimErr *DimensionError
	require.True(t, As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
}

func TestNotFittedError(t *testing.T) {
	err := NewNotFittedError("LinearRegression", "Predict")
	var nf *NotFittedError
	require.True(t, As(err, &nf))
	assert.Equal(t, "LinearRegression", nf.ModelName)
	assert.Contains(t, err.Error(), "Call Fit() before using Predict()")
}

func TestPipelineErrorsCarryStageAndCause(t *testing.T) {
	cause := errors.New("disk full")
	tests := []struct {
		name  string
		err   error
		stage string
		cause error
	}{
		{"ingestion", NewIngestionError("data.csv", "read source", cause), StageIngestion, cause},
		{"transformation", NewTransformationError("persist preprocessor", cause), StageTransformation, cause},
		{"evaluation", NewEvaluationFailure("LinearRegression", cause), StageEvaluation, cause},
		{"artifact load", NewArtifactLoadError("model.gob", cause), StagePersistence, cause},
		{"artifact save", NewArtifactSaveError("model.gob", cause), StagePersistence, cause},
		{"quality", NewInsufficientQualityError("LinearRegression", 0.5, 0.6), StageSelection, nil},
		{"schema", NewSchemaMismatchError("gender", 0, "missing column", nil), StageInference, nil},
		{"no model", NewNoModelTrainedError(6, nil), StageSelection, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stage, StageOf(tt.err))
			if tt.cause != nil {
				assert.True(t, Is(tt.err, tt.cause))
			}
		})
	}
}

func TestStageOfPlainError(t *testing.T) {
	assert.Equal(t, "", StageOf(New("plain")))
	assert.Equal(t, StageIngestion, StageOf(Wrap(NewIngestionError("x", "y", nil), "outer")))
}

func TestWithStage(t *testing.T) {
	assert.NoError(t, WithStage(StageSelection, "op", nil))

	dim := NewDimensionError("EvaluateModels", 3, 2, 1)
	err := WithStage(StageEvaluation, "check shapes", dim)
	assert.Equal(t, StageEvaluation, StageOf(err))
	var de *DimensionError
	require.True(t, As(err, &de))
	assert.Equal(t, 2, de.Got)

	schema := NewSchemaMismatchError("lunch", 0, "column not found", nil)
	assert.Same(t, schema, WithStage(StageSelection, "op", schema))
}

func TestInsufficientQualityErrorMessage(t *testing.T) {
	err := NewInsufficientQualityError("AdaBoostRegressor", 0.5999, 0.6)
	assert.Equal(t,
		"mlpipe: no sufficiently good model found: best AdaBoostRegressor scored 0.5999, threshold 0.6000",
		err.Error())
}

func TestMarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var sm *SchemaMismatchError
	require.True(t, As(NewSchemaMismatchError("reading_score", 3, "not numeric", "abc"), &sm))
	logger.Error().Object("error", sm).Msg("predict failed")

	out := buf.String()
	assert.Contains(t, out, `"column":"reading_score"`)
	assert.Contains(t, out, `"row":3`)
	assert.Contains(t, out, `"stage":"inference"`)
	assert.Contains(t, out, `"type":"SchemaMismatchError"`)
}

func TestCheckMatrix(t *testing.T) {
	type grid [][]float64
	at := func(g grid) interface{ At(int, int) float64 } { return gridMatrix(g) }

	assert.NoError(t, CheckMatrix("ok", at(grid{{1, 2}, {3, 4}}), 2, 2, 0))

	err := CheckMatrix("predict", at(grid{{1, 2}, {3, nan()}}), 2, 2, 0)
	require.Error(t, err)
	var ni *NumericalInstabilityError
	require.True(t, As(err, &ni))
	assert.Equal(t, "predict", ni.Operation)
	assert.Len(t, ni.Values, 1)
}

type gridMatrix [][]float64

func (g gridMatrix) At(i, j int) float64 { return g[i][j] }

func nan() float64 {
	zero := 0.0
	return zero / zero
}
