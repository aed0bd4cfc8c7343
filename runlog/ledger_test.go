package runlog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlpipe/pipeline"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger", "runs.db"), nil)
	if err != nil && strings.Contains(err.Error(), "cgo") {
		t.Skip("go-sqlite3 requires cgo")
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func runEvents(runID string, selectionErr error) []pipeline.StageEvent {
	start := time.UnixMilli(1700000000000)
	return []pipeline.StageEvent{
		{Stage: pipeline.StageIngestion, RunID: runID, Started: start, Duration: 20 * time.Millisecond},
		{Stage: pipeline.StageTransformation, RunID: runID, Started: start, Duration: 5 * time.Millisecond},
		{
			Stage:   pipeline.StageEvaluation,
			RunID:   runID,
			Started: start,
			Order:   []string{"LinearRegression", "CatBoostRegressor", "XGBRegressor"},
			Scores:  map[string]float64{"LinearRegression": 0.88, "XGBRegressor": 0.81},
			Failures: []*errors.EvaluationFailure{
				errors.NewEvaluationFailure("CatBoostRegressor", errors.New("diverged")),
			},
		},
		{
			Stage:     pipeline.StageSelection,
			RunID:     runID,
			Started:   start,
			BestModel: "LinearRegression",
			BestScore: 0.88,
			Threshold: 0.6,
			Err:       selectionErr,
		},
	}
}

func TestLedgerRecordsRun(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	for _, e := range runEvents("run-1", nil) {
		l.OnStage(e)
	}

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, Run{RunID: "run-1", BestModel: "LinearRegression", BestScore: 0.88, Threshold: 0.6, Accepted: true}, runs[0])

	candidates, err := l.Candidates(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, CandidateResult{Name: "LinearRegression", R2: 0.88}, candidates[0])
	assert.Equal(t, "CatBoostRegressor", candidates[1].Name)
	assert.Contains(t, candidates[1].Error, "diverged")
	assert.Equal(t, CandidateResult{Name: "XGBRegressor", R2: 0.81}, candidates[2])

	stages, err := l.Stages(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, stages, 4)
	assert.Equal(t, pipeline.StageIngestion, stages[0].Stage)
	assert.Equal(t, 20*time.Millisecond, stages[0].Duration)
	assert.Equal(t, int64(1700000000000), stages[0].Started.UnixMilli())
	assert.Equal(t, pipeline.StageSelection, stages[3].Stage)
}

func TestLedgerRecordsRejectedRun(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	for _, e := range runEvents("run-1", nil) {
		l.OnStage(e)
	}
	for _, e := range runEvents("run-2", errors.NewInsufficientQualityError("LinearRegression", 0.88, 0.9)) {
		l.OnStage(e)
	}
	l.OnStage(pipeline.StageEvent{Stage: pipeline.StageSelection, RunID: "run-3", Threshold: 0.6,
		Err: errors.NewNoModelTrainedError(0, nil)})

	runs, err := l.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].Accepted)
	assert.False(t, runs[1].Accepted)
	assert.Contains(t, runs[1].Error, "LinearRegression")
	assert.Equal(t, "", runs[2].BestModel)
	assert.False(t, runs[2].Accepted)

	stages, err := l.Stages(ctx, "run-3")
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.NotEmpty(t, stages[0].Error)
}

func TestLedgerUnknownRun(t *testing.T) {
	l := openLedger(t)
	candidates, err := l.Candidates(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
