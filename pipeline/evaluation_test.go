package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

func TestEvaluateModelsIsolatesFailures(t *testing.T) {
	xTrain, yTrain, xTest, yTest := gateData()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	rec := &recorder{}

	candidates := []Candidate{
		{Name: "good", Estimator: &fixedEstimator{Preds: perfect}},
		{Name: "failing", Estimator: failingEstimator{}},
		{Name: "panicking", Estimator: panickingEstimator{}},
		{Name: "nan", Estimator: &fixedEstimator{Preds: []float64{math.NaN()}}},
		{Name: "gate", Estimator: &fixedEstimator{Preds: exactlyAtGate}},
	}
	report, err := EvaluateModels(xTrain, yTrain, xTest, yTest, candidates, WithLogger(logger), WithObserver(rec))
	require.NoError(t, err)

	assert.Equal(t, []string{"good", "failing", "panicking", "nan", "gate"}, report.Order)
	assert.Equal(t, map[string]float64{"good": 1, "gate": 0.6}, report.Scores)
	assert.Equal(t, 2, report.Len())
	assert.Equal(t, []string{"good", "gate"}, report.Ranked())

	require.Len(t, report.Failures, 3)
	names := []string{}
	for _, f := range report.Failures {
		names = append(names, f.Candidate)
		assert.Equal(t, errors.StageEvaluation, errors.StageOf(f))
	}
	assert.Equal(t, []string{"failing", "panicking", "nan"}, names)

	var pe *errors.PanicError
	assert.True(t, errors.As(report.Failures[1], &pe))
	var ne *errors.NumericalInstabilityError
	assert.True(t, errors.As(report.Failures[2], &ne))

	assert.Equal(t, 3, logger.CountLevel(log.LevelWarn))
	assert.True(t, logger.ContainsField(log.CandidateKey, "panicking"))

	require.Len(t, rec.events, 1)
	assert.Equal(t, StageEvaluation, rec.events[0].Stage)
	assert.Len(t, rec.events[0].Failures, 3)
}

func TestEvaluateModelsPropagatesSeed(t *testing.T) {
	xTrain, yTrain, xTest, yTest := gateData()
	est := &fixedEstimator{Preds: perfect}
	_, err := EvaluateModels(xTrain, yTrain, xTest, yTest, []Candidate{{Name: "fixed", Estimator: est}}, WithSeed(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), est.Seed)
	assert.True(t, est.Fitted)
}

func TestEvaluateModelsRejectsBadInput(t *testing.T) {
	xTrain, yTrain, xTest, yTest := gateData()

	_, err := EvaluateModels(xTrain, yTrain, xTest, yTest, []Candidate{
		{Name: "a", Estimator: &fixedEstimator{Preds: perfect}},
		{Name: "a", Estimator: &fixedEstimator{Preds: perfect}},
	})
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, errors.StageEvaluation, errors.StageOf(err))

	_, err = EvaluateModels(xTrain, mat.NewDense(4, 1, nil), xTest, yTest, nil)
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	_, err = EvaluateModels(xTrain, yTrain, mat.NewDense(5, 2, nil), yTest, nil)
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, errors.StageEvaluation, errors.StageOf(err))
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name      string
		report    *EvaluationReport
		wantName  string
		wantScore float64
		wantOK    bool
	}{
		{
			name: "highest score wins",
			report: &EvaluationReport{
				Order:  []string{"a", "b", "c"},
				Scores: map[string]float64{"a": 0.7, "b": 0.9, "c": 0.8},
			},
			wantName: "b", wantScore: 0.9, wantOK: true,
		},
		{
			name: "tie keeps first declared",
			report: &EvaluationReport{
				Order:  []string{"a", "b", "c"},
				Scores: map[string]float64{"a": 0.5, "b": 0.9, "c": 0.9},
			},
			wantName: "b", wantScore: 0.9, wantOK: true,
		},
		{
			name: "failed candidates are skipped",
			report: &EvaluationReport{
				Order:  []string{"a", "b"},
				Scores: map[string]float64{"b": -3},
			},
			wantName: "b", wantScore: -3, wantOK: true,
		},
		{
			name:   "empty report",
			report: &EvaluationReport{Order: []string{"a"}, Scores: map[string]float64{}},
		},
		{
			name: "nil report",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, score, ok := SelectBest(tt.report)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantScore, score)

			// selection does not change the report
			name2, score2, ok2 := SelectBest(tt.report)
			assert.Equal(t, name, name2)
			assert.Equal(t, score, score2)
			assert.Equal(t, ok, ok2)
		})
	}
}

func newGateTrainer(t *testing.T, candidates ...Candidate) *ModelTrainer {
	t.Helper()
	cfg := testConfig(t.TempDir(), "")
	tr := NewModelTrainer(cfg)
	tr.Candidates = func() []Candidate { return candidates }
	return tr
}

func TestModelTrainerQualityGate(t *testing.T) {
	tests := []struct {
		name  string
		preds []float64
		pass  bool
	}{
		{"exactly at threshold passes", exactlyAtGate, true},
		{"just below threshold fails", belowGate, false},
		{"perfect passes", perfect, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, test := stageMatrices()
			tr := newGateTrainer(t, Candidate{Name: "fixed", Estimator: &fixedEstimator{Preds: tt.preds}})
			result, err := tr.Run(train, test)

			if !tt.pass {
				var qe *errors.InsufficientQualityError
				require.True(t, errors.As(err, &qe), "got %v", err)
				assert.Equal(t, "fixed", qe.BestModel)
				assert.Less(t, qe.Score, 0.6)
				assert.Equal(t, 0.6, qe.Threshold)
				_, statErr := os.Stat(tr.ModelPath)
				assert.True(t, os.IsNotExist(statErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "fixed", result.BestModel)
			assert.GreaterOrEqual(t, result.Score, 0.6)
			assert.FileExists(t, result.ModelPath)
			assert.Equal(t, gateTarget, result.TestTarget)
			assert.Equal(t, tt.preds, result.TestPredictions)
		})
	}
}

func TestModelTrainerTieKeepsFirstCandidate(t *testing.T) {
	train, test := stageMatrices()
	first := &fixedEstimator{Preds: exactlyAtGate}
	second := &fixedEstimator{Preds: exactlyAtGate}
	tr := newGateTrainer(t,
		Candidate{Name: "first", Estimator: first},
		Candidate{Name: "second", Estimator: second},
	)
	result, err := tr.Run(train, test)
	require.NoError(t, err)
	assert.Equal(t, "first", result.BestModel)
	assert.Same(t, first, result.Model)
}

func TestModelTrainerNoModelTrained(t *testing.T) {
	train, test := stageMatrices()
	rec := &recorder{}
	tr := newGateTrainer(t,
		Candidate{Name: "failing", Estimator: failingEstimator{}},
		Candidate{Name: "panicking", Estimator: panickingEstimator{}},
	)
	tr.observer = rec
	_, err := tr.Run(train, test)

	var nm *errors.NoModelTrainedError
	require.True(t, errors.As(err, &nm), "got %v", err)
	assert.Equal(t, 2, nm.Attempted)
	assert.Len(t, nm.Failures, 2)
	assert.Equal(t, errors.StageSelection, errors.StageOf(err))
	assert.Equal(t, []string{StageEvaluation, StageSelection}, rec.stages())

	_, err = newGateTrainer(t).Run(train, test)
	assert.True(t, errors.As(err, &nm))
	assert.Equal(t, 0, nm.Attempted)
}

func TestModelTrainerErrorsCarryStage(t *testing.T) {
	good := func() Candidate { return Candidate{Name: "good", Estimator: &fixedEstimator{Preds: perfect}} }
	train, test := stageMatrices()
	tests := []struct {
		name      string
		train     *mat.Dense
		test      *mat.Dense
		candidate Candidate
		only      []string
		stage     string
	}{
		{
			name:      "train matrix without features",
			train:     mat.NewDense(5, 1, nil),
			test:      test,
			candidate: good(),
			stage:     errors.StageSelection,
		},
		{
			name:      "test matrix without features",
			train:     train,
			test:      mat.NewDense(5, 1, nil),
			candidate: good(),
			stage:     errors.StageSelection,
		},
		{
			name:      "feature count differs between partitions",
			train:     train,
			test:      mat.NewDense(5, 3, nil),
			candidate: good(),
			stage:     errors.StageEvaluation,
		},
		{
			name:      "unknown candidate filter",
			train:     train,
			test:      test,
			candidate: good(),
			only:      []string{"missing"},
			stage:     errors.StageSelection,
		},
		{
			name:      "prediction fails after persisting",
			train:     train,
			test:      test,
			candidate: Candidate{Name: "oneshot", Estimator: &oneShotEstimator{}},
			stage:     errors.StageSelection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newGateTrainer(t, tt.candidate)
			tr.Only = tt.only
			_, err := tr.Run(tt.train, tt.test)
			require.Error(t, err)
			assert.Equal(t, tt.stage, errors.StageOf(err), "got %v", err)
		})
	}
}

func TestModelTrainerCandidateFilter(t *testing.T) {
	train, test := stageMatrices()
	tr := newGateTrainer(t,
		Candidate{Name: "a", Estimator: &fixedEstimator{Preds: perfect}},
		Candidate{Name: "b", Estimator: &fixedEstimator{Preds: exactlyAtGate}},
	)
	tr.Only = []string{"b"}
	result, err := tr.Run(train, test)
	require.NoError(t, err)
	assert.Equal(t, "b", result.BestModel)
	assert.Equal(t, []string{"b"}, result.Report.Order)

	tr.Only = []string{"c"}
	_, err = tr.Run(train, test)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, errors.StageSelection, errors.StageOf(err))
}

func TestDefaultCandidatesOrder(t *testing.T) {
	var names []string
	for _, c := range DefaultCandidates() {
		names = append(names, c.Name)
		assert.NotNil(t, c.Estimator)
	}
	assert.Equal(t, []string{
		"LinearRegression",
		"RandomForestRegressor",
		"GradientBoostingRegressor",
		"AdaBoostRegressor",
		"XGBRegressor",
		"CatBoostRegressor",
	}, names)
}

func TestModelTrainerPersistsLoadableModel(t *testing.T) {
	train, test := stageMatrices()
	tr := newGateTrainer(t, Candidate{Name: "fixed", Estimator: &fixedEstimator{Preds: perfect}})
	result, err := tr.Run(train, test)
	require.NoError(t, err)
	assert.Equal(t, ".xz", filepath.Ext(result.ModelPath))
}
