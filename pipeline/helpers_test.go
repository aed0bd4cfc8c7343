package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/config"
	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

func init() {
	model.Register(&fixedEstimator{})
	model.Register(&oneShotEstimator{})
}

// writeStudents writes a synthetic student CSV into dir and returns its path.
func writeStudents(t *testing.T, dir string, rows int, noise float64) string {
	t.Helper()
	frame := dataset.GenerateStudents(dataset.SynthOptions{Rows: rows, Seed: 1, Noise: noise})
	var buf bytes.Buffer
	require.NoError(t, frame.WriteCSV(&buf))
	path := filepath.Join(dir, "stud.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// testConfig returns the default configuration writing into dir.
func testConfig(dir, source string) *config.Config {
	cfg := config.Default()
	cfg.SetArtifactDir(filepath.Join(dir, "artifacts"))
	cfg.Data.Source = source
	return cfg
}

// recorder collects stage events.
type recorder struct {
	mu     sync.Mutex
	events []StageEvent
}

func (r *recorder) OnStage(e StageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Stage
	}
	return out
}

// fixedEstimator predicts Preds cyclically regardless of its input.
type fixedEstimator struct {
	Preds  []float64
	Seed   int64
	Fitted bool
}

func (f *fixedEstimator) Fit(_, _ mat.Matrix) error {
	f.Fitted = true
	return nil
}

func (f *fixedEstimator) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, f.Preds[i%len(f.Preds)])
	}
	return out, nil
}

func (f *fixedEstimator) SetRandomState(seed int64) { f.Seed = seed }

// oneShotEstimator predicts the gate target once and fails afterwards.
type oneShotEstimator struct {
	Calls int
}

func (o *oneShotEstimator) Fit(_, _ mat.Matrix) error { return nil }

func (o *oneShotEstimator) Predict(X mat.Matrix) (mat.Matrix, error) {
	o.Calls++
	if o.Calls > 1 {
		return nil, errors.NewModelError("oneShotEstimator.Predict", "exhausted", nil)
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, gateTarget[i%len(gateTarget)])
	}
	return out, nil
}

type failingEstimator struct{}

func (failingEstimator) Fit(_, _ mat.Matrix) error {
	return errors.NewModelError("failingEstimator.Fit", "always fails", nil)
}

func (failingEstimator) Predict(mat.Matrix) (mat.Matrix, error) { return nil, nil }

type panickingEstimator struct{}

func (panickingEstimator) Fit(_, _ mat.Matrix) error { panic("boom") }

func (panickingEstimator) Predict(mat.Matrix) (mat.Matrix, error) { return nil, nil }

// gateTarget has mean 1 and total sum of squares 20. Predictions that miss
// the first two rows by 2 leave a residual sum of 8, an R² of exactly 0.6.
var (
	gateTarget    = []float64{0, 0, 0, 0, 5}
	exactlyAtGate = []float64{2, 2, 0, 0, 5}
	belowGate     = []float64{2, 2, 0.01, 0, 5}
	perfect       = []float64{0, 0, 0, 0, 5}
)

// gateData returns X/y pairs for train and test with gateTarget as target.
func gateData() (xTrain, yTrain, xTest, yTest *mat.Dense) {
	x := mat.NewDense(5, 1, []float64{1, 2, 3, 4, 5})
	y := mat.NewDense(5, 1, append([]float64(nil), gateTarget...))
	return x, y, mat.DenseCopyOf(x), mat.DenseCopyOf(y)
}

// stageMatrices returns gateData joined with the target as last column.
func stageMatrices() (train, test *mat.Dense) {
	xTrain, yTrain, xTest, yTest := gateData()
	var a, b mat.Dense
	a.Augment(xTrain, yTrain)
	b.Augment(xTest, yTest)
	return &a, &b
}
