package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/artifact"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/preprocessing"
)

// ingest runs ingestion on a synthetic dataset and returns the config and
// partition paths.
func ingest(t *testing.T, rows int) (cfgDir string, trainPath, testPath string) {
	t.Helper()
	dir := t.TempDir()
	source := writeStudents(t, dir, rows, 1)
	trainPath, testPath, err := NewIngestion(testConfig(dir, source)).Run(source)
	require.NoError(t, err)
	return dir, trainPath, testPath
}

func writeFrame(t *testing.T, path string, f *dataset.Frame) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, f.WriteCSV(file))
}

func TestTransformationProducesStageMatrices(t *testing.T) {
	dir, trainPath, testPath := ingest(t, 120)
	cfg := testConfig(dir, "")

	rec := &recorder{}
	train, test, preprocessorPath, err := NewTransformation(cfg, WithObserver(rec)).Run(trainPath, testPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Artifacts.PreprocessorPath(), preprocessorPath)

	// 2 numeric + 2 genders + 5 groups + 6 education levels + 2 lunches + 2 preps + target
	trainRows, trainCols := train.Dims()
	testRows, testCols := test.Dims()
	assert.Equal(t, 96, trainRows)
	assert.Equal(t, 24, testRows)
	assert.Equal(t, 20, trainCols)
	assert.Equal(t, trainCols, testCols)

	trainFrame, err := dataset.ReadCSVFile(trainPath)
	require.NoError(t, err)
	target, err := trainFrame.Column(dataset.ColMathScore)
	require.NoError(t, err)
	for i, cell := range target {
		v, ok := dataset.ParseNumber(cell)
		require.True(t, ok)
		assert.Equal(t, v, train.At(i, trainCols-1))
	}

	pre := &preprocessing.ColumnTransformer{}
	require.NoError(t, artifact.Load(preprocessorPath, pre))
	assert.True(t, pre.IsFitted())

	// the persisted preprocessor reproduces the test features
	testFrame, err := dataset.ReadCSVFile(testPath)
	require.NoError(t, err)
	xTest, err := pre.Transform(testFrame)
	require.NoError(t, err)
	assert.True(t, mat.Equal(xTest, test.Slice(0, testRows, 0, testCols-1)))

	require.Len(t, rec.events, 1)
	assert.Equal(t, StageTransformation, rec.events[0].Stage)
	assert.Equal(t, 19, rec.events[0].Features)
	assert.Equal(t, pre.FeatureNamesOut(), rec.events[0].FeatureNames)
}

func TestTransformationDoesNotLearnFromTestData(t *testing.T) {
	dir, trainPath, testPath := ingest(t, 100)

	run := func(testPath string) (*mat.Dense, *preprocessing.ColumnTransformer) {
		cfg := testConfig(t.TempDir(), "")
		train, _, path, err := NewTransformation(cfg).Run(trainPath, testPath)
		require.NoError(t, err)
		pre := &preprocessing.ColumnTransformer{}
		require.NoError(t, artifact.Load(path, pre))
		return train, pre
	}

	// a test partition with extreme scores and an unseen category
	testFrame, err := dataset.ReadCSVFile(testPath)
	require.NoError(t, err)
	reading := testFrame.ColumnIndex(dataset.ColReadingScore)
	gender := testFrame.ColumnIndex(dataset.ColGender)
	for _, row := range testFrame.Rows {
		row[reading] = "1000000"
		row[gender] = "unknown"
	}
	extremePath := filepath.Join(dir, "extreme.csv")
	writeFrame(t, extremePath, testFrame)

	normalTrain, normalPre := run(testPath)
	extremeTrain, extremePre := run(extremePath)

	assert.True(t, mat.Equal(normalTrain, extremeTrain))
	assert.Equal(t, normalPre.NumScaler.Mean, extremePre.NumScaler.Mean)
	assert.Equal(t, normalPre.NumScaler.Scale, extremePre.NumScaler.Scale)
	assert.Equal(t, normalPre.FeatureNamesOut(), extremePre.FeatureNamesOut())
}

func TestTransformationErrors(t *testing.T) {
	dir, trainPath, testPath := ingest(t, 60)

	testFrame, err := dataset.ReadCSVFile(testPath)
	require.NoError(t, err)
	target := testFrame.ColumnIndex(dataset.ColMathScore)

	noTarget := filepath.Join(dir, "no_target.csv")
	writeFrame(t, noTarget, testFrame.Drop(dataset.ColMathScore))

	badTarget := testFrame.Take([]int{0, 1, 2})
	badTarget.Rows[1][target] = "eighty"
	badTargetPath := filepath.Join(dir, "bad_target.csv")
	writeFrame(t, badTargetPath, badTarget)

	missingTarget := testFrame.Take([]int{0, 1, 2})
	missingTarget.Rows[2][target] = ""
	missingTargetPath := filepath.Join(dir, "missing_target.csv")
	writeFrame(t, missingTargetPath, missingTarget)

	noFeature := filepath.Join(dir, "no_feature.csv")
	writeFrame(t, noFeature, testFrame.Drop(dataset.ColLunch))

	badFeature := testFrame.Take([]int{0, 1})
	badFeature.Rows[0][testFrame.ColumnIndex(dataset.ColWritingScore)] = "n/a"
	badFeaturePath := filepath.Join(dir, "bad_feature.csv")
	writeFrame(t, badFeaturePath, badFeature)

	tests := []struct {
		name      string
		testPath  string
		trainPath string
		schema    bool
	}{
		{name: "target missing from test", trainPath: trainPath, testPath: noTarget},
		{name: "target missing from train", trainPath: noTarget, testPath: testPath},
		{name: "non-numeric target", trainPath: trainPath, testPath: badTargetPath, schema: true},
		{name: "empty target", trainPath: trainPath, testPath: missingTargetPath, schema: true},
		{name: "feature column missing", trainPath: trainPath, testPath: noFeature, schema: true},
		{name: "non-numeric feature", trainPath: trainPath, testPath: badFeaturePath, schema: true},
		{name: "unreadable partition", trainPath: filepath.Join(dir, "nope.csv"), testPath: testPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t.TempDir(), "")
			_, _, _, err := NewTransformation(cfg).Run(tt.trainPath, tt.testPath)

			var te *errors.TransformationError
			require.True(t, errors.As(err, &te), "got %v", err)
			assert.Equal(t, errors.StageTransformation, errors.StageOf(err))
			if tt.schema {
				var se *errors.SchemaMismatchError
				assert.True(t, errors.As(err, &se))
			}

			_, statErr := os.Stat(cfg.Artifacts.PreprocessorPath())
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestSplitTarget(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	X, y, err := splitTarget(m)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 2, 4, 5}), X))
	assert.Equal(t, []float64{3, 6}, mat.Col(nil, 0, y))

	_, _, err = splitTarget(mat.NewDense(2, 1, nil))
	assert.Error(t, err)
}
