package pipeline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/config"
	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/artifact"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
	"github.com/YuminosukeSato/mlpipe/preprocessing"
)

// Transformation fits the preprocessor on the training partition and turns
// both partitions into numeric matrices.
type Transformation struct {
	Target           string
	Roles            preprocessing.ColumnRoles
	PreprocessorPath string

	settings
}

// NewTransformation creates a Transformation from cfg.
func NewTransformation(cfg *config.Config, opts ...Option) *Transformation {
	return &Transformation{
		Target:           cfg.Data.Target,
		Roles:            cfg.Columns,
		PreprocessorPath: cfg.Artifacts.PreprocessorPath(),
		settings:         newSettings(opts),
	}
}

// Run returns the transformed train and test matrices, each with the target
// appended as the last column, and the path of the persisted preprocessor.
// The preprocessor only ever sees the training features during fitting.
func (tr *Transformation) Run(trainPath, testPath string) (train, test *mat.Dense, preprocessorPath string, err error) {
	event := StageEvent{Stage: StageTransformation, Started: tr.now()}
	defer func() {
		event.Err = err
		tr.emit(event)
	}()

	logger := tr.logger.With(log.StageKey, StageTransformation, log.RunIDKey, tr.runID)

	trainFrame, err := dataset.ReadCSVFile(trainPath)
	if err != nil {
		return nil, nil, "", errors.NewTransformationError("cannot read train partition", err)
	}
	testFrame, err := dataset.ReadCSVFile(testPath)
	if err != nil {
		return nil, nil, "", errors.NewTransformationError("cannot read test partition", err)
	}

	yTrain, err := tr.target(trainFrame, "train")
	if err != nil {
		return nil, nil, "", err
	}
	yTest, err := tr.target(testFrame, "test")
	if err != nil {
		return nil, nil, "", err
	}

	ct, err := preprocessing.NewColumnTransformer(tr.Roles)
	if err != nil {
		return nil, nil, "", errors.NewTransformationError("invalid column roles", err)
	}
	xTrain, err := ct.FitTransform(trainFrame.Drop(tr.Target))
	if err != nil {
		return nil, nil, "", errors.NewTransformationError("cannot fit preprocessor on train features", err)
	}
	xTest, err := ct.Transform(testFrame.Drop(tr.Target))
	if err != nil {
		return nil, nil, "", errors.NewTransformationError("cannot transform test features", err)
	}

	train, err = appendTarget(xTrain, yTrain)
	if err != nil {
		return nil, nil, "", err
	}
	test, err = appendTarget(xTest, yTest)
	if err != nil {
		return nil, nil, "", err
	}

	if err := artifact.Save(tr.PreprocessorPath, ct); err != nil {
		return nil, nil, "", errors.NewTransformationError("cannot persist preprocessor", err)
	}

	_, features := xTrain.Dims()
	event.Features = features
	event.FeatureNames = ct.FeatureNamesOut()
	event.Artifacts = []string{tr.PreprocessorPath}
	logger.Info("features transformed",
		log.FeaturesKey, features,
		"train_rows", len(yTrain),
		"test_rows", len(yTest),
		log.ArtifactPathKey, tr.PreprocessorPath,
	)
	return train, test, tr.PreprocessorPath, nil
}

// target extracts the numeric target column of a partition.
func (tr *Transformation) target(f *dataset.Frame, partition string) ([]float64, error) {
	if !f.HasColumn(tr.Target) {
		return nil, errors.NewTransformationError(
			fmt.Sprintf("target column %q missing from %s partition", tr.Target, partition), nil)
	}
	cells, err := f.Column(tr.Target)
	if err != nil {
		return nil, errors.NewTransformationError("cannot read target column", err)
	}
	y := make([]float64, len(cells))
	for i, cell := range cells {
		v, ok := dataset.ParseNumber(cell)
		if !ok || math.IsNaN(v) {
			return nil, errors.NewTransformationError(
				fmt.Sprintf("%s partition row %d: target %q is not a number", partition, i, cell),
				errors.NewSchemaMismatchError(tr.Target, i, "target must be numeric and present", cell))
		}
		y[i] = v
	}
	return y, nil
}

// appendTarget returns [X | y].
func appendTarget(X *mat.Dense, y []float64) (*mat.Dense, error) {
	rows, _ := X.Dims()
	if rows != len(y) {
		return nil, errors.NewTransformationError(
			fmt.Sprintf("feature rows (%d) and target rows (%d) differ", rows, len(y)),
			errors.NewDimensionError("appendTarget", rows, len(y), 0))
	}
	var out mat.Dense
	out.Augment(X, mat.NewDense(len(y), 1, append([]float64(nil), y...)))
	return &out, nil
}

// splitTarget separates the last column of a stage matrix.
func splitTarget(m *mat.Dense) (X mat.Matrix, y *mat.Dense, err error) {
	rows, cols := m.Dims()
	if rows == 0 || cols < 2 {
		return nil, nil, errors.NewValueError("splitTarget",
			fmt.Sprintf("matrix must have rows and at least two columns, got %dx%d", rows, cols))
	}
	X = m.Slice(0, rows, 0, cols-1)
	y = mat.DenseCopyOf(m.Slice(0, rows, cols-1, cols))
	return X, y, nil
}
