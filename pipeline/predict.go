package pipeline

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/artifact"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
	"github.com/YuminosukeSato/mlpipe/preprocessing"
)

// StudentRecord is a single student described by the seven model inputs.
type StudentRecord struct {
	Gender                   string
	RaceEthnicity            string
	ParentalLevelOfEducation string
	Lunch                    string
	TestPreparationCourse    string
	ReadingScore             float64
	WritingScore             float64
}

// Record converts s to the column-keyed form used by Predict.
func (s StudentRecord) Record() dataset.Record {
	return dataset.Record{
		dataset.ColGender:        s.Gender,
		dataset.ColRaceEthnicity: s.RaceEthnicity,
		dataset.ColParentalLevel: s.ParentalLevelOfEducation,
		dataset.ColLunch:         s.Lunch,
		dataset.ColTestPrep:      s.TestPreparationCourse,
		dataset.ColReadingScore:  s.ReadingScore,
		dataset.ColWritingScore:  s.WritingScore,
	}
}

// PredictPipeline applies a persisted preprocessor and model to new records.
type PredictPipeline struct {
	Preprocessor *preprocessing.ColumnTransformer
	Model        model.Estimator

	logger log.Logger
}

// NewPredictPipeline wraps an already fitted preprocessor and model.
func NewPredictPipeline(pre *preprocessing.ColumnTransformer, est model.Estimator, opts ...Option) *PredictPipeline {
	s := newSettings(opts)
	return &PredictPipeline{
		Preprocessor: pre,
		Model:        est,
		logger:       s.logger.With(log.StageKey, errors.StageInference),
	}
}

// LoadPredictPipeline reads the preprocessor and model artifacts. A missing,
// unreadable or unfitted artifact yields an ArtifactLoadError.
func LoadPredictPipeline(preprocessorPath, modelPath string, opts ...Option) (*PredictPipeline, error) {
	pre := &preprocessing.ColumnTransformer{}
	if err := artifact.Load(preprocessorPath, pre); err != nil {
		return nil, err
	}
	if pre.State == nil || !pre.IsFitted() {
		return nil, errors.NewArtifactLoadError(preprocessorPath,
			errors.NewNotFittedError("ColumnTransformer", "Transform"))
	}

	est, err := artifact.LoadEstimator(modelPath)
	if err != nil {
		return nil, err
	}
	if fc, ok := est.(model.FittedChecker); ok && !fc.IsFitted() {
		return nil, errors.NewArtifactLoadError(modelPath, errors.NewNotFittedError(fmt.Sprintf("%T", est), "Predict"))
	}

	p := NewPredictPipeline(pre, est, opts...)
	p.logger.Debug("artifacts loaded",
		"preprocessor", preprocessorPath,
		log.ArtifactPathKey, modelPath,
		log.ModelNameKey, fmt.Sprintf("%T", est),
	)
	return p, nil
}

// Predict returns one prediction per record. Every record must carry each
// column the preprocessor reads; other keys are ignored. Missing values
// (nil, empty strings, NaN) are imputed and unseen categories encode to
// zeros.
func (p *PredictPipeline) Predict(records []dataset.Record) ([]float64, error) {
	if len(records) == 0 {
		return []float64{}, nil
	}
	frame, err := p.frame(records)
	if err != nil {
		return nil, err
	}
	return p.PredictFrame(frame)
}

// PredictOne predicts the math score of one student.
func (p *PredictPipeline) PredictOne(s StudentRecord) (float64, error) {
	preds, err := p.Predict([]dataset.Record{s.Record()})
	if err != nil {
		return 0, err
	}
	return preds[0], nil
}

// PredictFrame predicts every row of f. Columns the preprocessor does not
// read, including the target, are ignored.
func (p *PredictPipeline) PredictFrame(f *dataset.Frame) ([]float64, error) {
	if f.Len() == 0 {
		return []float64{}, nil
	}
	for _, col := range p.Preprocessor.InputColumns() {
		if !f.HasColumn(col) {
			return nil, errors.NewSchemaMismatchError(col, -1, "column not found", nil)
		}
	}
	X, err := p.Preprocessor.Transform(f)
	if err != nil {
		return nil, errors.WithStage(errors.StageInference, "transform", err)
	}
	pred, err := p.Model.Predict(X)
	if err != nil {
		return nil, errors.WithStage(errors.StageInference, "predict", err)
	}
	rows, _ := pred.Dims()
	out := make([]float64, rows)
	for i := range out {
		out[i] = pred.At(i, 0)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, errors.WithStage(errors.StageInference, "predict",
				errors.NewValueError("PredictPipeline.Predict", fmt.Sprintf("non-finite prediction for row %d", i)))
		}
	}
	p.logger.Debug("predictions computed", log.PredsKey, rows)
	return out, nil
}

// frame converts records into raw cells in the preprocessor's column order.
func (p *PredictPipeline) frame(records []dataset.Record) (*dataset.Frame, error) {
	header := p.Preprocessor.InputColumns()
	numeric := make(map[string]bool, len(p.Preprocessor.Roles.Numeric))
	for _, c := range p.Preprocessor.Roles.Numeric {
		numeric[c] = true
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(header))
		for j, col := range header {
			v, present := rec[col]
			if !present {
				return nil, errors.NewSchemaMismatchError(col, i, "column missing from record", nil)
			}
			cell, ok := dataset.Cell(v)
			if !ok {
				return nil, errors.NewSchemaMismatchError(col, i, fmt.Sprintf("unsupported value type %T", v), v)
			}
			if numeric[col] {
				if _, ok := dataset.ParseNumber(cell); !ok {
					return nil, errors.NewSchemaMismatchError(col, i, "value is not numeric", v)
				}
			}
			row[j] = cell
		}
		rows[i] = row
	}
	return &dataset.Frame{Header: header, Rows: rows}, nil
}
