package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Stage names reported by the pipeline error types.
const (
	StageIngestion      = "ingestion"
	StageTransformation = "transformation"
	StageEvaluation     = "evaluation"
	StageSelection      = "selection"
	StageInference      = "inference"
	StagePersistence    = "persistence"
)

// StageError is implemented by every pipeline error type.
type StageError interface {
	error
	Stage() string
}

// StageOf returns the stage of the first StageError in err's chain, or "".
func StageOf(err error) string {
	var se StageError
	if errors.As(err, &se) {
		return se.Stage()
	}
	return ""
}

// IngestionError is returned when the source data cannot be loaded, split or
// written to the artifact directory.
type IngestionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mlpipe: ingestion of %q failed: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("mlpipe: ingestion of %q failed: %s", e.Path, e.Reason)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Stage returns the pipeline stage.
func (e *IngestionError) Stage() string { return StageIngestion }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *IngestionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage()).
		Str("path", e.Path).
		Str("reason", e.Reason).
		Str("type", "IngestionError")
}

// NewIngestionError creates an IngestionError with a stack trace.
func NewIngestionError(path, reason string, cause error) error {
	return errors.WithStack(&IngestionError{Path: path, Reason: reason, Err: cause})
}

// TransformationError is returned when partitions cannot be turned into
// feature arrays or when the fitted transform cannot be persisted.
type TransformationError struct {
	Reason string
	Err    error
}

func (e *TransformationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mlpipe: transformation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("mlpipe: transformation failed: %s", e.Reason)
}

func (e *TransformationError) Unwrap() error { return e.Err }

// Stage returns the pipeline stage.
func (e *TransformationError) Stage() string { return StageTransformation }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *TransformationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage()).
		Str("reason", e.Reason).
		Str("type", "TransformationError")
}

// NewTransformationError creates a TransformationError with a stack trace.
func NewTransformationError(reason string, cause error) error {
	return errors.WithStack(&TransformationError{Reason: reason, Err: cause})
}

// EvaluationFailure records why a single candidate could not be scored.
// It is collected in the evaluation report rather than returned.
type EvaluationFailure struct {
	Candidate string
	Err       error
}

func (e *EvaluationFailure) Error() string {
	return fmt.Sprintf("mlpipe: candidate %s failed: %v", e.Candidate, e.Err)
}

func (e *EvaluationFailure) Unwrap() error { return e.Err }

// Stage returns the pipeline stage.
func (e *EvaluationFailure) Stage() string { return StageEvaluation }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *EvaluationFailure) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage()).
		Str("candidate", e.Candidate).
		Str("type", "EvaluationFailure")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewEvaluationFailure creates an EvaluationFailure with a stack trace.
func NewEvaluationFailure(candidate string, cause error) *EvaluationFailure {
	return &EvaluationFailure{Candidate: candidate, Err: errors.WithStack(cause)}
}

// NoModelTrainedError is returned when every candidate failed.
type NoModelTrainedError struct {
	Attempted int
	Failures  []*EvaluationFailure
}

func (e *NoModelTrainedError) Error() string {
	return fmt.Sprintf("mlpipe: no model could be trained: all %d candidates failed", e.Attempted)
}

// Unwrap exposes the individual candidate failures.
func (e *NoModelTrainedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Stage returns the pipeline stage.
func (e *NoModelTrainedError) Stage() string { return StageSelection }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *NoModelTrainedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage()).
		Int("attempted", e.Attempted).
		Int("failures", len(e.Failures)).
		Str("type", "NoModelTrainedError")
}

// NewNoModelTrainedError creates a NoModelTrainedError with a stack trace.
func NewNoModelTrainedError(attempted int, failures []*EvaluationFailure) error {
	return errors.WithStack(&NoModelTrainedError{Attempted: attempted, Failures: failures})
}

// InsufficientQualityError is returned when the best candidate scores below
// the acceptance threshold.
type InsufficientQualityError struct {
	BestModel string
	Score     float64
	Threshold float64
}

func (e *InsufficientQualityError) Error() string {
	return fmt.Sprintf("mlpipe: no sufficiently good model found: best %s scored %.4f, threshold %.4f",
		e.BestModel, e.Score, e.Threshold)
}

// Stage returns the pipeline stage.
func (e *InsufficientQualityError) Stage() string { return StageSelection }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *InsufficientQualityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage()).
		Str("best_model", e.BestModel).
		Float64("score", e.Score).
		Float64("threshold", e.Threshold).
		Str("type", "InsufficientQualityError")
}

// NewInsufficientQualityError creates an InsufficientQualityError with a stack trace.
func NewInsufficientQualityError(bestModel string, score, threshold float64) error {
	return errors.WithStack(&InsufficientQualityError{BestModel: bestModel, Score: score, Threshold: threshold})
}

// ArtifactLoadError is returned when a persisted artifact is missing or
// cannot be decoded.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("mlpipe: cannot load artifact %q: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// Stage returns the pipeline stage.
func (e *ArtifactLoadError) Stage() string { return StagePersistence }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *ArtifactLoadError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage()).
		Str("path", e.Path).
		Str("type", "ArtifactLoadError")
}

// NewArtifactLoadError creates an ArtifactLoadError with a stack trace.
func NewArtifactLoadError(path string, cause error) error {
	return errors.WithStack(&ArtifactLoadError{Path: path, Err: cause})
}

// ArtifactSaveError is returned when an artifact cannot be written.
type ArtifactSaveError struct {
	Path string
	Err  error
}

func (e *ArtifactSaveError) Error() string {
	return fmt.Sprintf("mlpipe: cannot save artifact %q: %v", e.Path, e.Err)
}

func (e *ArtifactSaveError) Unwrap() error { return e.Err }

// Stage returns the pipeline stage.
func (e *ArtifactSaveError) Stage() string { return StagePersistence }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *ArtifactSaveError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage()).
		Str("path", e.Path).
		Str("type", "ArtifactSaveError")
}

// NewArtifactSaveError creates an ArtifactSaveError with a stack trace.
func NewArtifactSaveError(path string, cause error) error {
	return errors.WithStack(&ArtifactSaveError{Path: path, Err: cause})
}

// SchemaMismatchError is returned at inference time when a record does not
// match the columns the fitted transform expects.
type SchemaMismatchError struct {
	Column string
	Row    int
	Reason string
	Value  interface{}
}

func (e *SchemaMismatchError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("mlpipe: schema mismatch in record %d, column %q: %s (got: %v)", e.Row, e.Column, e.Reason, e.Value)
	}
	return fmt.Sprintf("mlpipe: schema mismatch in record %d, column %q: %s", e.Row, e.Column, e.Reason)
}

// Stage returns the pipeline stage.
func (e *SchemaMismatchError) Stage() string { return StageInference }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *SchemaMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.Stage()).
		Str("column", e.Column).
		Int("row", e.Row).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "SchemaMismatchError")
}

// NewSchemaMismatchError creates a SchemaMismatchError with a stack trace.
func NewSchemaMismatchError(column string, row int, reason string, value interface{}) error {
	return errors.WithStack(&SchemaMismatchError{Column: column, Row: row, Reason: reason, Value: value})
}

// StageFailure attaches a stage name to an error raised by a step that has no
// dedicated pipeline error type, such as a shape check or a model call.
type StageFailure struct {
	StageName string
	Op        string
	Err       error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("mlpipe: %s stage: %s: %v", e.StageName, e.Op, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// Stage returns the pipeline stage.
func (e *StageFailure) Stage() string { return e.StageName }

// MarshalZerologObject adds the structured fields of the error to a zerolog event.
func (e *StageFailure) MarshalZerologObject(event *zerolog.Event) {
	event.Str("stage", e.StageName).
		Str("operation", e.Op).
		Str("type", "StageFailure")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// WithStage returns err tagged with stage. Errors that already report a stage
// are returned unchanged, as is nil.
func WithStage(stage, op string, err error) error {
	if err == nil || StageOf(err) != "" {
		return err
	}
	return errors.WithStack(&StageFailure{StageName: stage, Op: op, Err: err})
}
