package pipeline

import (
	"time"

	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// Stage names carried by StageEvent.
const (
	StageIngestion      = errors.StageIngestion
	StageTransformation = errors.StageTransformation
	StageEvaluation     = errors.StageEvaluation
	StageSelection      = errors.StageSelection
)

// StageEvent describes a finished stage. Err is set when the stage failed;
// fields that do not apply to the stage are left zero.
type StageEvent struct {
	Stage    string
	RunID    string
	Started  time.Time
	Duration time.Duration
	Err      error

	// ingestion
	Source    string
	Rows      int
	TrainRows int
	TestRows  int

	// transformation
	Features     int
	FeatureNames []string

	// evaluation
	Scores   map[string]float64
	Order    []string
	Failures []*errors.EvaluationFailure

	// selection
	BestModel string
	BestScore float64
	Threshold float64

	Artifacts []string
}

// Observer receives an event when each stage finishes.
type Observer interface {
	OnStage(event StageEvent)
}

// NopObserver ignores every event.
type NopObserver struct{}

// OnStage implements Observer.
func (NopObserver) OnStage(StageEvent) {}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(StageEvent)

// OnStage implements Observer.
func (f ObserverFunc) OnStage(e StageEvent) { f(e) }

// MultiObserver forwards each event to every observer in order.
type MultiObserver []Observer

// OnStage implements Observer.
func (m MultiObserver) OnStage(e StageEvent) {
	for _, o := range m {
		if o != nil {
			o.OnStage(e)
		}
	}
}

// LogObserver writes one log line per stage.
type LogObserver struct {
	logger log.Logger
}

// NewLogObserver creates a LogObserver. A nil logger discards everything.
func NewLogObserver(logger log.Logger) *LogObserver {
	return &LogObserver{logger: log.OrNop(logger)}
}

// OnStage implements Observer.
func (o *LogObserver) OnStage(e StageEvent) {
	fields := []any{
		log.StageKey, e.Stage,
		log.RunIDKey, e.RunID,
		log.DurationMsKey, e.Duration.Milliseconds(),
	}
	switch e.Stage {
	case StageIngestion:
		fields = append(fields, log.SamplesKey, e.Rows, "train_rows", e.TrainRows, "test_rows", e.TestRows)
	case StageTransformation:
		fields = append(fields, log.FeaturesKey, e.Features)
	case StageEvaluation:
		fields = append(fields, "scored", len(e.Scores), "failed", len(e.Failures))
	case StageSelection:
		fields = append(fields, log.ModelNameKey, e.BestModel, log.R2ScoreKey, e.BestScore, log.ThresholdKey, e.Threshold)
	}
	if e.Err != nil {
		o.logger.Error("stage failed", append([]any{e.Err}, fields...)...)
		return
	}
	o.logger.Info("stage completed", fields...)
}

// Option configures a pipeline component.
type Option func(*settings)

type settings struct {
	logger   log.Logger
	observer Observer
	runID    string
	seed     int64
	now      func() time.Time
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:   log.NewNopLogger(),
		observer: NopObserver{},
		seed:     dataset.DefaultSeed,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l log.Logger) Option {
	return func(s *settings) { s.logger = log.OrNop(l) }
}

// WithObserver sets the stage observer.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o == nil {
			o = NopObserver{}
		}
		s.observer = o
	}
}

// WithRunID tags logs and events with a training run id.
func WithRunID(id string) Option {
	return func(s *settings) { s.runID = id }
}

// WithSeed sets the seed given to randomized candidates.
func WithSeed(seed int64) Option {
	return func(s *settings) { s.seed = seed }
}

func (s *settings) emit(e StageEvent) {
	e.RunID = s.runID
	e.Duration = s.now().Sub(e.Started)
	s.observer.OnStage(e)
}
