package pipeline

import (
	"io"

	"github.com/YuminosukeSato/mlpipe/config"
	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/artifact"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// Ingestion copies the source dataset into the artifact directory and
// splits it into train and test partitions.
type Ingestion struct {
	RawPath   string
	TrainPath string
	TestPath  string
	TestSize  float64
	Seed      int64

	settings
}

// NewIngestion creates an Ingestion from the data and artifact settings of
// cfg.
func NewIngestion(cfg *config.Config, opts ...Option) *Ingestion {
	return &Ingestion{
		RawPath:   cfg.Artifacts.RawData,
		TrainPath: cfg.Artifacts.Train,
		TestPath:  cfg.Artifacts.Test,
		TestSize:  cfg.Data.TestSize,
		Seed:      cfg.Data.Seed,
		settings:  newSettings(opts),
	}
}

// Run reads source, writes an unmodified copy to RawPath and the seeded
// partitions to TrainPath and TestPath. Every failure is an IngestionError.
func (in *Ingestion) Run(source string) (trainPath, testPath string, err error) {
	event := StageEvent{Stage: StageIngestion, Started: in.now(), Source: source}
	defer func() {
		event.Err = err
		in.emit(event)
	}()

	logger := in.logger.With(log.StageKey, StageIngestion, log.RunIDKey, in.runID)
	logger.Info("reading dataset", "source", source)

	frame, err := dataset.ReadCSVFile(source)
	if err != nil {
		return "", "", errors.NewIngestionError(source, "cannot read source", err)
	}
	if frame.Len() == 0 {
		return "", "", errors.NewIngestionError(source, "source has a header but no rows", errors.ErrEmptyData)
	}
	event.Rows = frame.Len()

	if err := artifact.CopyFile(source, in.RawPath); err != nil {
		return "", "", errors.NewIngestionError(in.RawPath, "cannot write raw copy", err)
	}

	train, test, err := dataset.TrainTestSplit(frame, in.TestSize, in.Seed)
	if err != nil {
		return "", "", errors.NewIngestionError(source, "cannot split dataset", err)
	}
	event.TrainRows, event.TestRows = train.Len(), test.Len()

	for _, part := range []struct {
		path  string
		frame *dataset.Frame
	}{{in.TrainPath, train}, {in.TestPath, test}} {
		f := part.frame
		if err := artifact.WriteAtomic(part.path, func(w io.Writer) error { return f.WriteCSV(w) }); err != nil {
			return "", "", errors.NewIngestionError(part.path, "cannot write partition", err)
		}
	}

	event.Artifacts = []string{in.RawPath, in.TrainPath, in.TestPath}
	logger.Info("dataset split",
		log.SamplesKey, frame.Len(),
		"train_rows", train.Len(),
		"test_rows", test.Len(),
		log.RandomSeedKey, in.Seed,
	)
	return in.TrainPath, in.TestPath, nil
}
