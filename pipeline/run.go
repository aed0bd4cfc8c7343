package pipeline

import (
	"github.com/google/uuid"

	"github.com/YuminosukeSato/mlpipe/config"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

// NewRunID returns a fresh training run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run executes ingestion, transformation and model selection with cfg.
// The first failing stage aborts the run and its typed error is returned.
func Run(cfg *config.Config, opts ...Option) (*TrainingResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := newSettings(opts)
	if s.runID == "" {
		s.runID = NewRunID()
		opts = append(opts, WithRunID(s.runID))
	}
	logger := s.logger.With(log.RunIDKey, s.runID)
	logger.Info("training run started", "source", cfg.Data.Source)

	trainPath, testPath, err := NewIngestion(cfg, opts...).Run(cfg.Data.Source)
	if err != nil {
		logger.Error("training run failed", err)
		return nil, err
	}
	train, test, _, err := NewTransformation(cfg, opts...).Run(trainPath, testPath)
	if err != nil {
		logger.Error("training run failed", err)
		return nil, err
	}
	result, err := NewModelTrainer(cfg, opts...).Run(train, test)
	if err != nil {
		logger.Error("training run failed", err)
		return nil, err
	}

	logger.Info("training run finished",
		log.ModelNameKey, result.BestModel,
		log.R2ScoreKey, result.Score,
	)
	return result, nil
}
