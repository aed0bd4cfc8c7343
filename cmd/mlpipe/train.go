package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mlpipe/config"
	"github.com/YuminosukeSato/mlpipe/observability"
	"github.com/YuminosukeSato/mlpipe/pipeline"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
	"github.com/YuminosukeSato/mlpipe/report"
	"github.com/YuminosukeSato/mlpipe/runlog"
)

type trainOptions struct {
	source     string
	minScore   float64
	seed       int64
	testSize   float64
	candidates []string
	noCompress bool
}

func newTrainCmd(root *rootOptions) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run ingestion, transformation and model selection",
		Long: `Train splits the source CSV, fits the preprocessor, evaluates every
candidate regressor and persists the best one when its test R² reaches the
minimum score.`,
		Example: `  mlpipe train --source notebook/data/stud.csv
  mlpipe train --candidates LinearRegression,XGBRegressor --min-score 0.8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			return runTrain(cfg, root.logger(cfg), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.source, "source", "s", "", "source CSV file")
	flags.Float64Var(&opts.minScore, "min-score", config.DefaultMinScore, "minimum test R² of the selected model")
	flags.Int64Var(&opts.seed, "seed", 0, "seed for the split and randomized candidates")
	flags.Float64Var(&opts.testSize, "test-size", 0, "fraction of rows held out for testing")
	flags.StringSliceVar(&opts.candidates, "candidates", nil, "comma-separated candidate names (default all)")
	flags.BoolVar(&opts.noCompress, "no-compress", false, "write uncompressed artifacts")
	return cmd
}

func (o *trainOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Data.Source = o.source
	}
	if flags.Changed("min-score") {
		cfg.Training.MinScore = o.minScore
	}
	if flags.Changed("seed") {
		cfg.Data.Seed = o.seed
	}
	if flags.Changed("test-size") {
		cfg.Data.TestSize = o.testSize
	}
	if flags.Changed("candidates") {
		cfg.Training.Candidates = o.candidates
	}
	if o.noCompress {
		cfg.Artifacts.Compress = false
	}
}

func runTrain(cfg *config.Config, logger log.Logger, out io.Writer) error {
	observers := pipeline.MultiObserver{pipeline.NewLogObserver(logger)}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsFile != "" {
		metrics = observability.NewMetrics(logger)
		observers = append(observers, metrics)
	}
	if cfg.Observability.LedgerPath != "" {
		ledger, err := runlog.Open(cfg.Observability.LedgerPath, logger)
		if err != nil {
			logger.Warn("run ledger disabled", err, log.ArtifactPathKey, cfg.Observability.LedgerPath)
		} else {
			defer ledger.Close()
			observers = append(observers, ledger)
		}
	}

	result, err := pipeline.Run(cfg, pipeline.WithLogger(logger), pipeline.WithObserver(observers))
	if metrics != nil {
		if werr := metrics.WriteTextfile(cfg.Observability.MetricsFile); werr != nil {
			logger.Warn("metrics not written", werr)
		}
	}
	if err != nil {
		printFailure(out, err)
		return err
	}

	if cfg.Observability.PlotPath != "" {
		if perr := report.WritePredictions(cfg.Observability.PlotPath, result.BestModel, result.TestTarget, result.TestPredictions); perr != nil {
			logger.Warn("prediction plot not written", perr)
		}
	}
	printSummary(out, result, cfg.Training.MinScore)
	return nil
}

func printSummary(out io.Writer, result *pipeline.TrainingResult, minScore float64) {
	fmt.Fprintf(out, "%s %s\n", bold("run"), gray(result.RunID))
	for _, name := range result.Report.Ranked() {
		marker := " "
		if name == result.BestModel {
			marker = green("*")
		}
		fmt.Fprintf(out, " %s %-28s %8.4f\n", marker, name, result.Report.Scores[name])
	}
	for _, f := range result.Report.Failures {
		fmt.Fprintf(out, " %s %-28s %s\n", red("x"), f.Candidate, red(f.Err.Error()))
	}
	fmt.Fprintf(out, "%s %s (R²=%.4f, minimum %.2f)\n", boldGreen("selected"), result.BestModel, result.Score, minScore)
	fmt.Fprintf(out, "%s %s\n", bold("model"), result.ModelPath)
}

func printFailure(out io.Writer, err error) {
	var quality *errors.InsufficientQualityError
	var none *errors.NoModelTrainedError
	switch {
	case errors.As(err, &quality):
		fmt.Fprintf(out, "%s best model %s scored R²=%.4f, below the minimum %.2f\n",
			boldRed("rejected"), quality.BestModel, quality.Score, quality.Threshold)
	case errors.As(err, &none):
		fmt.Fprintf(out, "%s all %d candidates failed\n", boldRed("failed"), none.Attempted)
		for _, f := range none.Failures {
			fmt.Fprintf(out, " %s %-28s %s\n", red("x"), f.Candidate, f.Err.Error())
		}
	default:
		stage := errors.StageOf(err)
		if stage == "" {
			stage = "setup"
		}
		fmt.Fprintf(out, "%s %s: %s\n", boldRed("failed"), yellow(stage), err.Error())
	}
}
