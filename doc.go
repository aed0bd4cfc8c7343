// Package mlpipe trains a regression model that predicts a student's math
// score from demographic attributes and the reading and writing scores, and
// serves predictions from the persisted artifacts.
//
// A training run has four stages:
//
//   - ingestion: copy the source CSV and split it 80/20 into train and test
//   - transformation: fit the column transformer on the training partition
//     and apply it to both partitions
//   - evaluation: fit every candidate regressor and score it by test R²
//   - selection: keep the best candidate if it reaches the minimum score
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.Data.Source = "notebook/data/stud.csv"
//
//	result, err := pipeline.Run(cfg, pipeline.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.BestModel, result.Score)
//
//	p, err := pipeline.LoadPredictPipeline(
//	    cfg.Artifacts.PreprocessorPath(), cfg.Artifacts.ModelPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	score, err := p.PredictOne(pipeline.StudentRecord{
//	    Gender:                   "female",
//	    RaceEthnicity:            "group B",
//	    ParentalLevelOfEducation: "bachelor's degree",
//	    Lunch:                    "standard",
//	    TestPreparationCourse:    "none",
//	    ReadingScore:             72,
//	    WritingScore:             74,
//	})
//
// The same flow is available from the command line:
//
//	mlpipe synth --rows 1000 --output notebook/data/stud.csv
//	mlpipe train
//	mlpipe predict --input students.csv
//
// # Packages
//
//   - pipeline: the stages, model selection and the inference pipeline
//   - config: YAML configuration with defaults
//   - dataset: CSV frames, the train/test split and the synthetic generator
//   - preprocessing: imputers, scaler, one-hot encoder and ColumnTransformer
//   - sklearn/linear_model, sklearn/tree, sklearn/ensemble, sklearn/boosting:
//     the candidate regressors
//   - metrics: R², MSE, RMSE and MAE
//   - observability: Prometheus stage metrics
//   - runlog: SQLite ledger of training runs
//   - report: predicted-versus-actual charts
//   - core/model: estimator interfaces, fitted state and gob persistence
//   - core/parallel: bounded goroutine fan-out
//   - pkg/errors, pkg/log, pkg/artifact: typed errors, logging and atomic
//     artifact storage
package mlpipe
