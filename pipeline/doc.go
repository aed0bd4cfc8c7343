// Package pipeline trains and serves the student performance regressor.
//
// A training run chains three stages:
//
//	Ingestion       source CSV -> raw copy, train.csv, test.csv
//	Transformation  partitions -> feature matrices, fitted preprocessor
//	ModelTrainer    matrices   -> evaluated candidates, selected model
//
// Run wires them together from a config.Config. PredictPipeline reloads the
// persisted preprocessor and model for inference.
//
// Stages report to an Observer after they finish; the default observer does
// nothing.
package pipeline
