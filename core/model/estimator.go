package model

import "gonum.org/v1/gonum/mat"

// Fitter is a model that can be trained.
type Fitter interface {
	// Fit trains the model on X (n_samples x n_features) and y (n_samples x 1).
	Fit(X, y mat.Matrix) error
}

// Predictor is a model that can predict.
type Predictor interface {
	// Predict returns an n_samples x 1 matrix of predictions.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator is a supervised regression model.
type Estimator interface {
	Fitter
	Predictor
}

// LinearModel exposes the learned coefficients of a linear estimator.
type LinearModel interface {
	Weights() []float64
	Intercept() float64
	Score(X, y mat.Matrix) (float64, error)
}

// RandomStateSetter is implemented by estimators whose training is
// randomized. The pipeline sets the configured seed on every candidate that
// implements it.
type RandomStateSetter interface {
	SetRandomState(seed int64)
}
