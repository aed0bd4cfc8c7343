package model

import (
	"gonum.org/v1/gonum/mat"
)

// Scorer computes the coefficient of determination of the predictions.
type Scorer interface {
	Score(X mat.Matrix, y mat.Matrix) (float64, error)
}

// Regressor is an estimator that can score itself.
type Regressor interface {
	Estimator
	Scorer
}

// ParameterGetter exposes hyperparameters, used for logging and the run ledger.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// FittedChecker reports whether a model or transform has been fitted.
type FittedChecker interface {
	IsFitted() bool
}
