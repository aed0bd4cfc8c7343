// Package linear_model provides ordinary least squares regression.
package linear_model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

func init() {
	model.Register(&LinearRegression{})
}

// LinearRegression fits ordinary least squares.
//
// The system is solved through a thin SVD of the centered design matrix and
// returns the minimum-norm solution, so rank-deficient inputs such as a full
// set of one-hot indicator columns are handled without error.
type LinearRegression struct {
	State *model.StateManager

	FitIntercept bool
	Positive     bool

	Coef_      []float64
	Intercept_ float64
	Rank_      int
	Singular_  []float64
}

var (
	_ model.Regressor   = (*LinearRegression)(nil)
	_ model.LinearModel = (*LinearRegression)(nil)
)

// LinearRegressionOption configures a LinearRegression.
type LinearRegressionOption func(*LinearRegression)

// WithLRFitIntercept sets whether an intercept is learned.
func WithLRFitIntercept(fit bool) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}

// WithPositive clips negative coefficients to zero after the solve.
func WithPositive(positive bool) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.Positive = positive
	}
}

// NewLinearRegression creates a LinearRegression with an intercept.
func NewLinearRegression(options ...LinearRegressionOption) *LinearRegression {
	lr := &LinearRegression{
		State:        model.NewStateManager(),
		FitIntercept: true,
	}
	for _, opt := range options {
		opt(lr)
	}
	return lr
}

// Fit learns the coefficients from X and y.
func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("LinearRegression.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LinearRegression.Fit", 1, yCols, 1)
	}

	Xc := mat.DenseCopyOf(X)
	yc := mat.DenseCopyOf(y)
	xMean := make([]float64, cols)
	var yMean float64
	if lr.FitIntercept {
		for j := 0; j < cols; j++ {
			xMean[j] = mat.Sum(Xc.ColView(j)) / float64(rows)
		}
		yMean = mat.Sum(yc) / float64(rows)
		Xc.Apply(func(_, j int, v float64) float64 { return v - xMean[j] }, Xc)
		yc.Apply(func(_, _ int, v float64) float64 { return v - yMean }, yc)
	}

	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD did not converge", errors.ErrSingularMatrix)
	}
	rcond := float64(max(rows, cols)) * 2.220446049250313e-16
	rank := svd.Rank(rcond)
	if rank == 0 {
		// every column is constant: the model reduces to the intercept
		lr.Coef_ = make([]float64, cols)
	} else {
		var beta mat.Dense
		svd.SolveTo(&beta, yc, rank)
		lr.Coef_ = mat.Col(nil, 0, &beta)
	}
	lr.Rank_ = rank
	lr.Singular_ = svd.Values(nil)

	if lr.Positive {
		for i, c := range lr.Coef_ {
			lr.Coef_[i] = math.Max(0, c)
		}
	}

	lr.Intercept_ = 0
	if lr.FitIntercept {
		lr.Intercept_ = yMean
		for j, c := range lr.Coef_ {
			lr.Intercept_ -= c * xMean[j]
		}
	}

	lr.State.SetDimensions(cols, rows)
	lr.State.SetFitted()
	return nil
}

// Predict returns X·coef + intercept.
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.State.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := lr.State.RequireFeatures("LinearRegression.Predict", cols); err != nil {
		return nil, err
	}

	coef := mat.NewVecDense(cols, lr.Coef_)
	var out mat.VecDense
	out.MulVec(X, coef)
	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		predictions.Set(i, 0, out.AtVec(i)+lr.Intercept_)
	}
	return predictions, nil
}

// Score returns the R² of the predictions for X against y.
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, pred)
}

// Weights returns a copy of the coefficients.
func (lr *LinearRegression) Weights() []float64 {
	return append([]float64(nil), lr.Coef_...)
}

// Intercept returns the learned intercept.
func (lr *LinearRegression) Intercept() float64 {
	return lr.Intercept_
}

// IsFitted reports whether Fit has completed.
func (lr *LinearRegression) IsFitted() bool {
	return lr.State.IsFitted()
}

// GetParams returns the hyperparameters.
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.FitIntercept,
		"positive":      lr.Positive,
	}
}

func (lr *LinearRegression) String() string {
	if !lr.State.IsFitted() {
		return fmt.Sprintf("LinearRegression(fit_intercept=%t, positive=%t)", lr.FitIntercept, lr.Positive)
	}
	nFeatures, _ := lr.State.GetDimensions()
	return fmt.Sprintf("LinearRegression(fit_intercept=%t, n_features=%d, rank=%d)",
		lr.FitIntercept, nFeatures, lr.Rank_)
}
