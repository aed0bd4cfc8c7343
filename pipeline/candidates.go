package pipeline

import (
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/sklearn/boosting"
	"github.com/YuminosukeSato/mlpipe/sklearn/ensemble"
	"github.com/YuminosukeSato/mlpipe/sklearn/linear_model"
)

// Candidate names in declared evaluation order.
const (
	LinearRegressionName          = "LinearRegression"
	RandomForestRegressorName     = "RandomForestRegressor"
	GradientBoostingRegressorName = "GradientBoostingRegressor"
	AdaBoostRegressorName         = "AdaBoostRegressor"
	XGBRegressorName              = "XGBRegressor"
	CatBoostRegressorName         = "CatBoostRegressor"
)

// DefaultCandidates returns fresh, unfitted estimators with their default
// hyperparameters, in declared order.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Name: LinearRegressionName, Estimator: linear_model.NewLinearRegression()},
		{Name: RandomForestRegressorName, Estimator: ensemble.NewRandomForestRegressor()},
		{Name: GradientBoostingRegressorName, Estimator: ensemble.NewGradientBoostingRegressor()},
		{Name: AdaBoostRegressorName, Estimator: ensemble.NewAdaBoostRegressor()},
		{Name: XGBRegressorName, Estimator: boosting.NewXGBRegressor()},
		{Name: CatBoostRegressorName, Estimator: boosting.NewCatBoostRegressor()},
	}
}

// FilterCandidates keeps the candidates named in names, preserving the
// declared order of candidates. An empty names list keeps everything.
func FilterCandidates(candidates []Candidate, names []string) ([]Candidate, error) {
	if len(names) == 0 {
		return candidates, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Candidate
	for _, c := range candidates {
		if want[c.Name] {
			out = append(out, c)
			delete(want, c.Name)
		}
	}
	for n := range want {
		return nil, errors.NewValidationError("training.candidates", "unknown candidate", n)
	}
	return out, nil
}
