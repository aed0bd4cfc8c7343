// Package ensemble provides tree ensembles for regression: a bagged random
// forest, gradient boosting with squared error and AdaBoost.R2.
//
// All three grow sklearn/tree.DecisionTreeRegressor base learners and are
// deterministic for a fixed RandomState.
package ensemble
