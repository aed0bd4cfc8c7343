// Package boosting implements second-order gradient boosted trees in the
// style of XGBoost (XGBRegressor) and CatBoost (CatBoostRegressor).
//
// Both boosters work from per-sample gradients and hessians of an Objective.
// XGBRegressor grows depth-wise trees with exact greedy splits and L2 leaf
// regularization. CatBoostRegressor grows oblivious trees, where every node
// of a level shares one split, over quantized feature borders.
package boosting
