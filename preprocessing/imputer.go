package preprocessing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Imputation strategies for SimpleImputer.
const (
	StrategyMedian = "median"
	StrategyMean   = "mean"
)

// SimpleImputer replaces NaN entries of numeric columns with a per-column
// statistic learned in Fit. A column that is entirely NaN gets 0.
type SimpleImputer struct {
	State *model.StateManager

	Strategy   string
	Statistics []float64
}

var _ model.Transformer = (*SimpleImputer)(nil)

// NewSimpleImputer creates a SimpleImputer with the given strategy.
func NewSimpleImputer(strategy string) *SimpleImputer {
	return &SimpleImputer{State: model.NewStateManager(), Strategy: strategy}
}

// Fit learns the fill value of every column, ignoring NaN entries.
func (s *SimpleImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SimpleImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	if s.Strategy != StrategyMedian && s.Strategy != StrategyMean {
		return errors.NewValidationError("strategy", "must be median or mean", s.Strategy)
	}

	s.Statistics = make([]float64, c)
	for j := 0; j < c; j++ {
		observed := make([]float64, 0, r)
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			continue
		}
		if s.Strategy == StrategyMean {
			s.Statistics[j] = floats.Sum(observed) / float64(len(observed))
		} else {
			s.Statistics[j] = median(observed)
		}
	}

	s.State.SetDimensions(c, r)
	s.State.SetFitted()
	return nil
}

// Transform returns a copy of X with NaN entries filled.
func (s *SimpleImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.State.RequireFitted("SimpleImputer", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.State.RequireFeatures("SimpleImputer.Transform", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		if math.IsNaN(v) {
			return s.Statistics[j]
		}
		return v
	}, X)
	return out, nil
}

// FitTransform fits on X and fills it.
func (s *SimpleImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// IsFitted reports whether Fit has been called.
func (s *SimpleImputer) IsFitted() bool { return s.State.IsFitted() }

// median sorts values in place; an even count averages the two middle values.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// MissingCategory fills categorical columns that had no observed value.
const MissingCategory = "missing"

// CategoricalImputer replaces missing categorical cells with the most
// frequent value of the column; ties go to the lexicographically smallest.
type CategoricalImputer struct {
	State *model.StateManager

	Fill []string
}

// NewCategoricalImputer creates a most-frequent CategoricalImputer.
func NewCategoricalImputer() *CategoricalImputer {
	return &CategoricalImputer{State: model.NewStateManager()}
}

// Fit learns the fill value of each column of rows (n_samples x n_columns).
func (c *CategoricalImputer) Fit(rows [][]string) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return errors.NewModelError("CategoricalImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	nCols := len(rows[0])
	c.Fill = make([]string, nCols)
	for j := 0; j < nCols; j++ {
		counts := make(map[string]int)
		for _, row := range rows {
			if !isMissing(row[j]) {
				counts[row[j]]++
			}
		}
		c.Fill[j] = mostFrequent(counts)
	}
	c.State.SetDimensions(nCols, len(rows))
	c.State.SetFitted()
	return nil
}

// Transform returns a copy of rows with missing cells filled.
func (c *CategoricalImputer) Transform(rows [][]string) ([][]string, error) {
	if err := c.State.RequireFitted("CategoricalImputer", "Transform"); err != nil {
		return nil, err
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		if err := c.State.RequireFeatures("CategoricalImputer.Transform", len(row)); err != nil {
			return nil, err
		}
		filled := make([]string, len(row))
		for j, v := range row {
			if isMissing(v) {
				filled[j] = c.Fill[j]
			} else {
				filled[j] = v
			}
		}
		out[i] = filled
	}
	return out, nil
}

// FitTransform fits on rows and fills them.
func (c *CategoricalImputer) FitTransform(rows [][]string) ([][]string, error) {
	if err := c.Fit(rows); err != nil {
		return nil, err
	}
	return c.Transform(rows)
}

func mostFrequent(counts map[string]int) string {
	if len(counts) == 0 {
		return MissingCategory
	}
	best, bestCount := "", -1
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}
