package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// ColumnRoles assigns input columns to the numeric or categorical pipeline.
type ColumnRoles struct {
	Numeric     []string `yaml:"numeric"`
	Categorical []string `yaml:"categorical"`
}

// Validate checks that at least one column is given, that no name is empty,
// and that no column appears twice.
func (r ColumnRoles) Validate() error {
	if len(r.Numeric)+len(r.Categorical) == 0 {
		return errors.NewValidationError("columns", "at least one numeric or categorical column is required", r)
	}
	seen := make(map[string]string)
	check := func(role string, cols []string) error {
		for _, c := range cols {
			if c == "" {
				return errors.NewValidationError(role, "column name must not be empty", cols)
			}
			if prev, ok := seen[c]; ok {
				return errors.NewValidationError(role, "column already assigned to "+prev, c)
			}
			seen[c] = role
		}
		return nil
	}
	if err := check("numeric", r.Numeric); err != nil {
		return err
	}
	return check("categorical", r.Categorical)
}

// Columns returns numeric then categorical column names.
func (r ColumnRoles) Columns() []string {
	out := make([]string, 0, len(r.Numeric)+len(r.Categorical))
	out = append(out, r.Numeric...)
	return append(out, r.Categorical...)
}

// ColumnTransformer turns raw feature columns into a numeric matrix.
//
// Numeric columns are median-imputed and standardized. Categorical columns
// are filled with their most frequent value, one-hot encoded with unknown
// categories ignored, and scaled to unit variance without centering. The
// output holds the numeric columns in declared order followed by the
// indicator columns.
//
// The transform is fitted exactly once; afterwards only Transform may be
// called, so statistics always come from the training data.
type ColumnTransformer struct {
	State *model.StateManager
	Roles ColumnRoles

	NumImputer *SimpleImputer
	NumScaler  *StandardScaler
	CatImputer *CategoricalImputer
	Encoder    *OneHotEncoder
	CatScaler  *StandardScaler
}

// NewColumnTransformer builds an unfitted transform for roles.
func NewColumnTransformer(roles ColumnRoles) (*ColumnTransformer, error) {
	if err := roles.Validate(); err != nil {
		return nil, err
	}
	ct := &ColumnTransformer{
		State: model.NewStateManager(),
		Roles: ColumnRoles{
			Numeric:     append([]string(nil), roles.Numeric...),
			Categorical: append([]string(nil), roles.Categorical...),
		},
	}
	ct.resetBlocks()
	return ct, nil
}

// resetBlocks replaces every sub-transform with an unfitted one.
func (ct *ColumnTransformer) resetBlocks() {
	ct.NumImputer, ct.NumScaler = nil, nil
	ct.CatImputer, ct.Encoder, ct.CatScaler = nil, nil, nil
	if len(ct.Roles.Numeric) > 0 {
		ct.NumImputer = NewSimpleImputer(StrategyMedian)
		ct.NumScaler = NewStandardScaler(true, true)
	}
	if len(ct.Roles.Categorical) > 0 {
		ct.CatImputer = NewCategoricalImputer()
		ct.Encoder = NewOneHotEncoder(HandleUnknownIgnore)
		ct.CatScaler = NewStandardScaler(false, true)
	}
}

// Fit learns all statistics from f. A fitted transform cannot be refitted.
func (ct *ColumnTransformer) Fit(f *dataset.Frame) error {
	_, err := ct.FitTransform(f)
	return err
}

// FitTransform fits on f and returns the transformed features. A failed fit
// leaves the transform unfitted and ready for another attempt.
func (ct *ColumnTransformer) FitTransform(f *dataset.Frame) (*mat.Dense, error) {
	if ct.State.IsFitted() {
		return nil, errors.NewModelError("ColumnTransformer.Fit", "transform is already fitted", errors.ErrAlreadyFitted)
	}
	if f.Len() == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Fit", "empty data", errors.ErrEmptyData)
	}
	for _, col := range ct.InputColumns() {
		if !f.HasColumn(col) {
			return nil, errors.NewSchemaMismatchError(col, -1, "column not found", nil)
		}
	}
	ct.resetBlocks()
	out, err := ct.apply(f, true)
	if err != nil {
		ct.resetBlocks()
		return nil, err
	}
	_, c := out.Dims()
	ct.State.SetDimensions(c, f.Len())
	ct.State.SetFitted()
	return out, nil
}

// Transform applies the fitted statistics to f. Columns of f that are not
// part of the roles are ignored.
func (ct *ColumnTransformer) Transform(f *dataset.Frame) (*mat.Dense, error) {
	if err := ct.State.RequireFitted("ColumnTransformer", "Transform"); err != nil {
		return nil, err
	}
	if f.Len() == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Transform", "empty data", errors.ErrEmptyData)
	}
	return ct.apply(f, false)
}

func (ct *ColumnTransformer) apply(f *dataset.Frame, fit bool) (*mat.Dense, error) {
	var parts []*mat.Dense

	if len(ct.Roles.Numeric) > 0 {
		raw, err := numericBlock(f, ct.Roles.Numeric)
		if err != nil {
			return nil, err
		}
		var filled, scaled mat.Matrix
		if fit {
			filled, err = ct.NumImputer.FitTransform(raw)
		} else {
			filled, err = ct.NumImputer.Transform(raw)
		}
		if err != nil {
			return nil, err
		}
		if fit {
			scaled, err = ct.NumScaler.FitTransform(filled)
		} else {
			scaled, err = ct.NumScaler.Transform(filled)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, mat.DenseCopyOf(scaled))
	}

	if len(ct.Roles.Categorical) > 0 {
		raw, err := categoricalBlock(f, ct.Roles.Categorical)
		if err != nil {
			return nil, err
		}
		var filled [][]string
		var encoded *mat.Dense
		var scaled mat.Matrix
		if fit {
			filled, err = ct.CatImputer.FitTransform(raw)
		} else {
			filled, err = ct.CatImputer.Transform(raw)
		}
		if err != nil {
			return nil, err
		}
		if fit {
			encoded, err = ct.Encoder.FitTransform(filled)
		} else {
			encoded, err = ct.Encoder.Transform(filled)
		}
		if err != nil {
			return nil, err
		}
		if fit {
			scaled, err = ct.CatScaler.FitTransform(encoded)
		} else {
			scaled, err = ct.CatScaler.Transform(encoded)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, mat.DenseCopyOf(scaled))
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	var out mat.Dense
	out.Augment(parts[0], parts[1])
	return &out, nil
}

// FeatureNamesOut returns the names of the output columns: the numeric
// column names followed by "<column>_<category>" for each indicator.
func (ct *ColumnTransformer) FeatureNamesOut() []string {
	names := append([]string(nil), ct.Roles.Numeric...)
	if ct.Encoder != nil && ct.Encoder.IsFitted() {
		names = append(names, ct.Encoder.FeatureNames(ct.Roles.Categorical)...)
	}
	return names
}

// InputColumns returns every column the transform reads.
func (ct *ColumnTransformer) InputColumns() []string {
	return ct.Roles.Columns()
}

// IsFitted reports whether the transform has been fitted.
func (ct *ColumnTransformer) IsFitted() bool { return ct.State.IsFitted() }

func numericBlock(f *dataset.Frame, cols []string) (*mat.Dense, error) {
	out := mat.NewDense(f.Len(), len(cols), nil)
	for j, name := range cols {
		idx := f.ColumnIndex(name)
		if idx < 0 {
			return nil, errors.NewSchemaMismatchError(name, -1, "column not found", nil)
		}
		for i, row := range f.Rows {
			v, ok := dataset.ParseNumber(row[idx])
			if !ok {
				return nil, errors.NewSchemaMismatchError(name, i, "value is not numeric", row[idx])
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

func categoricalBlock(f *dataset.Frame, cols []string) ([][]string, error) {
	idx := make([]int, len(cols))
	for j, name := range cols {
		idx[j] = f.ColumnIndex(name)
		if idx[j] < 0 {
			return nil, errors.NewSchemaMismatchError(name, -1, "column not found", nil)
		}
	}
	out := make([][]string, f.Len())
	for i, row := range f.Rows {
		cells := make([]string, len(cols))
		for j, k := range idx {
			cells[j] = row[k]
		}
		out[i] = cells
	}
	return out, nil
}
