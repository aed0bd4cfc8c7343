package preprocessing

import (
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/core/model"
	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Handling of categories not seen during Fit.
const (
	HandleUnknownIgnore = "ignore"
	HandleUnknownError  = "error"
)

var isMissing = dataset.IsMissing

// OneHotEncoder expands categorical columns into one indicator column per
// category. Categories are sorted ascending within each input column.
type OneHotEncoder struct {
	State *model.StateManager

	// Categories holds the sorted categories of each input column.
	Categories [][]string

	// HandleUnknown is HandleUnknownIgnore (all-zero encoding) or
	// HandleUnknownError.
	HandleUnknown string
}

// NewOneHotEncoder creates an encoder with the given unknown-category policy.
func NewOneHotEncoder(handleUnknown string) *OneHotEncoder {
	return &OneHotEncoder{State: model.NewStateManager(), HandleUnknown: handleUnknown}
}

// Fit learns the categories of every column of rows.
func (e *OneHotEncoder) Fit(rows [][]string) error {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	if e.HandleUnknown != HandleUnknownIgnore && e.HandleUnknown != HandleUnknownError {
		return errors.NewValidationError("handle_unknown", "must be ignore or error", e.HandleUnknown)
	}

	nCols := len(rows[0])
	e.Categories = make([][]string, nCols)
	for j := 0; j < nCols; j++ {
		seen := make(map[string]struct{})
		for _, row := range rows {
			seen[row[j]] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
	}
	e.State.SetDimensions(nCols, len(rows))
	e.State.SetFitted()
	return nil
}

// NOutputs returns the number of indicator columns.
func (e *OneHotEncoder) NOutputs() int {
	n := 0
	for _, cats := range e.Categories {
		n += len(cats)
	}
	return n
}

// Transform encodes rows into a dense indicator matrix.
func (e *OneHotEncoder) Transform(rows [][]string) (*mat.Dense, error) {
	if err := e.State.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NewModelError("OneHotEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	offsets := make([]int, len(e.Categories))
	total := 0
	for j, cats := range e.Categories {
		offsets[j] = total
		total += len(cats)
	}

	out := mat.NewDense(len(rows), total, nil)
	for i, row := range rows {
		if err := e.State.RequireFeatures("OneHotEncoder.Transform", len(row)); err != nil {
			return nil, err
		}
		for j, v := range row {
			k := sort.SearchStrings(e.Categories[j], v)
			if k < len(e.Categories[j]) && e.Categories[j][k] == v {
				out.Set(i, offsets[j]+k, 1)
				continue
			}
			if e.HandleUnknown == HandleUnknownError {
				return nil, errors.NewValueError("OneHotEncoder.Transform",
					"unknown category "+v+" in column "+strconv.Itoa(j))
			}
		}
	}
	return out, nil
}

// FitTransform fits on rows and encodes them.
func (e *OneHotEncoder) FitTransform(rows [][]string) (*mat.Dense, error) {
	if err := e.Fit(rows); err != nil {
		return nil, err
	}
	return e.Transform(rows)
}

// FeatureNames returns "<input>_<category>" for every output column.
func (e *OneHotEncoder) FeatureNames(inputs []string) []string {
	names := make([]string, 0, e.NOutputs())
	for j, cats := range e.Categories {
		for _, c := range cats {
			names = append(names, inputs[j]+"_"+c)
		}
	}
	return names
}

// IsFitted reports whether Fit has been called.
func (e *OneHotEncoder) IsFitted() bool { return e.State.IsFitted() }
