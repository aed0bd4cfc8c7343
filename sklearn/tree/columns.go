package tree

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Columns is a column-major copy of a feature matrix, shared by the trees of
// an ensemble.
type Columns struct {
	Data  [][]float64
	NRows int
}

// NewColumns copies X into column-major order.
func NewColumns(X mat.Matrix) *Columns {
	r, c := X.Dims()
	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	return &Columns{Data: cols, NRows: r}
}

// NFeatures returns the number of columns.
func (c *Columns) NFeatures() int { return len(c.Data) }

// Prepare validates the shapes of a training pair and returns the
// column-major features with the target vector. Non-finite targets are
// rejected.
func Prepare(op string, X, y mat.Matrix) (*Columns, []float64, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return nil, nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return nil, nil, errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return nil, nil, errors.NewDimensionError(op, 1, yCols, 1)
	}
	target := mat.Col(nil, 0, y)
	for i, v := range target {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, errors.NewValueError(op, fmt.Sprintf("target contains non-finite value at row %d", i))
		}
	}
	return NewColumns(X), target, nil
}

// AllSamples returns the indices 0..n-1.
func AllSamples(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

// Row copies row i into dst.
func (c *Columns) Row(dst []float64, i int) []float64 {
	if dst == nil {
		dst = make([]float64, len(c.Data))
	}
	for j := range c.Data {
		dst[j] = c.Data[j][i]
	}
	return dst
}
