package boosting

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Objective names accepted by the boosters.
const (
	ObjectiveSquaredError     = "reg:squarederror"
	ObjectivePseudoHuberError = "reg:pseudohubererror"
)

// Objective supplies the derivatives of a loss with respect to the raw
// prediction.
type Objective interface {
	Gradient(prediction, target float64) float64
	Hessian(prediction, target float64) float64
	Loss(prediction, target float64) float64
	InitScore(targets []float64) float64
	Name() string
}

// SquaredError is 1/2 (prediction - target)^2.
type SquaredError struct{}

func (SquaredError) Gradient(prediction, target float64) float64 { return prediction - target }
func (SquaredError) Hessian(_, _ float64) float64                { return 1 }

func (SquaredError) Loss(prediction, target float64) float64 {
	d := prediction - target
	return 0.5 * d * d
}

// InitScore is the target mean.
func (SquaredError) InitScore(targets []float64) float64 { return mean(targets) }
func (SquaredError) Name() string                        { return ObjectiveSquaredError }

// PseudoHuber is delta^2 (sqrt(1 + (r/delta)^2) - 1), a smooth approximation
// of the absolute error for large residuals.
type PseudoHuber struct {
	Delta float64
}

func (o PseudoHuber) Gradient(prediction, target float64) float64 {
	r := prediction - target
	return r / math.Sqrt(1+(r/o.Delta)*(r/o.Delta))
}

func (o PseudoHuber) Hessian(prediction, target float64) float64 {
	r := prediction - target
	s := 1 + (r/o.Delta)*(r/o.Delta)
	return 1 / (s * math.Sqrt(s))
}

func (o PseudoHuber) Loss(prediction, target float64) float64 {
	r := (prediction - target) / o.Delta
	return o.Delta * o.Delta * (math.Sqrt(1+r*r) - 1)
}

// InitScore is the target median.
func (PseudoHuber) InitScore(targets []float64) float64 { return median(targets) }
func (PseudoHuber) Name() string                        { return ObjectivePseudoHuberError }

// NewObjective resolves an objective by name.
func NewObjective(name string, huberSlope float64) (Objective, error) {
	switch name {
	case ObjectiveSquaredError, "RMSE", "":
		return SquaredError{}, nil
	case ObjectivePseudoHuberError:
		if huberSlope <= 0 {
			return nil, errors.NewValidationError("huber_slope", "must be positive", huberSlope)
		}
		return PseudoHuber{Delta: huberSlope}, nil
	default:
		return nil, errors.NewValidationError("objective", "unsupported objective", name)
	}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
