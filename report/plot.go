// Package report renders diagnostic charts for a trained model.
package report

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/mlpipe/metrics"
	"github.com/YuminosukeSato/mlpipe/pkg/artifact"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Size is the edge length of the rendered square chart.
var Size = 5 * vg.Inch

// PredictionPlot builds a predicted-versus-actual scatter with the identity
// line. The title carries the model name and its test scores.
func PredictionPlot(model string, actual, predicted []float64) (*plot.Plot, error) {
	if len(actual) != len(predicted) {
		return nil, errors.NewDimensionError("PredictionPlot", len(actual), len(predicted), 0)
	}
	if len(actual) == 0 {
		return nil, errors.NewModelError("PredictionPlot", "empty data", errors.ErrEmptyData)
	}
	summary, err := metrics.Summarize(
		mat.NewDense(len(actual), 1, actual),
		mat.NewDense(len(predicted), 1, predicted),
	)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s  R²=%.4f  RMSE=%.3f  MAE=%.3f", model, summary.R2, summary.RMSE, summary.MAE)
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(actual))
	for i := range actual {
		pts[i].X = actual[i]
		pts[i].Y = predicted[i]
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, errors.Wrap(err, "scatter")
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(2)

	lo := min(floats.Min(actual), floats.Min(predicted))
	hi := max(floats.Max(actual), floats.Max(predicted))
	identity, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, errors.Wrap(err, "identity line")
	}
	identity.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(scatter, identity)
	p.Legend.Add("test rows", scatter)
	p.Legend.Add("perfect fit", identity)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// WritePredictions renders PredictionPlot as a PNG at path. The file is
// replaced atomically.
func WritePredictions(path, model string, actual, predicted []float64) error {
	p, err := PredictionPlot(model, actual, predicted)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Size, Size, "png")
	if err != nil {
		return errors.NewArtifactSaveError(path, err)
	}
	return artifact.WriteAtomic(path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
}
