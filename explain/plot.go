package explain

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch
	barWidth   = vg.Length(14)
)

// savePlot writes p to path, creating the parent directory if needed.
// The image format follows the file extension (.png, .svg, .pdf).
func savePlot(p *plot.Plot, width, height vg.Length, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create plot directory %s", dir)
		}
	}
	if err := p.Save(width, height, path); err != nil {
		return errors.Wrapf(err, "failed to write plot %s", path)
	}
	return nil
}

// barHeight sizes horizontal bar plots to their row count.
func barHeight(rows int) vg.Length {
	h := vg.Length(rows)*0.4*vg.Inch + vg.Inch
	if h < 3*vg.Inch {
		h = 3 * vg.Inch
	}
	return h
}

// PlotImportance renders permutation importances as horizontal bars
// with a dashed reference line at the full-model loss.
func PlotImportance(result *ImportanceResult, path string) error {
	if result == nil || len(result.Importances) == 0 {
		return errors.NewValueError("PlotImportance", "empty importance result")
	}

	n := len(result.Importances)
	values := make(plotter.Values, n)
	names := make([]string, n)
	// Reverse so the largest loss lands on the top row.
	for i, imp := range result.Importances {
		values[n-1-i] = imp.MeanDropoutLoss
		names[n-1-i] = imp.Feature
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Permutation importance: %s", result.Label)
	p.X.Label.Text = result.LossName

	bars, err := plotter.NewBarChart(values, barWidth)
	if err != nil {
		return errors.Wrap(err, "failed to build importance bars")
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(0)
	p.Add(bars)
	p.NominalY(names...)

	ref, err := plotter.NewLine(plotter.XYs{
		{X: result.FullModelLoss, Y: -0.5},
		{X: result.FullModelLoss, Y: float64(n) - 0.5},
	})
	if err != nil {
		return errors.Wrap(err, "failed to build reference line")
	}
	ref.LineStyle.Color = plotutil.Color(1)
	ref.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(ref)

	return savePlot(p, plotWidth, barHeight(n), path)
}

// PlotPartialDependence renders one line per profile on a shared plot.
func PlotPartialDependence(profiles []PDProfile, path string) error {
	if len(profiles) == 0 {
		return errors.NewValueError("PlotPartialDependence", "no profiles to plot")
	}

	p := plot.New()
	p.Title.Text = "Partial dependence"
	p.X.Label.Text = "feature value"
	p.Y.Label.Text = "average prediction"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	for i, prof := range profiles {
		xys := make(plotter.XYs, len(prof.Points))
		for k, pt := range prof.Points {
			xys[k] = plotter.XY{X: pt.Value, Y: pt.Average}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "failed to build profile line %q", prof.Feature)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(prof.Feature, line)
	}

	return savePlot(p, plotWidth, plotHeight, path)
}

// PlotCeterisParibus renders what-if profiles for one observation; a
// dot marks the observation's actual value and prediction.
func PlotCeterisParibus(profiles []CPProfile, path string) error {
	if len(profiles) == 0 {
		return errors.NewValueError("PlotCeterisParibus", "no profiles to plot")
	}

	p := plot.New()
	p.Title.Text = "Ceteris paribus"
	p.X.Label.Text = "feature value"
	p.Y.Label.Text = "prediction"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	for i, prof := range profiles {
		xys := make(plotter.XYs, len(prof.Points))
		for k, pt := range prof.Points {
			xys[k] = plotter.XY{X: pt.Value, Y: pt.Prediction}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "failed to build profile line %q", prof.Feature)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(prof.Feature, line)

		dot, err := plotter.NewScatter(plotter.XYs{{X: prof.ActualValue, Y: prof.Observed}})
		if err != nil {
			return errors.Wrapf(err, "failed to mark observation on %q", prof.Feature)
		}
		dot.GlyphStyle.Shape = draw.CircleGlyph{}
		dot.GlyphStyle.Radius = vg.Points(3)
		dot.GlyphStyle.Color = plotutil.Color(i)
		p.Add(dot)
	}

	return savePlot(p, plotWidth, plotHeight, path)
}

// PlotBreakDown renders a break-down attribution as a waterfall:
// intercept on top, one floating bar per contribution, the final
// prediction at the bottom.
func PlotBreakDown(result *BreakDownResult, path string) error {
	if result == nil || len(result.Contributions) == 0 {
		return errors.NewValueError("PlotBreakDown", "empty break-down result")
	}

	type row struct {
		label string
		start float64
		delta float64
	}
	rows := make([]row, 0, len(result.Contributions)+2)
	rows = append(rows, row{label: "intercept", start: 0, delta: result.Intercept})
	cum := result.Intercept
	for _, c := range result.Contributions {
		rows = append(rows, row{
			label: fmt.Sprintf("%s = %.4g", c.Feature, c.Value),
			start: cum,
			delta: c.Contribution,
		})
		cum = c.Cumulative
	}
	rows = append(rows, row{label: "prediction", start: 0, delta: result.Prediction})

	n := len(rows)
	names := make([]string, n)
	posBase := make(plotter.Values, n)
	posSpan := make(plotter.Values, n)
	negBase := make(plotter.Values, n)
	negSpan := make(plotter.Values, n)
	// Reverse so the intercept lands on the top row.
	for i, r := range rows {
		k := n - 1 - i
		names[k] = r.label
		if r.delta >= 0 {
			posBase[k] = r.start
			posSpan[k] = r.delta
		} else {
			negBase[k] = r.start + r.delta
			negSpan[k] = -r.delta
		}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Break-down: %s", result.Label)
	p.X.Label.Text = "prediction"
	p.X.Min = 0

	add := func(base, span plotter.Values, c color.Color) error {
		baseBars, err := plotter.NewBarChart(base, barWidth)
		if err != nil {
			return err
		}
		baseBars.Horizontal = true
		baseBars.Color = color.Transparent
		baseBars.LineStyle.Width = 0

		spanBars, err := plotter.NewBarChart(span, barWidth)
		if err != nil {
			return err
		}
		spanBars.Horizontal = true
		spanBars.Color = c
		spanBars.StackOn(baseBars)

		p.Add(baseBars, spanBars)
		return nil
	}
	if err := add(posBase, posSpan, plotutil.Color(2)); err != nil {
		return errors.Wrap(err, "failed to build waterfall bars")
	}
	if err := add(negBase, negSpan, plotutil.Color(3)); err != nil {
		return errors.Wrap(err, "failed to build waterfall bars")
	}
	p.NominalY(names...)

	return savePlot(p, plotWidth, barHeight(n), path)
}

// PlotROC renders the ROC curve of a performance summary together with
// the chance diagonal.
func PlotROC(perf *Performance, path string) error {
	if perf == nil || len(perf.ROC) == 0 {
		return errors.NewValueError("PlotROC", "empty ROC curve")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("ROC: %s (AUC = %.3f)", perf.Label, perf.AUC)
	p.X.Label.Text = "false positive rate"
	p.Y.Label.Text = "true positive rate"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(perf.ROC))
	for i, pt := range perf.ROC {
		xys[i] = plotter.XY{X: pt.FPR, Y: pt.TPR}
	}
	curve, err := plotter.NewLine(xys)
	if err != nil {
		return errors.Wrap(err, "failed to build ROC line")
	}
	curve.LineStyle.Width = vg.Points(1.5)
	curve.LineStyle.Color = plotutil.Color(0)
	p.Add(curve)

	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return errors.Wrap(err, "failed to build chance line")
	}
	diag.LineStyle.Color = color.Gray{Y: 128}
	diag.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(diag)

	return savePlot(p, plotWidth, plotHeight, path)
}
