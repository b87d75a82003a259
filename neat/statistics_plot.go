package neat

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SavePlot draws best and mean fitness per generation, with a band of one
// standard deviation above the mean. The image format follows the extension
// of path (png, svg, pdf, ...).
func (s *Statistics) SavePlot(path string) error {
	if len(s.Generations) == 0 {
		return errors.New("no generations recorded")
	}

	best := make(plotter.XYs, len(s.Generations))
	mean := make(plotter.XYs, len(s.Generations))
	upper := make(plotter.XYs, len(s.Generations))
	for i, g := range s.Generations {
		x := float64(g.Generation)
		best[i] = plotter.XY{X: x, Y: g.BestFitness}
		mean[i] = plotter.XY{X: x, Y: g.MeanFitness}
		upper[i] = plotter.XY{X: x, Y: g.MeanFitness + g.StdevFitness}
	}

	p := plot.New()
	p.Title.Text = "Population fitness"
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"
	p.Legend.Top = true
	p.Legend.Left = true

	for _, series := range []struct {
		name   string
		points plotter.XYs
		dashed bool
	}{
		{"best", best, false},
		{"mean", mean, false},
		{"+1 sd", upper, true},
	} {
		line, err := plotter.NewLine(series.points)
		if err != nil {
			return fmt.Errorf("plotting %s: %w", series.name, err)
		}
		if series.dashed {
			line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(series.name, line)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}
