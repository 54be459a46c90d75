package diagnostics

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Plot dimensions for rendered reports.
const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 6 * vg.Inch
)

var (
	numberColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	biomassColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotReport renders the empirical bin densities as points and the fitted
// densities as lines, one colour per weighting scheme. format is any
// format gonum/plot can encode, e.g. "png", "svg" or "pdf".
func PlotReport(w io.Writer, r Report, format string) error {
	if len(r.Bins) == 0 {
		return fmt.Errorf("report for %q has no bins", r.SpeciesID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: H(number)=%.3f H(biomass)=%.3f", r.SpeciesID, r.HellingerNumber, r.HellingerBiomass)
	p.X.Label.Text = "log predator/prey mass ratio"
	p.Y.Label.Text = "density"

	countPts := make(plotter.XYs, len(r.Bins))
	biomassPts := make(plotter.XYs, len(r.Bins))
	fittedCount := make(plotter.XYs, len(r.Bins))
	fittedBiomass := make(plotter.XYs, len(r.Bins))
	for i, b := range r.Bins {
		countPts[i] = plotter.XY{X: b.Center, Y: b.CountDensity}
		biomassPts[i] = plotter.XY{X: b.Center, Y: b.BiomassDensity}
		fittedCount[i] = plotter.XY{X: b.Center, Y: b.FittedCountDensity}
		fittedBiomass[i] = plotter.XY{X: b.Center, Y: b.FittedBiomassDensity}
	}

	series := []struct {
		name   string
		pts    plotter.XYs
		colour color.Color
		line   bool
	}{
		{"observed number", countPts, numberColor, false},
		{"fitted number", fittedCount, numberColor, true},
		{"observed biomass", biomassPts, biomassColor, false},
		{"fitted biomass", fittedBiomass, biomassColor, true},
	}
	for _, s := range series {
		if s.line {
			l, err := plotter.NewLine(s.pts)
			if err != nil {
				return fmt.Errorf("%s line: %w", s.name, err)
			}
			l.Width = vg.Points(1.5)
			l.Color = s.colour
			p.Add(l)
			p.Legend.Add(s.name, l)
			continue
		}
		sc, err := plotter.NewScatter(s.pts)
		if err != nil {
			return fmt.Errorf("%s points: %w", s.name, err)
		}
		sc.GlyphStyle.Color = s.colour
		sc.GlyphStyle.Radius = vg.Points(2.5)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(s.name, sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return fmt.Errorf("encoding %s plot: %w", format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}
