package diagnostics

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteReportHTML renders r as a self-contained HTML page with one chart per
// weighting scheme: empirical densities as bars, fitted densities as a line
// over them.
func WriteReportHTML(w io.Writer, r Report) error {
	if len(r.Bins) == 0 {
		return fmt.Errorf("report for %q has no bins", r.SpeciesID)
	}

	labels := make([]string, len(r.Bins))
	for i, b := range r.Bins {
		labels[i] = fmt.Sprintf("%.2f", b.Center)
	}

	number := densityChart(r, labels, "Number density", r.HellingerNumber,
		func(b ComparedBin) (float64, float64) { return b.CountDensity, b.FittedCountDensity })
	biomass := densityChart(r, labels, "Biomass density", r.HellingerBiomass,
		func(b ComparedBin) (float64, float64) { return b.BiomassDensity, b.FittedBiomassDensity })

	page := components.NewPage()
	page.PageTitle = "Feeding kernel fit: " + r.SpeciesID
	page.AddCharts(number, biomass)
	return page.Render(w)
}

func densityChart(r Report, labels []string, title string, distance float64, pick func(ComparedBin) (float64, float64)) *charts.Bar {
	observed := make([]opts.BarData, len(r.Bins))
	fitted := make([]opts.LineData, len(r.Bins))
	for i, b := range r.Bins {
		o, f := pick(b)
		observed[i] = opts.BarData{Value: o}
		fitted[i] = opts.LineData{Value: f}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s: %s", r.SpeciesID, title), Subtitle: fmt.Sprintf("Hellinger distance %.4f", distance)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "log ratio", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "density", NameLocation: "middle", NameGap: 40}),
	)
	bar.SetXAxis(labels).AddSeries("observed", observed)

	line := charts.NewLine()
	line.SetXAxis(labels).AddSeries("fitted", fitted)
	bar.Overlap(line)
	return bar
}
