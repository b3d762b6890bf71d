// Package report renders charts for a trained model.
package report

import (
	"bytes"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// Chart size.
var (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

var barColor = color.RGBA{R: 52, G: 101, B: 164, A: 255}

// Importance is one bar of the chart.
type Importance struct {
	Feature string
	Value   float64
}

// Ranked sorts importances descending; ties break on the feature name.
func Ranked(importances map[string]float64) []Importance {
	out := make([]Importance, 0, len(importances))
	for name, v := range importances {
		out = append(out, Importance{Feature: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// FeatureImportancePNG draws a horizontal bar chart with the most important
// feature on top.
func FeatureImportancePNG(title string, importances map[string]float64) ([]byte, error) {
	if len(importances) == 0 {
		return nil, errors.NewValueError("FeatureImportancePNG", "no importances to plot")
	}
	ranked := Ranked(importances)

	// bars are drawn bottom-up
	values := make(plotter.Values, len(ranked))
	names := make([]string, len(ranked))
	for i, imp := range ranked {
		k := len(ranked) - 1 - i
		values[k] = imp.Value
		names[k] = imp.Feature
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "importance"
	p.X.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build bar chart")
	}
	bars.Horizontal = true
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)

	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return nil, errors.Wrap(err, "failed to render chart")
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to encode png")
	}
	return buf.Bytes(), nil
}
