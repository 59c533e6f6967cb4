// Package chart draws the time series of an experiment: the measured signal
// on top and the sourced signal below, sharing the time axis.
package chart

import (
	"errors"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	// MeasuredColor draws the measured trace
	MeasuredColor = color.RGBA{R: 0x00, G: 0x72, B: 0xBD, A: 0xFF}

	// SourceColor draws the source trace
	SourceColor = color.RGBA{R: 0xD9, G: 0x53, B: 0x19, A: 0xFF}

	// Width and Height are the size of the rendered figure
	Width  = 8 * vg.Inch
	Height = 6 * vg.Inch
)

// ErrLength is returned when the series are not all the same length
var ErrLength = errors.New("chart: series lengths differ")

// Series is the data of one figure
type Series struct {
	Title string

	// Time is the shared x axis
	Time []float64

	Measured      []float64
	MeasuredLabel string

	Source      []float64
	SourceLabel string
}

func xys(x, y []float64) plotter.XYs {
	out := make(plotter.XYs, len(x))
	for i := range x {
		out[i].X = x[i]
		out[i].Y = y[i]
	}
	return out
}

func panel(title, ylabel string, x, y []float64, c color.Color) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	if len(x) == 0 {
		return p, nil
	}
	l, err := plotter.NewLine(xys(x, y))
	if err != nil {
		return nil, err
	}
	l.LineStyle.Color = c
	l.LineStyle.Width = vg.Points(1)
	p.Add(l)
	return p, nil
}

// Plots builds the two panels, measured above source
func Plots(s Series) ([][]*plot.Plot, error) {
	if len(s.Measured) != len(s.Time) || len(s.Source) != len(s.Time) {
		return nil, ErrLength
	}
	top, err := panel(s.Title, s.MeasuredLabel, s.Time, s.Measured, MeasuredColor)
	if err != nil {
		return nil, err
	}
	bottom, err := panel("", s.SourceLabel, s.Time, s.Source, SourceColor)
	if err != nil {
		return nil, err
	}
	return [][]*plot.Plot{{top}, {bottom}}, nil
}

// WritePNG renders s as a PNG image to w
func WritePNG(w io.Writer, s Series) error {
	plots, err := Plots(s)
	if err != nil {
		return err
	}
	img := vgimg.New(Width, Height)
	dc := draw.New(img)
	t := draw.Tiles{
		Rows: 2,
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, t, dc)
	for j := range plots {
		for i := range plots[j] {
			plots[j][i].Draw(canvases[j][i])
		}
	}
	_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}
