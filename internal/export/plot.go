package export

import (
	"fmt"
	"image/color"
	"io"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/marvelmind/internal/security"
	"github.com/banshee-data/marvelmind/internal/units"
)

// TrackPoint is one fix of a device, in millimetres.
type TrackPoint struct {
	X, Y    int32
	Quality uint8
	At      time.Time
}

// PlotSize is the default edge length of a saved track plot.
const PlotSize = 8 * vg.Inch

var (
	trackColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	startColor = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	endColor   = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// PlotTrack draws the XY path of one device with its first and last fixes
// marked. Coordinates are converted to unit.
func PlotTrack(title string, points []TrackPoint, unit string) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no points to plot")
	}
	if !units.IsValid(unit) {
		unit = units.M
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = fmt.Sprintf("X (%s)", unit)
	p.Y.Label.Text = fmt.Sprintf("Y (%s)", unit)
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: units.FromMillimetres(pt.X, unit), Y: units.FromMillimetres(pt.Y, unit)}
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("track line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = trackColor
	p.Add(line)

	ends, err := plotter.NewScatter(plotter.XYs{xys[0], xys[len(xys)-1]})
	if err != nil {
		return nil, fmt.Errorf("track ends: %w", err)
	}
	ends.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		c := startColor
		if i == 1 {
			c = endColor
		}
		return draw.GlyphStyle{Color: c, Radius: vg.Points(4), Shape: draw.CircleGlyph{}}
	}
	p.Add(ends)
	p.Legend.Add("track", line)
	return p, nil
}

// SaveTrackPNG plots points and writes a PNG to path, which must pass
// security.ValidateExportPath with allowedDirs.
func SaveTrackPNG(path string, allowedDirs []string, title string, points []TrackPoint, unit string) error {
	if err := security.ValidateExportPath(path, allowedDirs...); err != nil {
		return fmt.Errorf("plot path: %w", err)
	}
	p, err := PlotTrack(title, points, unit)
	if err != nil {
		return err
	}
	if err := p.Save(PlotSize, PlotSize, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

// WriteTrackPNG renders the plot as a PNG onto w.
func WriteTrackPNG(w io.Writer, title string, points []TrackPoint, unit string) error {
	p, err := PlotTrack(title, points, unit)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PlotSize, PlotSize, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
