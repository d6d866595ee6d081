// Package diag renders developer diagnostics for finished sequences.
package diag

import (
	"errors"
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/ayusman/posetrace/internal/pose"
)

// ErrNoSamples is returned when a landmark has no present sample to plot.
var ErrNoSamples = errors.New("no samples to plot")

var (
	colorX            = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorY            = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorPredicted    = color.RGBA{R: 148, G: 103, B: 189, A: 255}
	colorInterpolated = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	colorLow          = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotTrajectory writes a PNG of landmark id's x and y over frame id. Lines
// break at missing frames; predicted, interpolated and low-confidence points
// are marked.
func PlotTrajectory(seq pose.Sequence, id pose.LandmarkID, path string) error {
	if !id.Valid() {
		return fmt.Errorf("invalid landmark id %d", id)
	}

	var xs, ys plotter.XYs
	marked := map[pose.Status]plotter.XYs{}
	var segments []plotter.XYs
	var cur plotter.XYs

	for _, f := range seq.Frames {
		s := f.Samples[id]
		if !s.Present() {
			if len(cur) > 0 {
				segments = append(segments, cur)
				cur = nil
			}
			continue
		}
		frame := float64(f.FrameID)
		xs = append(xs, plotter.XY{X: frame, Y: s.X})
		ys = append(ys, plotter.XY{X: frame, Y: s.Y})
		cur = append(cur, plotter.XY{X: frame, Y: s.Y})
		if s.Status != pose.StatusDetected {
			marked[s.Status] = append(marked[s.Status], plotter.XY{X: frame, Y: s.Y})
		}
	}
	if len(cur) > 0 {
		segments = append(segments, cur)
	}
	if len(xs) == 0 {
		return fmt.Errorf("%s: %w", id, ErrNoSamples)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s trajectory", id)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Normalized position"
	p.Y.Min = 0
	p.Y.Max = 1

	xLine, err := plotter.NewLine(xs)
	if err != nil {
		return err
	}
	xLine.Color = colorX
	xLine.Width = vg.Points(1)
	xLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(xLine)
	p.Legend.Add("x", xLine)

	for i, seg := range segments {
		yLine, err := plotter.NewLine(seg)
		if err != nil {
			return err
		}
		yLine.Color = colorY
		yLine.Width = vg.Points(1)
		p.Add(yLine)
		if i == 0 {
			p.Legend.Add("y", yLine)
		}
	}

	for _, m := range []struct {
		status pose.Status
		color  color.Color
		shape  draw.GlyphDrawer
	}{
		{pose.StatusPredicted, colorPredicted, draw.TriangleGlyph{}},
		{pose.StatusInterpolated, colorInterpolated, draw.CircleGlyph{}},
		{pose.StatusRawLowConfidence, colorLow, draw.CrossGlyph{}},
	} {
		pts := marked[m.status]
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = m.color
		sc.GlyphStyle.Shape = m.shape
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(string(m.status), sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// PlotAll writes one trajectory PNG per landmark in ids into dir, named
// after the landmark. Landmarks without samples are skipped.
func PlotAll(seq pose.Sequence, ids []pose.LandmarkID, dir, prefix string) ([]string, error) {
	var written []string
	for _, id := range ids {
		path := filepath.Join(dir, fmt.Sprintf("%s%02d_%s.png", prefix, int(id), id))
		err := PlotTrajectory(seq, id, path)
		if errors.Is(err, ErrNoSamples) {
			continue
		}
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
