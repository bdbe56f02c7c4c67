// Package plot draws the data movement of an analysed session.
package plot

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"sshniff/analyser"
)

var (
	packetColor    = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	keystrokeColor = color.RGBA{R: 200, A: 255}
	eventColor     = color.RGBA{B: 200, A: 255}
)

// Session saves a scatter of directional packet length against position in
// the reordered stream. Keystroke packets and timeline events are drawn on
// top. The image format follows the extension of path.
func Session(s *analyser.Session, path string) error {
	if len(s.Ordered) == 0 {
		return fmt.Errorf("stream %d has no packets to plot", s.Stream)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Stream %d (%s)", s.Stream, s.StartUTC)
	p.X.Label.Text = "Packet"
	p.Y.Label.Text = "Length (negative: server to client)"

	all := make(plotter.XYs, len(s.Ordered))
	for i, pkt := range s.Ordered {
		all[i].X = float64(i)
		all[i].Y = float64(pkt.Length)
	}
	if err := addScatter(p, all, packetColor, "packets"); err != nil {
		return err
	}

	if keys := keystrokePoints(s); len(keys) > 0 {
		if err := addScatter(p, keys, keystrokeColor, "keystrokes"); err != nil {
			return err
		}
	}
	if events := eventPoints(s); len(events) > 0 {
		if err := addScatter(p, events, eventColor, "events"); err != nil {
			return err
		}
	}

	p.Add(plotter.NewGrid())
	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

func addScatter(p *plot.Plot, pts plotter.XYs, c color.Color, name string) error {
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Color = c
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)
	p.Legend.Add(name, scatter)
	return nil
}

// keystrokePoints locates each keystroke by the client packet it was
// attributed to.
func keystrokePoints(s *analyser.Session) plotter.XYs {
	bySeq := make(map[uint32]int)
	for i, pkt := range s.Ordered {
		if pkt.Length.FromClient() {
			if _, ok := bySeq[pkt.Seq]; !ok {
				bySeq[pkt.Seq] = i
			}
		}
	}
	var pts plotter.XYs
	for _, seq := range s.Keystrokes {
		for _, k := range seq {
			if i, ok := bySeq[k.Seq]; ok {
				pts = append(pts, plotter.XY{X: float64(i), Y: float64(s.Ordered[i].Length)})
			}
		}
	}
	return pts
}

func eventPoints(s *analyser.Session) plotter.XYs {
	pos := make(map[int]int, len(s.Ordered))
	for i, pkt := range s.Ordered {
		pos[pkt.Index] = i
	}
	var pts plotter.XYs
	for _, e := range s.Timeline {
		if i, ok := pos[e.Index]; ok {
			pts = append(pts, plotter.XY{X: float64(i), Y: float64(e.Length)})
		}
	}
	return pts
}
