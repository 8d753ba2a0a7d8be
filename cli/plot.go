package cli

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/swerve/spatialmath"
)

// trajectory records the path of the robot as simulated, as estimated and as seen by odometry alone.
type trajectory struct {
	truth    plotter.XYs
	estimate plotter.XYs
	odometry plotter.XYs
}

func (tr *trajectory) record(truth, estimate, odometry spatialmath.Pose2D) {
	tr.truth = append(tr.truth, plotter.XY{X: truth.X(), Y: truth.Y()})
	tr.estimate = append(tr.estimate, plotter.XY{X: estimate.X(), Y: estimate.Y()})
	tr.odometry = append(tr.odometry, plotter.XY{X: odometry.X(), Y: odometry.Y()})
}

// save renders the three paths on the field plane to path. The image format follows the extension.
func (tr *trajectory) save(path string) error {
	if len(tr.truth) == 0 {
		return errors.New("no cycles recorded, nothing to plot")
	}
	p := plot.New()
	p.Title.Text = "robot path"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	series := []struct {
		label string
		pts   plotter.XYs
		color color.Color
	}{
		{"truth", tr.truth, color.RGBA{A: 255}},
		{"estimate", tr.estimate, color.RGBA{R: 30, G: 120, B: 220, A: 255}},
		{"odometry", tr.odometry, color.RGBA{R: 220, G: 80, B: 40, A: 255}},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return errors.Wrapf(err, "cannot plot %s", s.label)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "cannot save plot to %q", path)
	}
	return nil
}
