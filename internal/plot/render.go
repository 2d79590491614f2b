package plot

import (
	"fmt"
	"image/color"
	"io"
	"math"

	gonumplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

// Mode selects the drawing of the surface.
type Mode string

const (
	// Contour draws level lines seen from above.
	Contour Mode = "contour"
	// Surface draws a wireframe projected from the view angles.
	Surface Mode = "surface"
)

// Scene is what to draw.
type Scene struct {
	Title        string
	F            func(x, y float64) float64
	View         catalog.Bounds
	Start        catalog.Point
	Minima       []catalog.Point
	Trajectories []*trajectory.Trajectory
}

// Options controls the output.
type Options struct {
	Mode      Mode
	Azimuth   float64 // degrees
	Elevation float64 // degrees, 90 looks straight down
	GridSize  int
	Levels    int
	Width     vg.Length
	Height    vg.Length
	Format    string // png or svg
}

// DefaultOptions returns a 640x480 PNG surface plot.
func DefaultOptions() Options {
	return Options{
		Mode:      Surface,
		Azimuth:   -60,
		Elevation: 30,
		GridSize:  40,
		Levels:    14,
		Width:     6.4 * vg.Inch,
		Height:    4.8 * vg.Inch,
		Format:    "png",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.GridSize < 2 {
		o.GridSize = d.GridSize
	}
	if o.Levels < 1 {
		o.Levels = d.Levels
	}
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Height <= 0 {
		o.Height = d.Height
	}
	if o.Format == "" {
		o.Format = d.Format
	}
	return o
}

// ContentType returns the MIME type of a format accepted by Render.
func ContentType(format string) (string, error) {
	switch format {
	case "png":
		return "image/png", nil
	case "svg":
		return "image/svg+xml", nil
	}
	return "", fmt.Errorf("unsupported plot format %q", format)
}

// TrajectoryColor returns the line color of the i-th trajectory.
func TrajectoryColor(i int) color.Color {
	return plotutil.Color(i)
}

// Render draws the scene and writes it to w in the requested format.
func Render(w io.Writer, scene Scene, opts Options) error {
	opts = opts.withDefaults()
	if _, err := ContentType(opts.Format); err != nil {
		return err
	}
	if err := scene.View.Validate(); err != nil {
		return fmt.Errorf("invalid view: %w", err)
	}

	p, err := build(scene, opts)
	if err != nil {
		return err
	}

	wt, err := p.WriterTo(opts.Width, opts.Height, opts.Format)
	if err != nil {
		return fmt.Errorf("failed to encode plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

func build(scene Scene, opts Options) (*gonumplot.Plot, error) {
	grid := SampleGrid(scene.F, scene.View, opts.GridSize)

	p := gonumplot.New()
	p.Title.Text = scene.Title
	p.Legend.Top = true

	var err error
	switch opts.Mode {
	case Contour:
		err = drawContour(p, grid, scene, opts)
	case Surface:
		err = drawSurface(p, grid, scene, opts)
	default:
		err = fmt.Errorf("unknown plot mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func xys(n int, at func(i int) (float64, float64)) plotter.XYs {
	pts := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		x, y := at(i)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	return pts
}

// overlay adds the trajectories, the start point and the minima. project maps
// a point of the surface to plot coordinates.
func overlay(p *gonumplot.Plot, scene Scene, project func(x, y, z float64) (float64, float64)) error {
	for i, t := range scene.Trajectories {
		pts := xys(len(t.States), func(j int) (float64, float64) {
			s := t.States[j]
			return project(s.X, s.Y, s.Z)
		})
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("trajectory %s: %w", t.Kind, err)
		}
		c := TrajectoryColor(i)
		line.Color = c
		line.Width = vg.Points(1.5)
		points.Color = c
		points.Shape = draw.CircleGlyph{}
		points.Radius = vg.Points(1.5)
		p.Add(line, points)

		name := t.Kind.Name()
		if t.Err != "" {
			name += " (failed)"
		}
		p.Legend.Add(name, line)
	}

	start, err := plotter.NewScatter(xys(1, func(int) (float64, float64) {
		return project(scene.Start.X, scene.Start.Y, scene.F(scene.Start.X, scene.Start.Y))
	}))
	if err != nil {
		return fmt.Errorf("start point: %w", err)
	}
	start.Color = color.Black
	start.Shape = draw.PyramidGlyph{}
	start.Radius = vg.Points(4)
	p.Add(start)
	p.Legend.Add("start", start)

	var inside []catalog.Point
	for _, m := range scene.Minima {
		if scene.View.Contains(m) {
			inside = append(inside, m)
		}
	}
	if len(inside) > 0 {
		minima, err := plotter.NewScatter(xys(len(inside), func(i int) (float64, float64) {
			m := inside[i]
			return project(m.X, m.Y, scene.F(m.X, m.Y))
		}))
		if err != nil {
			return fmt.Errorf("minima: %w", err)
		}
		minima.Color = color.RGBA{R: 200, A: 255}
		minima.Shape = draw.CrossGlyph{}
		minima.Radius = vg.Points(5)
		p.Add(minima)
		p.Legend.Add("minimum", minima)
	}
	return nil
}

func drawContour(p *gonumplot.Plot, grid *Grid, scene Scene, opts Options) error {
	if levels := grid.Levels(opts.Levels); len(levels) > 0 {
		p.Add(plotter.NewContour(grid, levels, palette.Heat(len(levels), 1)))
	}

	if err := overlay(p, scene, func(x, y, _ float64) (float64, float64) { return x, y }); err != nil {
		return err
	}

	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.X.Min, p.X.Max = scene.View.XMin, scene.View.XMax
	p.Y.Min, p.Y.Max = scene.View.YMin, scene.View.YMax
	return nil
}

// projector maps surface points into the plane of the screen. x and y are
// normalized to [-1, 1] over the view and z to [0, 1] over the sampled range,
// then rotated by the azimuth around the vertical axis and tilted by the
// elevation.
type projector struct {
	view     catalog.Bounds
	zlo, zhi float64
	sinAz    float64
	cosAz    float64
	sinEl    float64
	cosEl    float64
}

func newProjector(view catalog.Bounds, zlo, zhi, azimuth, elevation float64) projector {
	if !(zhi > zlo) {
		zhi = zlo + 1
	}
	az := azimuth * math.Pi / 180
	el := elevation * math.Pi / 180
	return projector{
		view:  view,
		zlo:   zlo,
		zhi:   zhi,
		sinAz: math.Sin(az),
		cosAz: math.Cos(az),
		sinEl: math.Sin(el),
		cosEl: math.Cos(el),
	}
}

func (pr projector) project(x, y, z float64) (float64, float64) {
	// points that left the view are pinned to its edge
	p := pr.view.Clamp(catalog.Point{X: x, Y: y})
	xn := 2*(p.X-pr.view.XMin)/(pr.view.XMax-pr.view.XMin) - 1
	yn := 2*(p.Y-pr.view.YMin)/(pr.view.YMax-pr.view.YMin) - 1
	if math.IsNaN(z) {
		z = pr.zhi
	}
	zn := (math.Max(pr.zlo, math.Min(pr.zhi, z)) - pr.zlo) / (pr.zhi - pr.zlo)

	u := xn*pr.cosAz - yn*pr.sinAz
	depth := xn*pr.sinAz + yn*pr.cosAz
	return u, depth*pr.sinEl + zn*pr.cosEl
}

func drawSurface(p *gonumplot.Plot, grid *Grid, scene Scene, opts Options) error {
	// the top few percent are clipped so one steep corner does not flatten
	// the rest of the surface
	pr := newProjector(scene.View, grid.Min(), grid.Quantile(0.95), opts.Azimuth, opts.Elevation)
	cols, rows := grid.Dims()

	wire := func(n int, at func(i int) (float64, float64, float64)) error {
		line, err := plotter.NewLine(xys(n, func(i int) (float64, float64) {
			return pr.project(at(i))
		}))
		if err != nil {
			return err
		}
		line.Color = color.Gray{Y: 170}
		line.Width = vg.Points(0.5)
		p.Add(line)
		return nil
	}

	for r := 0; r < rows; r++ {
		err := wire(cols, func(c int) (float64, float64, float64) {
			return grid.X(c), grid.Y(r), grid.Z(c, r)
		})
		if err != nil {
			return fmt.Errorf("surface row %d: %w", r, err)
		}
	}
	for c := 0; c < cols; c++ {
		err := wire(rows, func(r int) (float64, float64, float64) {
			return grid.X(c), grid.Y(r), grid.Z(c, r)
		})
		if err != nil {
			return fmt.Errorf("surface column %d: %w", c, err)
		}
	}

	if err := overlay(p, scene, pr.project); err != nil {
		return err
	}
	p.HideAxes()
	return nil
}
