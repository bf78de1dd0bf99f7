// Package chart draws a dwell grid as an annotated heat map plot, a
// companion to the raw heatmap image with axes and a value scale.
package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/dwell/internal/heatmap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// MaxBins caps the plotted resolution; larger grids are averaged down.
const MaxBins = 128

var ErrEmptyGrid = errors.New("chart: nothing accumulated yet")

// dwellGrid adapts a row-major grid to plotter.GridXYZ. Plot rows grow
// upwards, image rows downwards, so rows are flipped.
type dwellGrid struct {
	values     []float64
	rows, cols int
}

func (g dwellGrid) Dims() (c, r int)   { return g.cols, g.rows }
func (g dwellGrid) Z(c, r int) float64 { return g.values[(g.rows-1-r)*g.cols+c] }
func (g dwellGrid) X(c int) float64    { return float64(c) }
func (g dwellGrid) Y(r int) float64    { return float64(r) }

// New builds the plot for grid.
func New(grid *heatmap.Grid, title string) (*plot.Plot, error) {
	if grid.Empty() {
		return nil, ErrEmptyGrid
	}
	values, rows, cols := grid.Coarse(MaxBins, MaxBins)
	g := dwellGrid{values: values, rows: rows, cols: cols}

	hm := plotter.NewHeatMap(g, palette.Heat(64, 1))
	if hm.Max <= hm.Min {
		// flat grid; keep the palette index finite
		hm.Max = hm.Min + 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = fmt.Sprintf("x (%d bins)", cols)
	p.Y.Label.Text = fmt.Sprintf("y (%d bins)", rows)
	p.Add(hm)
	return p, nil
}

// Save renders grid to path. The image format follows the extension.
func Save(grid *heatmap.Grid, title, path string) error {
	p, err := New(grid, title)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create chart dir: %w", err)
		}
	}

	rows, cols := grid.Shape()
	width := 8 * vg.Inch
	height := width * vg.Length(rows) / vg.Length(cols)
	if height < 3*vg.Inch {
		height = 3 * vg.Inch
	}
	if err := p.Save(width, height+vg.Inch, path); err != nil {
		return fmt.Errorf("save dwell chart: %w", err)
	}
	return nil
}
