// Package heatmap holds the dwell accumulator and the math that turns it
// into display intensities. It has no OpenCV dependency.
package heatmap

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is returned when a mask does not match the grid shape
// fixed by the first accumulated mask.
var ErrShapeMismatch = errors.New("heatmap: mask shape does not match grid")

// Grid is a per-pixel running sum of occupancy. Its shape is fixed by the
// first mask and every cell is non-decreasing for the life of the grid.
// There is no decay: the grid holds cumulative dwell for the whole run.
type Grid struct {
	rows, cols int
	values     []float64
	scratch    []float64
}

// NewGrid rebuilds a grid from row-major values, e.g. a stored coarse grid.
func NewGrid(values []float64, rows, cols int) (*Grid, error) {
	if rows <= 0 || cols <= 0 || len(values) != rows*cols {
		return nil, fmt.Errorf("heatmap: %d values for %dx%d", len(values), rows, cols)
	}
	g := &Grid{rows: rows, cols: cols, values: make([]float64, len(values)), scratch: make([]float64, len(values))}
	copy(g.values, values)
	return g, nil
}

// Accumulate adds a row-major mask into the grid, allocating a zeroed grid
// of the same shape on the first call.
func (g *Grid) Accumulate(mask []uint8, rows, cols int) error {
	if rows <= 0 || cols <= 0 || len(mask) != rows*cols {
		return fmt.Errorf("heatmap: mask has %d values for %dx%d", len(mask), rows, cols)
	}
	if g.values == nil {
		g.rows, g.cols = rows, cols
		g.values = make([]float64, rows*cols)
		g.scratch = make([]float64, rows*cols)
	}
	if rows != g.rows || cols != g.cols {
		return fmt.Errorf("%w: got %dx%d, grid is %dx%d", ErrShapeMismatch, rows, cols, g.rows, g.cols)
	}

	for i, v := range mask {
		g.scratch[i] = float64(v)
	}
	floats.Add(g.values, g.scratch)
	return nil
}

// Empty reports whether nothing has been accumulated yet.
func (g *Grid) Empty() bool { return g.values == nil }

// Shape returns the grid dimensions, zero before the first mask.
func (g *Grid) Shape() (rows, cols int) { return g.rows, g.cols }

// At returns the accumulated value of one cell.
func (g *Grid) At(row, col int) float64 { return g.values[row*g.cols+col] }

// Max returns the largest accumulated value, zero for an empty grid.
func (g *Grid) Max() float64 {
	if g.Empty() {
		return 0
	}
	return floats.Max(g.values)
}

// Snapshot returns a copy of the cells in row-major order.
func (g *Grid) Snapshot() []float64 {
	out := make([]float64, len(g.values))
	copy(out, g.values)
	return out
}

// Coarse averages the grid into at most rows×cols bins, row-major. It is the
// compact form stored with a run record.
func (g *Grid) Coarse(rows, cols int) (out []float64, outRows, outCols int) {
	if g.Empty() || rows <= 0 || cols <= 0 {
		return nil, 0, 0
	}
	rows = min(rows, g.rows)
	cols = min(cols, g.cols)

	out = make([]float64, rows*cols)
	counts := make([]float64, rows*cols)
	for r := 0; r < g.rows; r++ {
		br := r * rows / g.rows
		for c := 0; c < g.cols; c++ {
			bc := c * cols / g.cols
			out[br*cols+bc] += g.values[r*g.cols+c]
			counts[br*cols+bc]++
		}
	}
	floats.Div(out, counts)
	return out, rows, cols
}
