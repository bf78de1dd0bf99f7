// Package render turns a dwell grid into a color image and composites it
// over a background frame.
package render

import (
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/dwell/internal/heatmap"
	"gocv.io/x/gocv"
)

var ErrEmptyGrid = errors.New("render: nothing accumulated yet")

// Scaler renders grids with a fixed intensity mapping.
type Scaler struct {
	heatmap.Scaling
}

// Render scales g to 0..255 and applies the hot colormap (black, red,
// yellow, white). The caller owns the returned 3-channel Mat.
func (s Scaler) Render(g *heatmap.Grid) (gocv.Mat, error) {
	if g.Empty() {
		return gocv.NewMat(), ErrEmptyGrid
	}
	rows, cols := g.Shape()

	gray, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, g.Intensities(s.Scaling))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("render: %w", err)
	}
	defer gray.Close()

	out := gocv.NewMat()
	gocv.ApplyColorMap(gray, &out, gocv.ColormapHot)
	return out, nil
}

// Overlay adds heat onto base with saturation. A single-channel base is
// promoted to BGR first and base is resized to heat when they differ. The
// caller owns the returned Mat.
func Overlay(heat, base gocv.Mat) (gocv.Mat, error) {
	if heat.Empty() {
		return gocv.NewMat(), errors.New("render: empty heatmap")
	}
	if base.Empty() {
		return heat.Clone(), nil
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	if base.Channels() == 1 {
		gocv.CvtColor(base, &bgr, gocv.ColorGrayToBGR)
	} else {
		base.CopyTo(&bgr)
	}
	if bgr.Rows() != heat.Rows() || bgr.Cols() != heat.Cols() {
		sized := gocv.NewMat()
		defer sized.Close()
		gocv.Resize(bgr, &sized, image.Pt(heat.Cols(), heat.Rows()), 0, 0, gocv.InterpolationArea)
		bgr, sized = sized, bgr
	}

	out := gocv.NewMat()
	gocv.Add(heat, bgr, &out)
	return out, nil
}
