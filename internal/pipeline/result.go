package pipeline

import (
	"github.com/andresmejia3/dwell/internal/heatmap"
	"github.com/andresmejia3/dwell/internal/render"
	"gocv.io/x/gocv"
)

// Result is what a finished run hands back. The caller owns the Mats and
// must Close the Result.
type Result struct {
	Heatmap    gocv.Mat // hot colormap rendering of Grid, BGR
	Background gocv.Mat // background estimate at the end of the run
	Grid       *heatmap.Grid
	Stats      Stats
}

// Composite is the heatmap added onto the background, the image saved as
// the scan's heatmap output. The caller owns the returned Mat.
func (r *Result) Composite() (gocv.Mat, error) {
	return render.Overlay(r.Heatmap, r.Background)
}

func (r *Result) Close() error {
	if err := r.Heatmap.Close(); err != nil {
		return err
	}
	return r.Background.Close()
}
