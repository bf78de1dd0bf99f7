package pipeline

import (
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/andresmejia3/dwell/internal/capture"
	"github.com/andresmejia3/dwell/internal/config"
	"github.com/andresmejia3/dwell/internal/foreground"
	"github.com/andresmejia3/dwell/internal/heatmap"
	"github.com/andresmejia3/dwell/internal/render"
	"github.com/andresmejia3/dwell/internal/sampler"
	"github.com/andresmejia3/dwell/internal/sink"
	"gocv.io/x/gocv"
)

// scan is the state of one run. Nothing in it outlives the run except what
// finalize hands over in the Result.
type scan struct {
	cfg    config.Config
	src    *capture.Source
	ext    *foreground.Extractor
	sched  *sampler.Scheduler
	scaler render.Scaler
	out    *sink.Multi
	log    *slog.Logger

	grid   heatmap.Grid
	stats  Stats
	closed bool
}

func (r *scan) loop(onFrame func(Stats)) error {
	frame := gocv.NewMat()
	defer frame.Close()
	small := gocv.NewMat()
	defer small.Close()

	for !r.src.Expired() {
		if !r.src.Read(&frame) {
			r.log.Info("end of video stream")
			break
		}

		img := frame
		if r.cfg.DownSamplingEnabled {
			gocv.Resize(frame, &small, image.Pt(r.cfg.DownSamplingWidth, r.cfg.DownSamplingHeight), 0, 0, gocv.InterpolationArea)
			img = small
		}

		if err := r.process(img); err != nil {
			return fmt.Errorf("frame %d: %w", r.src.FramesRead(), err)
		}

		r.stats.FramesRead = r.src.FramesRead()
		if onFrame != nil {
			onFrame(r.stats)
		}

		r.stats.FramesSkipped += r.sched.Wait(r.src)
	}
	r.stats.FramesRead = r.src.FramesRead()
	return nil
}

func (r *scan) process(img gocv.Mat) error {
	ex, err := r.ext.Apply(img)
	if err != nil {
		return err
	}
	if err := r.grid.Accumulate(ex.Mask.ToBytes(), ex.Mask.Rows(), ex.Mask.Cols()); err != nil {
		return err
	}
	r.stats.FramesProcessed++
	r.stats.FrameSize = image.Pt(ex.Mask.Cols(), ex.Mask.Rows())

	if r.out.Len() > 0 {
		r.show(img)
	}
	return nil
}

// show pushes the frame with the current heatmap added on top to the
// outputs. Output problems never stop the scan.
func (r *scan) show(img gocv.Mat) {
	heat, err := r.scaler.Render(&r.grid)
	if err != nil {
		r.log.Debug("skipping frame render", "err", err)
		heat.Close()
		return
	}
	defer heat.Close()

	composite, err := render.Overlay(heat, img)
	if err != nil {
		r.log.Debug("skipping frame render", "err", err)
		composite.Close()
		return
	}
	defer composite.Close()

	// failing outputs are logged and dropped by Multi
	_ = r.out.Put(composite)
}

// finalize releases the stream and the outputs, then renders the result.
func (r *scan) finalize(now time.Time) (*Result, error) {
	if err := r.src.Close(); err != nil {
		r.log.Warn("capture close failed", "err", err)
	}
	if err := r.out.Close(); err != nil {
		r.log.Warn("output close failed", "err", err)
	}

	r.stats.Finished = now
	r.stats.MaxDwell = r.grid.Max()
	if r.grid.Empty() {
		return nil, ErrNoFrames
	}

	heat, err := r.scaler.Render(&r.grid)
	if err != nil {
		heat.Close()
		return nil, err
	}
	grid := r.grid
	return &Result{
		Heatmap:    heat,
		Background: r.ext.Background().Clone(),
		Grid:       &grid,
		Stats:      r.stats,
	}, nil
}

// close is safe to call after finalize; both halves are idempotent.
func (r *scan) close() {
	if r.closed {
		return
	}
	r.closed = true
	r.src.Close()
	r.out.Close()
	if err := r.ext.Close(); err != nil {
		r.log.Warn("background model close failed", "err", err)
	}
}
