// Package foreground turns frames into binary occupancy masks using an
// adaptive background model.
package foreground

import (
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/dwell/internal/config"
	"gocv.io/x/gocv"
)

// DefaultBackgroundRate is the running-average weight of a new frame in the
// background estimate.
const DefaultBackgroundRate = 0.05

// ErrEmptyFrame is returned when Apply is handed an empty Mat.
var ErrEmptyFrame = errors.New("foreground: empty frame")

// Options controls mask cleanup and the background estimate.
type Options struct {
	NoiseReduction bool
	Erosion        image.Point // elliptical kernel size
	Dilation       image.Point // elliptical kernel size, usually larger than Erosion
	BackgroundRate float64
}

// OptionsFromConfig maps the algorithm section of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		NoiseReduction: cfg.NoiseReductionEnabled,
		Erosion:        image.Pt(cfg.ErosionKernelWidth, cfg.ErosionKernelHeight),
		Dilation:       image.Pt(cfg.DilationKernelWidth, cfg.DilationKernelHeight),
		BackgroundRate: DefaultBackgroundRate,
	}
}

// Extraction is the result of one Apply. Both Mats belong to the Extractor
// and stay valid until the next Apply or Close; Clone them to keep them.
type Extraction struct {
	Mask       gocv.Mat // CV_8UC1, values in {0, 255}, same size as the frame
	Background gocv.Mat // CV_8U with the frame's channel count
}

// Extractor owns a background model and the scratch Mats of the mask path.
type Extractor struct {
	sub  Subtractor
	opts Options

	erode  gocv.Mat
	dilate gocv.Mat

	raw   gocv.Mat
	mask  gocv.Mat
	notFg gocv.Mat
	bgAcc gocv.Mat // float running average
	bg    gocv.Mat
}

// New wraps sub. The Extractor takes ownership of sub and closes it.
func New(sub Subtractor, opts Options) *Extractor {
	if opts.BackgroundRate <= 0 {
		opts.BackgroundRate = DefaultBackgroundRate
	}
	e := &Extractor{
		sub:   sub,
		opts:  opts,
		raw:   gocv.NewMat(),
		mask:  gocv.NewMat(),
		notFg: gocv.NewMat(),
		bgAcc: gocv.NewMat(),
		bg:    gocv.NewMat(),
	}
	if opts.NoiseReduction {
		e.erode = gocv.GetStructuringElement(gocv.MorphEllipse, opts.Erosion)
		e.dilate = gocv.GetStructuringElement(gocv.MorphEllipse, opts.Dilation)
	}
	return e
}

// Apply feeds frame into the background model and returns the cleaned mask
// together with the updated background estimate.
func (e *Extractor) Apply(frame gocv.Mat) (Extraction, error) {
	if frame.Empty() {
		return Extraction{}, ErrEmptyFrame
	}

	e.sub.Apply(frame, &e.raw)
	if e.raw.Rows() != frame.Rows() || e.raw.Cols() != frame.Cols() {
		return Extraction{}, fmt.Errorf("foreground: model returned %dx%d mask for %dx%d frame",
			e.raw.Cols(), e.raw.Rows(), frame.Cols(), frame.Rows())
	}

	// Shadows (~127) are people often enough; count them as occupancy.
	gocv.Threshold(e.raw, &e.mask, 0, 255, gocv.ThresholdBinary)

	e.updateBackground(frame)

	if e.opts.NoiseReduction {
		// erode removes specks, dilate regrows the surviving blobs
		gocv.Erode(e.mask, &e.mask, e.erode)
		gocv.Dilate(e.mask, &e.mask, e.dilate)
	}

	return Extraction{Mask: e.mask, Background: e.bg}, nil
}

// updateBackground folds the pixels not classified as foreground into the
// running background estimate.
func (e *Extractor) updateBackground(frame gocv.Mat) {
	if e.bgAcc.Empty() {
		frame.ConvertTo(&e.bgAcc, gocv.MatTypeCV32F)
	} else {
		gocv.BitwiseNot(e.mask, &e.notFg)
		gocv.AccumulatedWeightedWithMask(frame, &e.bgAcc, e.opts.BackgroundRate, e.notFg)
	}
	e.bgAcc.ConvertTo(&e.bg, gocv.MatTypeCV8U)
}

// Background returns the latest background estimate, empty before the first Apply.
func (e *Extractor) Background() gocv.Mat { return e.bg }

// Close releases the model and every Mat owned by the Extractor.
func (e *Extractor) Close() error {
	for _, m := range []*gocv.Mat{&e.raw, &e.mask, &e.notFg, &e.bgAcc, &e.bg} {
		m.Close()
	}
	if e.opts.NoiseReduction {
		e.erode.Close()
		e.dilate.Close()
	}
	return e.sub.Close()
}
