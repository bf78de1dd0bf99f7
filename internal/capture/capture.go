// Package capture puts a live camera and a replayed video file behind one
// Source so the heatmap loop is written once.
package capture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/andresmejia3/dwell/internal/config"
	"github.com/andresmejia3/dwell/internal/timeutil"
	"gocv.io/x/gocv"
)

var (
	// ErrDeviceUnavailable is returned when the stream cannot be opened.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")
	// ErrUnknownFrameRate is returned when a file reports no usable frame rate,
	// which leaves replay mode without a cutoff.
	ErrUnknownFrameRate = errors.New("capture: unknown frame rate")
)

// Device is the part of *gocv.VideoCapture the capture layer drives.
type Device interface {
	Read(m *gocv.Mat) bool
	IsOpened() bool
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// OpenFunc opens the device for a configuration.
type OpenFunc func(cfg config.Config) (Device, error)

// OpenDevice opens the gocv stream selected by cfg.CaptureMode.
func OpenDevice(cfg config.Config) (Device, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	switch cfg.CaptureMode {
	case config.ModeFile:
		vc, err = gocv.VideoCaptureFile(cfg.InputFilename)
	case config.ModeCameraDirect:
		vc, err = gocv.VideoCaptureDevice(cfg.CameraDevice)
	case config.ModeCameraPipeline:
		vc, err = gocv.VideoCaptureFileWithAPI(cfg.GStreamerPipeline, gocv.VideoCaptureGstreamer)
	default:
		return nil, fmt.Errorf("unsupported capture mode %q", cfg.CaptureMode)
	}
	if err != nil {
		return nil, err
	}
	return vc, nil
}

// Info is a snapshot of the stream properties fixed at open time.
type Info struct {
	Mode         config.CaptureMode
	Live         bool
	FPS          float64
	Size         image.Point
	CutoffFrames int       // replay only
	Deadline     time.Time // live only
}

// Source is the capture state of one run: the device, its cutoff and the
// read counters. It is not safe for concurrent use.
type Source struct {
	dev    Device
	clock  timeutil.Clock
	log    *slog.Logger
	info   Info
	closed bool

	framesRead int
	lastRead   time.Time
	scratch    gocv.Mat
}

// Open acquires the configured stream and computes its cutoff.
func Open(cfg config.Config, open OpenFunc, clock timeutil.Clock, log *slog.Logger) (*Source, error) {
	if open == nil {
		open = OpenDevice
	}
	if log == nil {
		log = slog.Default()
	}

	log.Info("opening video stream", "mode", cfg.CaptureMode, "source", cfg.Source())
	dev, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, cfg.Source(), err)
	}
	if !dev.IsOpened() {
		dev.Close()
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, cfg.Source())
	}

	src, err := NewSource(dev, cfg.CaptureMode, cfg.CaptureDuration(), clock, log)
	if err != nil {
		dev.Close()
		return nil, err
	}
	log.Info("heatmap scan scheduled", "duration", cfg.CaptureDuration(), "live", src.info.Live)
	return src, nil
}

// NewSource wraps an already opened device. In replay mode the cutoff is
// ceil(fps × duration) frames; live sources stop at open time + duration.
func NewSource(dev Device, mode config.CaptureMode, duration time.Duration, clock timeutil.Clock, log *slog.Logger) (*Source, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}

	info := Info{
		Mode: mode,
		Live: mode.Live(),
		FPS:  dev.Get(gocv.VideoCaptureFPS),
		Size: image.Pt(
			int(dev.Get(gocv.VideoCaptureFrameWidth)),
			int(dev.Get(gocv.VideoCaptureFrameHeight)),
		),
	}
	if info.Live {
		info.Deadline = clock.Now().Add(duration)
	} else {
		if info.FPS <= 0 || math.IsNaN(info.FPS) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownFrameRate, info.FPS)
		}
		info.CutoffFrames = int(math.Ceil(info.FPS * duration.Seconds()))
	}

	return &Source{
		dev:     dev,
		clock:   clock,
		log:     log,
		info:    info,
		scratch: gocv.NewMat(),
	}, nil
}

// Info returns the stream properties captured at open time.
func (s *Source) Info() Info { return s.info }

// Live reports whether frames arrive on a real time axis.
func (s *Source) Live() bool { return s.info.Live }

// FPS is the frame rate reported by the stream.
func (s *Source) FPS() float64 { return s.info.FPS }

// FramesRead counts successful reads, discards included.
func (s *Source) FramesRead() int { return s.framesRead }

// LastRead is the wall time of the last successful read, zero before any.
func (s *Source) LastRead() time.Time { return s.lastRead }

// Read grabs the next frame into dst. A false return is the normal
// end-of-input signal and leaves the counters untouched.
func (s *Source) Read(dst *gocv.Mat) bool {
	if s.closed {
		return false
	}
	if !s.dev.Read(dst) {
		return false
	}
	s.framesRead++
	s.lastRead = s.clock.Now()
	return true
}

// Discard reads and drops one frame, advancing the stream position.
func (s *Source) Discard() bool {
	return s.Read(&s.scratch)
}

// Expired reports whether the run should stop reading. A device that closed
// underneath us counts as expired so the loop still finalizes cleanly.
func (s *Source) Expired() bool {
	if s.closed || !s.dev.IsOpened() {
		s.log.Warn("video capture is no longer open; ending heatmap scan")
		return true
	}
	if s.info.Live {
		return !s.clock.Now().Before(s.info.Deadline)
	}
	return s.framesRead >= s.info.CutoffFrames
}

// Close releases the device. Calling it again is a no-op.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.scratch.Close()

	if !s.dev.IsOpened() {
		return nil
	}
	s.log.Info("closing video capture stream", "frames_read", s.framesRead)
	if err := s.dev.Close(); err != nil {
		return fmt.Errorf("failed to release capture: %w", err)
	}
	return nil
}
