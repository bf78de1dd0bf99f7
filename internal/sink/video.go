package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
)

// Video records frames into a video file. The writer is opened by the first
// Put, sized to that frame; every later frame must match it.
type Video struct {
	Path  string
	Codec string // four-character code, e.g. XVID or MJPG
	FPS   float64

	w      *gocv.VideoWriter
	width  int
	height int
	frames int
	closed bool
}

func NewVideo(path, codec string, fps float64) *Video {
	return &Video{Path: path, Codec: codec, FPS: fps}
}

func (v *Video) open(frame gocv.Mat) error {
	if dir := filepath.Dir(v.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	w, err := gocv.VideoWriterFile(v.Path, v.Codec, v.FPS, frame.Cols(), frame.Rows(), frame.Channels() > 1)
	if err != nil {
		return fmt.Errorf("failed to open video writer %s: %w", v.Path, err)
	}
	if !w.IsOpened() {
		w.Close()
		return fmt.Errorf("video writer %s (%s) did not open", v.Path, v.Codec)
	}
	v.w = w
	v.width, v.height = frame.Cols(), frame.Rows()
	return nil
}

func (v *Video) Put(frame gocv.Mat) error {
	if v.closed {
		return ErrClosed
	}
	if v.w == nil {
		if err := v.open(frame); err != nil {
			return err
		}
	}
	if frame.Cols() != v.width || frame.Rows() != v.height {
		return fmt.Errorf("frame is %dx%d, video is %dx%d", frame.Cols(), frame.Rows(), v.width, v.height)
	}
	if err := v.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", v.frames, err)
	}
	v.frames++
	return nil
}

// Frames returns how many frames were written.
func (v *Video) Frames() int { return v.frames }

// Close finalizes the file. Closing twice is a no-op.
func (v *Video) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	if v.w == nil {
		return nil
	}
	return v.w.Close()
}
