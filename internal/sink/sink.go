// Package sink holds the destinations rendered heatmaps are pushed to.
package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
)

var ErrClosed = errors.New("sink: closed")

// Sink is a destination for a stream of frames, such as a video file or a
// window. Put must not keep a reference to frame after it returns.
type Sink interface {
	Put(frame gocv.Mat) error
	Close() error
}

// Named tags a Sink for log lines.
type Named struct {
	Name string
	Sink
}

// Multi fans frames out to several sinks. A sink whose Put fails is closed
// and dropped; the others keep receiving frames.
type Multi struct {
	sinks []Named
	log   *slog.Logger
}

func NewMulti(log *slog.Logger, sinks ...Named) *Multi {
	if log == nil {
		log = slog.Default()
	}
	return &Multi{sinks: sinks, log: log}
}

// Len returns how many sinks are still active.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Put(frame gocv.Mat) error {
	var errs []error
	kept := m.sinks[:0]
	for _, s := range m.sinks {
		if err := s.Put(frame); err != nil {
			m.log.Warn("output disabled", "sink", s.Name, "err", err)
			if cerr := s.Close(); cerr != nil {
				m.log.Debug("close failed", "sink", s.Name, "err", cerr)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		kept = append(kept, s)
	}
	m.sinks = kept
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	m.sinks = nil
	return errors.Join(errs...)
}

// SaveImage writes mat to path, creating parent directories. The format
// follows the file extension.
func SaveImage(path string, mat gocv.Mat) error {
	if mat.Empty() {
		return fmt.Errorf("refusing to write empty image to %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}
