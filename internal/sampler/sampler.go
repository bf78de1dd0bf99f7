// Package sampler throttles how often frames are accepted, with the same
// effective cadence on a live camera and on a replayed file.
package sampler

import (
	"math"
	"time"

	"github.com/andresmejia3/dwell/internal/timeutil"
)

// Stream is the view of a capture source the scheduler needs.
type Stream interface {
	Live() bool
	FPS() float64
	LastRead() time.Time
	Discard() bool
}

// Scheduler gates the capture loop to one accepted frame per interval.
type Scheduler struct {
	interval time.Duration
	clock    timeutil.Clock
}

// New returns a Scheduler. A zero interval disables sampling.
func New(interval time.Duration, clock timeutil.Clock) *Scheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{interval: interval, clock: clock}
}

// Enabled reports whether frames are being throttled at all.
func (s *Scheduler) Enabled() bool { return s.interval > 0 }

// Wait blocks until the next frame is due and returns how many frames were
// discarded to get there. Live streams sleep out the remaining time. Replayed
// streams skip ceil(fps × remaining) frames instead, since sleeping would not
// move a file forward. Being late is not corrected beyond returning at once.
func (s *Scheduler) Wait(src Stream) int {
	if !s.Enabled() {
		return 0
	}

	nextDue := src.LastRead().Add(s.interval)
	remaining := nextDue.Sub(s.clock.Now())
	if remaining <= 0 {
		return 0
	}

	if src.Live() {
		s.clock.Sleep(remaining)
		return 0
	}

	toSkip := int(math.Ceil(src.FPS() * remaining.Seconds()))
	skipped := 0
	for ; skipped < toSkip; skipped++ {
		if !src.Discard() {
			// End of stream; the next real read reports it.
			break
		}
	}
	return skipped
}
