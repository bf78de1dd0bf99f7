package foreground

import (
	"fmt"

	"github.com/andresmejia3/dwell/internal/config"
	"gocv.io/x/gocv"
)

// Subtractor is an adaptive background model. Apply classifies every pixel
// of src into dst (0 background, ~127 shadow, 255 foreground) and updates the
// model. *gocv.BackgroundSubtractorKNN and *gocv.BackgroundSubtractorMOG2
// both satisfy it.
type Subtractor interface {
	Apply(src gocv.Mat, dst *gocv.Mat)
	Close() error
}

// NewSubtractor builds the background model for algo. This is the only place
// the algorithm name is interpreted.
func NewSubtractor(algo config.Algorithm) (Subtractor, error) {
	switch algo {
	case config.AlgoKNN:
		bs := gocv.NewBackgroundSubtractorKNN()
		return &bs, nil
	case config.AlgoMOG2:
		bs := gocv.NewBackgroundSubtractorMOG2()
		return &bs, nil
	default:
		return nil, fmt.Errorf("unknown background subtraction algorithm %q", algo)
	}
}
