package heatmap

import "gonum.org/v1/gonum/floats"

// Scaling tunes how accumulated dwell maps onto 0..255.
type Scaling struct {
	// Cutoff flattens normalized values below this fraction of the maximum to zero.
	Cutoff float64
	// Brighten, when positive, lifts every non-zero value into [Brighten, 255].
	Brighten float64
}

// Scale normalizes values into display intensities. It works on a copy, so
// the caller's slice (usually a live grid) is never modified. An all-zero or
// flat input yields all zeros.
func Scale(values []float64, s Scaling) []uint8 {
	out := make([]uint8, len(values))
	if len(values) == 0 {
		return out
	}

	v := make([]float64, len(values))
	copy(v, values)

	floats.AddConst(-floats.Min(v), v)
	peak := floats.Max(v)
	if peak <= 0 {
		return out
	}

	span := 255 - s.Brighten
	for i, x := range v {
		x /= peak
		if x < s.Cutoff {
			continue
		}
		x *= span
		if x > 0 {
			x += s.Brighten
		}
		out[i] = uint8(min(x, 255))
	}
	return out
}

// Intensities scales the grid's current values.
func (g *Grid) Intensities(s Scaling) []uint8 {
	return Scale(g.values, s)
}
