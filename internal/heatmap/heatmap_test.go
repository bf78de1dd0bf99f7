package heatmap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulateAllocatesOnFirstMask(t *testing.T) {
	var g Grid
	assert.True(t, g.Empty())
	assert.Zero(t, g.Max())

	require.NoError(t, g.Accumulate([]uint8{0, 255, 255, 0, 0, 0}, 2, 3))

	rows, cols := g.Shape()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, []float64{0, 255, 255, 0, 0, 0}, g.Snapshot())
}

func TestAccumulateIsMonotonic(t *testing.T) {
	const rows, cols = 12, 9
	rng := rand.New(rand.NewSource(7))
	var g Grid

	prev := make([]float64, rows*cols)
	for step := 0; step < 50; step++ {
		mask := make([]uint8, rows*cols)
		for i := range mask {
			if rng.Intn(4) == 0 {
				mask[i] = 255
			}
		}
		require.NoError(t, g.Accumulate(mask, rows, cols))

		cur := g.Snapshot()
		for i := range cur {
			require.GreaterOrEqual(t, cur[i], prev[i], "cell %d decreased at step %d", i, step)
		}
		prev = cur
	}
}

func TestAccumulateRejectsShapeChange(t *testing.T) {
	var g Grid
	require.NoError(t, g.Accumulate(make([]uint8, 6), 2, 3))

	err := g.Accumulate(make([]uint8, 6), 3, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	err = g.Accumulate(make([]uint8, 5), 2, 3)
	assert.Error(t, err)

	rows, cols := g.Shape()
	assert.Equal(t, [2]int{2, 3}, [2]int{rows, cols}, "shape never resized")
}

func TestScaleDoesNotMutateInput(t *testing.T) {
	var g Grid
	require.NoError(t, g.Accumulate([]uint8{10, 20, 30, 255}, 2, 2))
	require.NoError(t, g.Accumulate([]uint8{0, 20, 30, 255}, 2, 2))

	before := g.Snapshot()
	_ = g.Intensities(Scaling{Cutoff: 0.3, Brighten: 40})
	assert.Equal(t, before, g.Snapshot())

	// the grid keeps accumulating unaffected
	require.NoError(t, g.Accumulate([]uint8{1, 1, 1, 1}, 2, 2))
	assert.Equal(t, 11.0, g.At(0, 0))
}

func TestScaleAllZero(t *testing.T) {
	got := Scale(make([]float64, 16), Scaling{Cutoff: 0.5, Brighten: 100})
	assert.Equal(t, make([]uint8, 16), got)

	// a flat non-zero grid shifts to zero as well
	got = Scale([]float64{42, 42, 42}, Scaling{})
	assert.Equal(t, []uint8{0, 0, 0}, got)

	assert.Empty(t, Scale(nil, Scaling{}))
}

func TestScale(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		s    Scaling
		want []uint8
	}{
		{
			name: "linear to 255",
			in:   []float64{0, 255, 510, 765},
			want: []uint8{0, 85, 170, 255},
		},
		{
			name: "min shifted to zero",
			in:   []float64{100, 200, 300},
			want: []uint8{0, 127, 255},
		},
		{
			name: "cutoff flattens low values",
			in:   []float64{0, 10, 50, 100},
			s:    Scaling{Cutoff: 0.2},
			want: []uint8{0, 0, 127, 255},
		},
		{
			name: "brighten lifts non-zero values",
			in:   []float64{0, 50, 100},
			s:    Scaling{Brighten: 55},
			want: []uint8{0, 155, 255},
		},
		{
			name: "cutoff and brighten",
			in:   []float64{0, 10, 100},
			s:    Scaling{Cutoff: 0.5, Brighten: 100},
			want: []uint8{0, 0, 255},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scale(tt.in, tt.s))
		})
	}
}

func TestCoarse(t *testing.T) {
	var g Grid
	// 4x4 grid with the top-left quadrant hot
	mask := []uint8{
		255, 255, 0, 0,
		255, 255, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 255,
	}
	require.NoError(t, g.Accumulate(mask, 4, 4))

	out, rows, cols := g.Coarse(2, 2)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.InDeltaSlice(t, []float64{255, 0, 0, 63.75}, out, 1e-9)

	// bins never exceed the grid size
	_, rows, cols = g.Coarse(32, 32)
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)

	var empty Grid
	out, rows, _ = empty.Coarse(8, 8)
	assert.Nil(t, out)
	assert.Zero(t, rows)
}

func TestNewGrid(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	g, err := NewGrid(values, 2, 3)
	require.NoError(t, err)

	values[0] = 100
	assert.Equal(t, 1.0, g.At(0, 0), "grid keeps its own copy")
	assert.Equal(t, 6.0, g.Max())

	// accumulation continues on the rebuilt grid
	require.NoError(t, g.Accumulate([]uint8{1, 0, 0, 0, 0, 0}, 2, 3))
	assert.Equal(t, 2.0, g.At(0, 0))

	_, err = NewGrid(values, 4, 4)
	assert.Error(t, err)
	_, err = NewGrid(nil, 0, 0)
	assert.Error(t, err)
}
