package render

import (
	"testing"

	"github.com/andresmejia3/dwell/internal/heatmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestRenderEmptyGrid(t *testing.T) {
	var g heatmap.Grid
	m, err := Scaler{}.Render(&g)
	defer m.Close()
	assert.ErrorIs(t, err, ErrEmptyGrid)
}

func TestRenderAllZeroIsBlack(t *testing.T) {
	var g heatmap.Grid
	require.NoError(t, g.Accumulate(make([]uint8, 12), 3, 4))

	m, err := Scaler{heatmap.Scaling{Cutoff: 0.1, Brighten: 50}}.Render(&g)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 3, m.Rows())
	assert.Equal(t, 4, m.Cols())
	assert.Equal(t, 3, m.Channels())
	assert.Equal(t, make([]byte, 36), m.ToBytes())
}

func TestRenderHotCellIsWhite(t *testing.T) {
	var g heatmap.Grid
	mask := []uint8{255, 0, 0, 0}
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Accumulate(mask, 2, 2))
	}
	before := g.Snapshot()

	m, err := Scaler{}.Render(&g)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, []uint8{255, 255, 255}, []uint8(m.GetVecbAt(0, 0)))
	assert.Equal(t, []uint8{0, 0, 0}, []uint8(m.GetVecbAt(1, 1)))
	assert.Equal(t, before, g.Snapshot(), "render changed the grid")
}

func TestOverlay(t *testing.T) {
	heat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer heat.Close()
	heat.SetTo(gocv.NewScalar(0, 0, 250, 0))

	base, err := gocv.NewMatFromBytes(2, 2, gocv.MatTypeCV8UC1, []byte{50, 50, 50, 50})
	require.NoError(t, err)
	defer base.Close()

	out, err := Overlay(heat, base)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 4, out.Rows())
	assert.Equal(t, 4, out.Cols())
	// red saturates, the gray base shows through the other channels
	assert.Equal(t, []uint8{50, 50, 255}, []uint8(out.GetVecbAt(1, 1)))

	// no base leaves the heatmap alone
	empty := gocv.NewMat()
	defer empty.Close()
	alone, err := Overlay(heat, empty)
	require.NoError(t, err)
	defer alone.Close()
	assert.Equal(t, []uint8{0, 0, 250}, []uint8(alone.GetVecbAt(0, 0)))

	_, err = Overlay(empty, base)
	assert.Error(t, err)
}
