package sink

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type recorder struct {
	puts   int
	closes int
	fail   error
}

func (r *recorder) Put(gocv.Mat) error {
	r.puts++
	return r.fail
}

func (r *recorder) Close() error {
	r.closes++
	return nil
}

func colorFrame(t *testing.T, rows, cols int) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(0, 64, 255, 0))
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMultiDropsFailingSink(t *testing.T) {
	good := &recorder{}
	bad := &recorder{fail: errors.New("disk full")}
	m := NewMulti(nil, Named{"good", good}, Named{"bad", bad})

	frame := colorFrame(t, 4, 4)
	err := m.Put(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: disk full")
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, bad.closes)

	require.NoError(t, m.Put(frame))
	assert.Equal(t, 2, good.puts)
	assert.Equal(t, 1, bad.puts)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, good.closes)
	assert.Zero(t, m.Len())
}

func TestVideoWritesFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.avi")
	v := NewVideo(path, "MJPG", 5)

	frame := colorFrame(t, 48, 64)
	for i := 0; i < 3; i++ {
		require.NoError(t, v.Put(frame))
	}
	assert.Equal(t, 3, v.Frames())

	// frames are pinned to the first frame's size
	assert.Error(t, v.Put(colorFrame(t, 24, 32)))

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.ErrorIs(t, v.Put(frame), ErrClosed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestVideoCloseWithoutFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.avi")
	v := NewVideo(path, "MJPG", 5)
	require.NoError(t, v.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestScreenCloseBeforeUse(t *testing.T) {
	s := NewScreen("dwell")
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Put(colorFrame(t, 2, 2)), ErrClosed)
}

func TestSaveImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "heatmap.png")
	frame := colorFrame(t, 10, 20)
	require.NoError(t, SaveImage(path, frame))

	back := gocv.IMRead(path, gocv.IMReadColor)
	defer back.Close()
	require.False(t, back.Empty())
	assert.Equal(t, 10, back.Rows())
	assert.Equal(t, 20, back.Cols())
	assert.Equal(t, []uint8{0, 64, 255}, []uint8(back.GetVecbAt(5, 5)))

	empty := gocv.NewMat()
	defer empty.Close()
	assert.Error(t, SaveImage(filepath.Join(t.TempDir(), "x.png"), empty))
}
