package foreground

import (
	"image"
	"math/rand"
	"testing"

	"github.com/andresmejia3/dwell/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// passthrough classifies each pixel by its own value, which makes the
// mask path deterministic.
type passthrough struct {
	closed int
}

func (p *passthrough) Apply(src gocv.Mat, dst *gocv.Mat) { src.CopyTo(dst) }
func (p *passthrough) Close() error                      { p.closed++; return nil }

// fixedSize always returns a 4x4 classification.
type fixedSize struct{}

func (fixedSize) Apply(_ gocv.Mat, dst *gocv.Mat) {
	m := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
	defer m.Close()
	m.CopyTo(dst)
}
func (fixedSize) Close() error { return nil }

func grayFrame(t *testing.T, rows, cols int, data []byte) gocv.Mat {
	t.Helper()
	m, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, data)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func filled(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestNewSubtractor(t *testing.T) {
	for _, algo := range []config.Algorithm{config.AlgoKNN, config.AlgoMOG2} {
		sub, err := NewSubtractor(algo)
		require.NoError(t, err, algo)
		require.NoError(t, sub.Close())
	}

	_, err := NewSubtractor("gmg")
	assert.Error(t, err)
}

func TestMaskIsBinary(t *testing.T) {
	sub := &passthrough{}
	e := New(sub, Options{})
	defer e.Close()

	// background, shadow, foreground, faint
	frame := grayFrame(t, 2, 2, []byte{0, 127, 255, 30})
	out, err := e.Apply(frame)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Mask.Rows())
	assert.Equal(t, 2, out.Mask.Cols())
	assert.Equal(t, []byte{0, 255, 255, 255}, out.Mask.ToBytes())
}

func TestNoiseReductionDropsSpecks(t *testing.T) {
	const size = 40
	data := make([]byte, size*size)
	data[5*size+5] = 255 // lone speck
	for r := 15; r < 35; r++ {
		for c := 15; c < 35; c++ {
			data[r*size+c] = 255
		}
	}
	frame := grayFrame(t, size, size, data)

	e := New(&passthrough{}, Options{
		NoiseReduction: true,
		Erosion:        image.Pt(3, 3),
		Dilation:       image.Pt(3, 3),
	})
	defer e.Close()

	out, err := e.Apply(frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), out.Mask.GetUCharAt(5, 5), "speck survives")
	assert.Equal(t, uint8(255), out.Mask.GetUCharAt(25, 25), "blob lost")

	// without cleanup the speck is kept
	raw := New(&passthrough{}, Options{})
	defer raw.Close()
	out, err = raw.Apply(frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), out.Mask.GetUCharAt(5, 5))
}

func TestBackgroundIgnoresForeground(t *testing.T) {
	e := New(&passthrough{}, Options{BackgroundRate: 0.05})
	defer e.Close()

	assert.True(t, e.Background().Empty())

	// first frame seeds the estimate
	_, err := e.Apply(grayFrame(t, 4, 4, filled(16, 100)))
	require.NoError(t, err)
	assert.Equal(t, filled(16, 100), e.Background().ToBytes())

	// an all-foreground frame does not move it
	_, err = e.Apply(grayFrame(t, 4, 4, filled(16, 200)))
	require.NoError(t, err)
	assert.Equal(t, filled(16, 100), e.Background().ToBytes())

	// a background frame blends in at the learning rate
	out, err := e.Apply(grayFrame(t, 4, 4, filled(16, 0)))
	require.NoError(t, err)
	assert.Equal(t, filled(16, 95), out.Background.ToBytes())
}

func TestApplyRejectsBadInput(t *testing.T) {
	e := New(&passthrough{}, Options{})
	defer e.Close()

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := e.Apply(empty)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	odd := New(fixedSize{}, Options{})
	defer odd.Close()
	_, err = odd.Apply(grayFrame(t, 8, 8, make([]byte, 64)))
	assert.Error(t, err)
}

func TestRealModelProducesBinaryMask(t *testing.T) {
	for _, algo := range []config.Algorithm{config.AlgoKNN, config.AlgoMOG2} {
		t.Run(string(algo), func(t *testing.T) {
			sub, err := NewSubtractor(algo)
			require.NoError(t, err)

			cfg := config.Default()
			cfg.ErosionKernelWidth, cfg.ErosionKernelHeight = 3, 3
			cfg.DilationKernelWidth, cfg.DilationKernelHeight = 5, 5
			e := New(sub, OptionsFromConfig(cfg))
			defer e.Close()

			rng := rand.New(rand.NewSource(1))
			const rows, cols = 48, 64
			for i := 0; i < 5; i++ {
				data := make([]byte, rows*cols*3)
				rng.Read(data)
				frame, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC3, data)
				require.NoError(t, err)

				out, err := e.Apply(frame)
				frame.Close()
				require.NoError(t, err)

				assert.Equal(t, rows, out.Mask.Rows())
				assert.Equal(t, cols, out.Mask.Cols())
				assert.Equal(t, 3, out.Background.Channels())
				for _, v := range out.Mask.ToBytes() {
					require.Contains(t, []byte{0, 255}, v)
				}
			}
		})
	}
}

func TestCloseReleasesModel(t *testing.T) {
	sub := &passthrough{}
	e := New(sub, Options{NoiseReduction: true, Erosion: image.Pt(3, 3), Dilation: image.Pt(5, 5)})
	require.NoError(t, e.Close())
	assert.Equal(t, 1, sub.closed)
}
