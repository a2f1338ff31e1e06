package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolidAndEqual(t *testing.T) {
	a := Solid(4, 2, 10, 20, 30)
	b := a.Clone()
	require.True(t, a.Equal(b))
	r, g, bl := b.RGBAt(3, 1)
	assert.Equal(t, []uint8{10, 20, 30}, []uint8{r, g, bl})

	b.SetRGB(0, 0, 1, 2, 3)
	assert.False(t, a.Equal(b), "clone must not share pixels")
}

func TestSplitAlpha(t *testing.T) {
	f := New(2, 1, RGBA)
	copy(f.Pix, []byte{255, 0, 0, 255, 0, 255, 0, 0})

	rgb, alpha := f.SplitAlpha()
	require.NotNil(t, alpha)
	assert.Equal(t, RGB, rgb.Channels)
	assert.Equal(t, []byte{255, 0, 0, 0, 255, 0}, rgb.Pix)
	assert.InDelta(t, 1.0, alpha[0], 1e-6)
	assert.InDelta(t, 0.0, alpha[1], 1e-6)

	plain := Black(2, 2)
	same, none := plain.SplitAlpha()
	assert.Same(t, plain, same)
	assert.Nil(t, none)
}

func TestResizeUniform(t *testing.T) {
	f := Solid(2, 2, 128, 64, 32)
	out := Resize(f, 5, 3)
	require.NoError(t, out.Valid())
	assert.Equal(t, 5, out.Width)
	assert.Equal(t, 3, out.Height)
	for i := 0; i < len(out.Pix); i += 3 {
		assert.InDelta(t, 128, int(out.Pix[i]), 1)
		assert.InDelta(t, 64, int(out.Pix[i+1]), 1)
		assert.InDelta(t, 32, int(out.Pix[i+2]), 1)
	}
	assert.Same(t, f, Resize(f, 2, 2))
}

func TestFromImageKeepsAlphaOnlyWhenNeeded(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	assert.Equal(t, RGB, FromImage(img).Channels)

	img.Set(1, 1, color.NRGBA{R: 1, A: 10})
	f := FromImage(img)
	assert.Equal(t, RGBA, f.Channels)
	assert.Equal(t, byte(10), f.Pix[(1*2+1)*4+3])
}
