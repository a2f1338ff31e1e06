package blend

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

func randomFrame(rng *rand.Rand, w, h int) *frame.Frame {
	f := frame.New(w, h, frame.RGB)
	rng.Read(f.Pix)
	return f
}

func reference(m Mode, b, o float64) float64 {
	switch m {
	case Multiply:
		return b * o
	case Screen:
		return 1 - (1-b)*(1-o)
	case Add:
		return math.Min(b+o, 1)
	case Subtract:
		return math.Max(b-o, 0)
	case Overlay:
		if b < 0.5 {
			return 2 * b * o
		}
		return 1 - 2*(1-b)*(1-o)
	default:
		return o
	}
}

func TestModesMatchFormulaAtFullOpacity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, m := range []Mode{Normal, Multiply, Screen, Add, Subtract, Overlay} {
		t.Run(m.String(), func(t *testing.T) {
			for round := 0; round < 20; round++ {
				base := randomFrame(rng, 8, 6)
				over := randomFrame(rng, 8, 6)
				out := Blend(base, over, m, 100)
				require.NoError(t, out.Valid())
				for i := range out.Pix {
					want := reference(m, float64(base.Pix[i])/255, float64(over.Pix[i])/255) * 255
					if math.Abs(float64(out.Pix[i])-want) > 1 {
						t.Fatalf("pixel %d: got %d want %.2f", i, out.Pix[i], want)
					}
				}
			}
		})
	}
}

func TestNormalFullOpacityReturnsOverlay(t *testing.T) {
	base := frame.Solid(4, 4, 1, 2, 3)
	before := base.Clone()
	over := frame.Solid(4, 4, 200, 100, 50)

	out := Blend(base, over, Normal, 100)
	assert.Same(t, over, out)
	assert.True(t, base.Equal(before), "base must not be mutated")
}

func TestGrayIdentities(t *testing.T) {
	gray := frame.Solid(3, 3, 128, 128, 128)

	mul := Blend(gray, gray, Multiply, 100)
	assert.InDelta(t, 64, int(mul.Pix[0]), 2)

	scr := Blend(gray, gray, Screen, 100)
	assert.InDelta(t, 191, int(scr.Pix[0]), 2)

	add := Blend(gray, gray, Add, 100)
	for _, v := range add.Pix {
		assert.Equal(t, uint8(255), v)
	}
}

func TestNormalPartialOpacityIntegerPath(t *testing.T) {
	base := frame.Solid(2, 2, 0, 0, 0)
	over := frame.Solid(2, 2, 200, 100, 255)
	out := Blend(base, over, Normal, 50)
	assert.InDelta(t, 100, int(out.Pix[0]), 1)
	assert.InDelta(t, 50, int(out.Pix[1]), 1)
	assert.InDelta(t, 128, int(out.Pix[2]), 1)

	none := Blend(base, over, Normal, 0)
	assert.True(t, none.Equal(base))
}

func TestOpacityMixesAfterMode(t *testing.T) {
	base := frame.Solid(2, 2, 200, 200, 200)
	over := frame.Solid(2, 2, 100, 100, 100)
	out := Blend(base, over, Multiply, 50)
	b, o := 200.0/255, 100.0/255
	want := (b*0.5 + b*o*0.5) * 255
	assert.InDelta(t, want, float64(out.Pix[0]), 1)
}

func TestAlphaChannelIsPerPixelMask(t *testing.T) {
	base := frame.Solid(2, 1, 0, 0, 0)
	over := frame.New(2, 1, frame.RGBA)
	copy(over.Pix, []byte{255, 255, 255, 255, 255, 255, 255, 0})

	out := Blend(base, over, Normal, 100)
	assert.Equal(t, frame.RGB, out.Channels)
	assert.Equal(t, []byte{255, 255, 255, 0, 0, 0}, out.Pix)
}

func TestMismatchedOverlayIsResized(t *testing.T) {
	base := frame.Solid(6, 4, 10, 10, 10)
	over := frame.Solid(2, 2, 250, 250, 250)
	out := Blend(base, over, Screen, 100)
	assert.Equal(t, 6, out.Width)
	assert.Equal(t, 4, out.Height)
	want := reference(Screen, 10.0/255, 250.0/255) * 255
	assert.InDelta(t, want, float64(out.Pix[len(out.Pix)-1]), 2)
}

func TestMaskUsesLuminance(t *testing.T) {
	base := frame.Solid(1, 1, 200, 100, 50)
	over := frame.Solid(1, 1, 255, 0, 0)
	out := Blend(base, over, Mask, 30)
	lum := 0.299
	assert.InDelta(t, 200*lum, float64(out.Pix[0]), 1)
	assert.InDelta(t, 100*lum, float64(out.Pix[1]), 1)
	assert.InDelta(t, 50*lum, float64(out.Pix[2]), 1)
}

func TestParseMode(t *testing.T) {
	for _, name := range Modes() {
		m, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}
	m, err := ParseMode(" Screen ")
	require.NoError(t, err)
	assert.Equal(t, Screen, m)

	_, err = ParseMode("dodge")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestClampOpacity(t *testing.T) {
	assert.Equal(t, 0.0, ClampOpacity(-3))
	assert.Equal(t, 100.0, ClampOpacity(250))
	assert.Equal(t, 42.5, ClampOpacity(42.5))
	assert.Equal(t, 0.0, ClampOpacity(math.NaN()))
}
