package source

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsRegistry(t *testing.T) {
	r := Builtins()
	assert.Equal(t, []string{"black", "gradient", "script", "sequence", "solid", "testpattern"}, r.Types())

	_, err := r.New(Spec{Type: "video"})
	assert.ErrorIs(t, err, ErrUnknownType)

	src, err := r.New(Spec{Type: "Solid", Width: 2, Height: 2, Params: map[string]any{"color": "#102030"}})
	require.NoError(t, err)
	require.NoError(t, src.Initialize())
	f, d := src.NextFrame()
	require.NotNil(t, f)
	assert.Equal(t, []byte{0x10, 0x20, 0x30}, f.Pix[:3])
	assert.Equal(t, Interval(30), d)
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("Red")
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{255, 0, 0}, c)
	_, err = ParseColor("#12")
	assert.Error(t, err)
}

func TestSolidPulse(t *testing.T) {
	s, err := NewSolid(Spec{Width: 1, Height: 1, FPS: 4, Params: map[string]any{"color": "white", "pulse_hz": 1.0}})
	require.NoError(t, err)
	f0, _ := s.NextFrame() // sin(0)
	f1, _ := s.NextFrame() // sin(pi/2)
	assert.InDelta(t, 128, int(f0.Pix[0]), 1)
	assert.Equal(t, byte(255), f1.Pix[0])
	s.Reset()
	again, _ := s.NextFrame()
	assert.True(t, f0.Equal(again))
}

func TestSequenceRampAndTimeline(t *testing.T) {
	q := NewSequence(Spec{Width: 2, Height: 1, Params: map[string]any{"frames": 10}})
	require.NoError(t, q.Initialize())
	assert.Equal(t, 10, q.FrameCount())

	for i := 0; i < 10; i++ {
		f, _ := q.NextFrame()
		require.NotNil(t, f, "frame %d", i)
	}
	f, _ := q.NextFrame()
	assert.Nil(t, f)

	q.Reset()
	f, _ = q.NextFrame()
	assert.Equal(t, byte(0), f.Pix[0])

	assert.True(t, q.Seek(9))
	f, _ = q.NextFrame()
	assert.Equal(t, byte(255), f.Pix[0])
	assert.True(t, q.Seek(10))
	assert.False(t, q.Seek(11))
	f, _ = q.NextFrame()
	assert.Nil(t, f)
}

func TestSequenceLoadsImageDir(t *testing.T) {
	dir := t.TempDir()
	for i, c := range []color.NRGBA{{255, 0, 0, 255}, {0, 0, 255, 255}} {
		img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
		for p := 0; p < 16; p++ {
			img.Set(p%4, p/4, c)
		}
		fh, err := os.Create(filepath.Join(dir, []string{"b.png", "a.png"}[i]))
		require.NoError(t, err)
		require.NoError(t, png.Encode(fh, img))
		require.NoError(t, fh.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	q := NewSequence(Spec{Path: dir, Width: 2, Height: 2, FPS: 10})
	require.NoError(t, q.Initialize())
	require.Equal(t, 2, q.FrameCount())

	// a.png (blue) sorts first
	f, d := q.NextFrame()
	assert.Equal(t, []byte{0, 0, 255}, f.Pix[:3])
	assert.Equal(t, 2, f.Width)
	assert.Equal(t, 100*time.Millisecond, d)
}

func TestSequenceMissingDir(t *testing.T) {
	q := NewSequence(Spec{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, q.Initialize())
	f, _ := q.NextFrame()
	assert.Nil(t, f)
}

func TestTestPatterns(t *testing.T) {
	p, err := NewTestPattern(Spec{Width: 3, Height: 2, Params: map[string]any{"pattern": "index_sweep"}})
	require.NoError(t, err)
	frames := 0
	for {
		f, _ := p.NextFrame()
		if f == nil {
			break
		}
		lit := 0
		for i := 0; i < len(f.Pix); i += 3 {
			if f.Pix[i] == 255 {
				lit++
			}
		}
		assert.Equal(t, 1, lit)
		frames++
	}
	assert.Equal(t, 6, frames)

	rgb, err := NewTestPattern(Spec{Width: 1, Height: 1, Params: map[string]any{"pattern": "rgb_channels"}})
	require.NoError(t, err)
	for _, want := range [][]byte{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}} {
		f, _ := rgb.NextFrame()
		assert.Equal(t, want, f.Pix)
	}

	_, err = NewTestPattern(Spec{Params: map[string]any{"pattern": "plane_z"}})
	assert.Error(t, err)
}

func TestScriptSource(t *testing.T) {
	s := NewScript(Spec{Width: 2, Height: 1, FPS: 10, Params: map[string]any{
		"duration_s": 0.2,
		"code": `
function render(t, w, h)
  for x = 0, w-1 do
    set_pixel(x, 0, 1.0, t * 10 / 2, 0)
  end
end`,
	}})
	require.NoError(t, s.Initialize())
	defer s.Cleanup()

	f, _ := s.NextFrame()
	require.NotNil(t, f)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0}, f.Pix)
	f, _ = s.NextFrame()
	require.NotNil(t, f)
	assert.InDelta(t, 128, int(f.Pix[1]), 1)
	f, _ = s.NextFrame()
	assert.Nil(t, f, "duration reached")

	s.Reset()
	f, _ = s.NextFrame()
	assert.NotNil(t, f)
}

func TestScriptWithoutRender(t *testing.T) {
	s := NewScript(Spec{Params: map[string]any{"code": "x = 1"}})
	assert.Error(t, s.Initialize())
	assert.Error(t, NewScript(Spec{}).Initialize())
}
