package output

import (
	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// Dim is the fixture size: X LEDs per row, Y rows per panel, Z panels.
type Dim struct {
	X int `json:"x" yaml:"x" toml:"x"`
	Y int `json:"y" yaml:"y" toml:"y"`
	Z int `json:"z" yaml:"z" toml:"z"`
}

// Serpentine describes how the strip doubles back.
type Serpentine struct {
	XFlipEveryRow   bool `json:"x_flip_every_row" yaml:"x_flip_every_row" toml:"x_flip_every_row"`
	YFlipEveryPanel bool `json:"y_flip_every_panel" yaml:"y_flip_every_panel" toml:"y_flip_every_panel"`
}

// Layout maps raster pixels to strip positions. Panels are stacked
// vertically in the raster, so the raster is X wide and Y*Z tall.
type Layout struct {
	Dim   Dim        `json:"dim" yaml:"dim" toml:"dim"`
	Order Serpentine `json:"order" yaml:"order" toml:"order"`
}

// Strip is a single straight run of n LEDs.
func Strip(n int) Layout { return Layout{Dim: Dim{X: n, Y: 1, Z: 1}} }

func (l Layout) normalized() Layout {
	if l.Dim.X < 1 {
		l.Dim.X = 1
	}
	if l.Dim.Y < 1 {
		l.Dim.Y = 1
	}
	if l.Dim.Z < 1 {
		l.Dim.Z = 1
	}
	return l
}

func (l Layout) Count() int {
	l = l.normalized()
	return l.Dim.X * l.Dim.Y * l.Dim.Z
}

// FrameSize is the raster size the layout expects.
func (l Layout) FrameSize() (w, h int) {
	l = l.normalized()
	return l.Dim.X, l.Dim.Y * l.Dim.Z
}

// Index maps x,y,z to the linear LED index.
func (l Layout) Index(x, y, z int) int {
	l = l.normalized()
	xx, yy := x, y
	if l.Order.XFlipEveryRow && y%2 == 1 {
		xx = l.Dim.X - 1 - x
	}
	if l.Order.YFlipEveryPanel && z%2 == 1 {
		yy = l.Dim.Y - 1 - y
	}
	return z*l.Dim.X*l.Dim.Y + yy*l.Dim.X + xx
}

// Map writes f in strip order as packed RGB into dst, growing it if
// needed, and returns it. f is resized when it does not fit the layout.
func (l Layout) Map(f *frame.Frame, dst []byte) []byte {
	l = l.normalized()
	n := l.Count() * 3
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	w, h := l.FrameSize()
	if f.Width != w || f.Height != h {
		f = frame.Resize(f, w, h)
	}
	for z := 0; z < l.Dim.Z; z++ {
		for y := 0; y < l.Dim.Y; y++ {
			for x := 0; x < l.Dim.X; x++ {
				r, g, b := f.RGBAt(x, z*l.Dim.Y+y)
				i := l.Index(x, y, z) * 3
				dst[i], dst[i+1], dst[i+2] = r, g, b
			}
		}
	}
	return dst
}
