package frame

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

// Channel layouts understood by the compositor.
const (
	RGB  = 3
	RGBA = 4
)

// Frame is a packed 8-bit raster, row-major, Channels bytes per pixel.
// Frames passed between sources, effects and the compositor are read-only;
// anything that changes pixels returns a new Frame.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

var ErrInvalidSize = errors.New("frame: invalid size")

// New allocates a zeroed frame.
func New(w, h, channels int) *Frame {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	if channels != RGBA {
		channels = RGB
	}
	return &Frame{Width: w, Height: h, Channels: channels, Pix: make([]byte, w*h*channels)}
}

// Black returns an all-black RGB frame.
func Black(w, h int) *Frame { return New(w, h, RGB) }

// Solid returns an RGB frame filled with one colour.
func Solid(w, h int, r, g, b uint8) *Frame {
	f := New(w, h, RGB)
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
	}
	return f
}

func (f *Frame) HasAlpha() bool { return f != nil && f.Channels == RGBA }

// Pixels is the pixel count.
func (f *Frame) Pixels() int { return f.Width * f.Height }

// SameSize reports whether both frames share width and height.
func (f *Frame) SameSize(o *Frame) bool {
	return f != nil && o != nil && f.Width == o.Width && f.Height == o.Height
}

// Valid checks that Pix matches the declared geometry.
func (f *Frame) Valid() error {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return ErrInvalidSize
	}
	if f.Channels != RGB && f.Channels != RGBA {
		return ErrInvalidSize
	}
	if len(f.Pix) != f.Width*f.Height*f.Channels {
		return ErrInvalidSize
	}
	return nil
}

func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{Width: f.Width, Height: f.Height, Channels: f.Channels, Pix: make([]byte, len(f.Pix))}
	copy(out.Pix, f.Pix)
	return out
}

// Equal compares geometry and pixels.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if f.Width != o.Width || f.Height != o.Height || f.Channels != o.Channels {
		return false
	}
	for i := range f.Pix {
		if f.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// RGBAt returns the colour channels of pixel (x,y).
func (f *Frame) RGBAt(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * f.Channels
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

func (f *Frame) SetRGB(x, y int, r, g, b uint8) {
	i := (y*f.Width + x) * f.Channels
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
	if f.Channels == RGBA {
		f.Pix[i+3] = 255
	}
}

// ToRGB drops the alpha plane. RGB frames are returned as-is.
func (f *Frame) ToRGB() *Frame {
	if f == nil || f.Channels == RGB {
		return f
	}
	out := New(f.Width, f.Height, RGB)
	for p, q := 0, 0; p < len(f.Pix); p, q = p+4, q+3 {
		out.Pix[q], out.Pix[q+1], out.Pix[q+2] = f.Pix[p], f.Pix[p+1], f.Pix[p+2]
	}
	return out
}

// SplitAlpha returns the RGB part and the alpha plane normalised to [0,1].
// alpha is nil for RGB frames.
func (f *Frame) SplitAlpha() (*Frame, []float32) {
	if f.Channels != RGBA {
		return f, nil
	}
	alpha := make([]float32, f.Pixels())
	for i := range alpha {
		alpha[i] = float32(f.Pix[i*4+3]) / 255
	}
	return f.ToRGB(), alpha
}

// NRGBA converts to a standard library image; RGB frames become opaque.
func (f *Frame) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	if f.Channels == RGBA {
		copy(img.Pix, f.Pix)
		return img
	}
	for p, q := 0, 0; p < len(f.Pix); p, q = p+3, q+4 {
		img.Pix[q], img.Pix[q+1], img.Pix[q+2], img.Pix[q+3] = f.Pix[p], f.Pix[p+1], f.Pix[p+2], 255
	}
	return img
}

// FromImage converts any image. Images with non-opaque pixels keep an alpha channel.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	opaque := true
	for i := 3; i < len(nrgba.Pix); i += 4 {
		if nrgba.Pix[i] != 255 {
			opaque = false
			break
		}
	}
	w, h := b.Dx(), b.Dy()
	if !opaque {
		f := New(w, h, RGBA)
		for y := 0; y < h; y++ {
			copy(f.Pix[y*w*4:(y+1)*w*4], nrgba.Pix[y*nrgba.Stride:y*nrgba.Stride+w*4])
		}
		return f
	}
	f := New(w, h, RGB)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < w; x++ {
			q := (y*w + x) * 3
			f.Pix[q], f.Pix[q+1], f.Pix[q+2] = row[x*4], row[x*4+1], row[x*4+2]
		}
	}
	return f
}

// Resize scales f to w x h with bilinear interpolation, keeping the channel layout.
func Resize(f *Frame, w, h int) *Frame {
	if f == nil || (f.Width == w && f.Height == h) {
		return f
	}
	if w <= 0 || h <= 0 || f.Width == 0 || f.Height == 0 {
		return New(w, h, f.Channels)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), f.NRGBA(), image.Rect(0, 0, f.Width, f.Height), draw.Src, nil)
	out := New(w, h, f.Channels)
	if f.Channels == RGBA {
		copy(out.Pix, dst.Pix)
		return out
	}
	for p, q := 0, 0; q < len(dst.Pix); p, q = p+3, q+4 {
		out.Pix[p], out.Pix[p+1], out.Pix[p+2] = dst.Pix[q], dst.Pix[q+1], dst.Pix[q+2]
	}
	return out
}
