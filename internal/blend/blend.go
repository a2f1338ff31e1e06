package blend

import "github.com/coreman2200/arcaluminis-show/internal/frame"

// Func is the compositing contract the layer stack depends on.
type Func func(base, overlay *frame.Frame, mode Mode, opacity float64) *frame.Frame

// ClampOpacity clamps a percentage into [0,100].
func ClampOpacity(opacity float64) float64 {
	if opacity < 0 || opacity != opacity {
		return 0
	}
	if opacity > 100 {
		return 100
	}
	return opacity
}

// Blend composites overlay onto base. base must be RGB; overlay may carry alpha.
// opacity is a percentage in [0,100]. The result is a new frame except on the
// normal/100% fast path, where overlay itself is returned.
func Blend(base, overlay *frame.Frame, mode Mode, opacity float64) *frame.Frame {
	if overlay == nil {
		return base
	}
	if base == nil {
		return overlay.ToRGB()
	}
	opacity = ClampOpacity(opacity)
	base = base.ToRGB()

	if mode == Normal && !overlay.HasAlpha() && base.SameSize(overlay) {
		if opacity >= 100 {
			return overlay
		}
		return weighted8(base, overlay, opacity)
	}

	if !base.SameSize(overlay) {
		overlay = frame.Resize(overlay, base.Width, base.Height)
	}
	ov, alpha := overlay.SplitAlpha()
	if mode == Mask {
		return mask(base, ov)
	}
	return mixFloat(base, ov, alpha, mode, float32(opacity/100))
}

// weighted8 is the integer crossfade used for normal mode below full opacity.
func weighted8(base, overlay *frame.Frame, opacity float64) *frame.Frame {
	w := uint32(opacity*255/100 + 0.5)
	iw := 255 - w
	out := frame.New(base.Width, base.Height, frame.RGB)
	for i := range out.Pix {
		out.Pix[i] = uint8((uint32(base.Pix[i])*iw + uint32(overlay.Pix[i])*w + 127) / 255)
	}
	return out
}

func mask(base, overlay *frame.Frame) *frame.Frame {
	out := frame.New(base.Width, base.Height, frame.RGB)
	for p := 0; p < len(base.Pix); p += 3 {
		lum := (0.299*float32(overlay.Pix[p]) + 0.587*float32(overlay.Pix[p+1]) + 0.114*float32(overlay.Pix[p+2])) / 255
		out.Pix[p] = to8(float32(base.Pix[p]) / 255 * lum)
		out.Pix[p+1] = to8(float32(base.Pix[p+1]) / 255 * lum)
		out.Pix[p+2] = to8(float32(base.Pix[p+2]) / 255 * lum)
	}
	return out
}

func mixFloat(base, overlay *frame.Frame, alpha []float32, mode Mode, op float32) *frame.Frame {
	fn := modeFunc(mode)
	out := frame.New(base.Width, base.Height, frame.RGB)
	for i := range base.Pix {
		b := float32(base.Pix[i]) / 255
		o := float32(overlay.Pix[i]) / 255
		r := fn(b, o)
		r = b*(1-op) + r*op
		if alpha != nil {
			a := alpha[i/3]
			r = b*(1-a) + r*a
		}
		out.Pix[i] = to8(r)
	}
	return out
}

func modeFunc(m Mode) func(b, o float32) float32 {
	switch m {
	case Multiply:
		return func(b, o float32) float32 { return b * o }
	case Screen:
		return func(b, o float32) float32 { return 1 - (1-b)*(1-o) }
	case Add:
		return func(b, o float32) float32 {
			if s := b + o; s < 1 {
				return s
			}
			return 1
		}
	case Subtract:
		return func(b, o float32) float32 {
			if d := b - o; d > 0 {
				return d
			}
			return 0
		}
	case Overlay:
		return func(b, o float32) float32 {
			if b < 0.5 {
				return 2 * b * o
			}
			return 1 - 2*(1-b)*(1-o)
		}
	default:
		return func(_, o float32) float32 { return o }
	}
}

func to8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
