package fx

import (
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

var brightnessSchema = effect.Schema{
	{Name: "level", Kind: effect.Float, Min: 0, Max: 4, Default: 1.0},
}

// Brightness multiplies every channel by level.
type Brightness struct{ *effect.Params }

func NewBrightness() *Brightness { return &Brightness{Params: effect.NewParams(brightnessSchema)} }

func (b *Brightness) ID() string { return "brightness" }

func (b *Brightness) Process(f *frame.Frame, _ effect.Context) (*frame.Frame, error) {
	level := b.Float("level")
	if level == 1 {
		return f, nil
	}
	out := f.Clone()
	for i, v := range f.Pix {
		if f.Channels == frame.RGBA && i%4 == 3 {
			continue
		}
		out.Pix[i] = scale8(v, level)
	}
	return out, nil
}

// Invert negates colour channels; alpha is kept.
type Invert struct{ *effect.Params }

func NewInvert() *Invert { return &Invert{Params: effect.NewParams(nil)} }

func (v *Invert) ID() string { return "invert" }

func (v *Invert) Process(f *frame.Frame, _ effect.Context) (*frame.Frame, error) {
	out := f.Clone()
	for i, p := range f.Pix {
		if f.Channels == frame.RGBA && i%4 == 3 {
			continue
		}
		out.Pix[i] = 255 - p
	}
	return out, nil
}

var tintSchema = effect.Schema{
	{Name: "r", Kind: effect.Int, Min: 0, Max: 255, Default: 255},
	{Name: "g", Kind: effect.Int, Min: 0, Max: 255, Default: 255},
	{Name: "b", Kind: effect.Int, Min: 0, Max: 255, Default: 255},
	{Name: "amount", Kind: effect.Float, Min: 0, Max: 1, Default: 0.5},
}

// Tint mixes each pixel toward (r,g,b) by amount.
type Tint struct{ *effect.Params }

func NewTint() *Tint { return &Tint{Params: effect.NewParams(tintSchema)} }

func (t *Tint) ID() string { return "tint" }

func (t *Tint) Process(f *frame.Frame, _ effect.Context) (*frame.Frame, error) {
	amt := t.Float("amount")
	if amt <= 0 {
		return f, nil
	}
	target := [3]float64{float64(t.Int("r")), float64(t.Int("g")), float64(t.Int("b"))}
	out := f.Clone()
	ch := f.Channels
	for p := 0; p < len(f.Pix); p += ch {
		for c := 0; c < 3; c++ {
			v := float64(f.Pix[p+c])*(1-amt) + target[c]*amt
			out.Pix[p+c] = uint8(v + 0.5)
		}
	}
	return out, nil
}

func scale8(v uint8, s float64) uint8 {
	x := float64(v)*s + 0.5
	if x >= 255 {
		return 255
	}
	if x <= 0 {
		return 0
	}
	return uint8(x)
}
