package fx

import (
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

var mirrorSchema = effect.Schema{
	{Name: "axis", Kind: effect.Enum, Options: []string{"horizontal", "vertical"}, Default: "horizontal"},
}

// Mirror copies the left half onto the right (horizontal) or the top half
// onto the bottom (vertical).
type Mirror struct{ *effect.Params }

func NewMirror() *Mirror { return &Mirror{Params: effect.NewParams(mirrorSchema)} }

func (m *Mirror) ID() string { return "mirror" }

func (m *Mirror) Process(f *frame.Frame, _ effect.Context) (*frame.Frame, error) {
	out := f.Clone()
	ch := f.Channels
	stride := f.Width * ch
	if m.String("axis") == "vertical" {
		for y := f.Height / 2; y < f.Height; y++ {
			src := f.Height - 1 - y
			copy(out.Pix[y*stride:(y+1)*stride], f.Pix[src*stride:(src+1)*stride])
		}
		return out, nil
	}
	for y := 0; y < f.Height; y++ {
		row := y * stride
		for x := f.Width / 2; x < f.Width; x++ {
			src := f.Width - 1 - x
			copy(out.Pix[row+x*ch:row+(x+1)*ch], f.Pix[row+src*ch:row+(src+1)*ch])
		}
	}
	return out, nil
}
