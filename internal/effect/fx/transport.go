package fx

import (
	"sync"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

var transportSchema = effect.Schema{
	{Name: "in", Kind: effect.Int, Min: 0, Max: 1 << 20, Default: 0},
	// -1 means the last frame of the source
	{Name: "out", Kind: effect.Int, Min: -1, Max: 1 << 20, Default: -1},
	{Name: "speed", Kind: effect.Int, Min: 1, Max: 16, Default: 1},
	{Name: "loop", Kind: effect.Bool, Default: true},
}

// Transport trims a seekable source to [in,out], steps it by speed frames
// per tick and either loops inside the range or lets the source end at out.
// Without a bound timeline it passes frames through.
type Transport struct {
	*effect.Params

	mu sync.Mutex
	tl effect.Timeline
}

func NewTransport() *Transport { return &Transport{Params: effect.NewParams(transportSchema)} }

func (t *Transport) ID() string { return "transport" }

// BindTimeline seeks the source to the in point.
func (t *Transport) BindTimeline(tl effect.Timeline) {
	t.mu.Lock()
	t.tl = tl
	t.mu.Unlock()
	if tl != nil {
		in, _ := t.bounds(tl)
		if tl.Position() < in {
			tl.Seek(in)
		}
	}
}

func (t *Transport) UpdateParameter(name string, value any) error {
	if err := t.Params.UpdateParameter(name, value); err != nil {
		return err
	}
	if name == "in" {
		t.mu.Lock()
		tl := t.tl
		t.mu.Unlock()
		if tl != nil {
			in, _ := t.bounds(tl)
			tl.Seek(in)
		}
	}
	return nil
}

func (t *Transport) bounds(tl effect.Timeline) (in, out int) {
	last := tl.FrameCount() - 1
	in, out = t.Int("in"), t.Int("out")
	if out < 0 || out > last {
		out = last
	}
	if in > out {
		in = out
	}
	if in < 0 {
		in = 0
	}
	return in, out
}

// Process leaves the frame untouched and moves the timeline so the next
// NextFrame call lands where the transport wants it.
func (t *Transport) Process(f *frame.Frame, ctx effect.Context) (*frame.Frame, error) {
	t.mu.Lock()
	tl := t.tl
	t.mu.Unlock()
	if tl == nil {
		tl = ctx.Timeline
	}
	if tl == nil || tl.FrameCount() <= 0 {
		return f, nil
	}
	in, out := t.bounds(tl)
	next := tl.Position() + t.Int("speed") - 1
	switch {
	case next > out && t.Bool("loop"):
		tl.Seek(in)
	case next > out:
		tl.Seek(tl.FrameCount())
	case next < in:
		tl.Seek(in)
	case next != tl.Position():
		tl.Seek(next)
	}
	return f, nil
}
