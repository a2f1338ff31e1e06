// Package layer owns the per-timeline layer stack and its compositing tick.
package layer

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/blend"
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/frame"
	"github.com/coreman2200/arcaluminis-show/internal/source"
)

// Layer is one source with its own effect chain and blend settings. The
// layer owns its source: Close cleans it up and nothing else may.
type Layer struct {
	ID      int
	ClipID  string
	Effects *effect.Chain

	src     source.Source
	mode    atomic.Int32
	opacity atomic.Uint64 // float64 bits
	enabled atomic.Bool

	closeOnce sync.Once
}

// Options are the initial blend settings.
type Options struct {
	ClipID  string
	Mode    blend.Mode
	Opacity float64
	Enabled bool
}

func New(id int, src source.Source, chain *effect.Chain, o Options) *Layer {
	l := &Layer{ID: id, ClipID: o.ClipID, Effects: chain, src: src}
	l.SetMode(o.Mode)
	l.SetOpacity(o.Opacity)
	l.SetEnabled(o.Enabled)
	if chain != nil {
		if tl := l.Timeline(); tl != nil {
			chain.Bind(tl)
		}
	}
	return l
}

// Open initializes src. On failure the error is logged and a black source
// of the canvas size stands in, so the layer still renders.
func Open(src source.Source, canvas source.Spec, log zerolog.Logger) source.Source {
	if src == nil {
		return source.NewBlack(canvas)
	}
	if err := src.Initialize(); err != nil {
		log.Warn().Err(err).Str("source", src.Name()).Msg("source failed to start; using black")
		src.Cleanup()
		return source.NewBlack(canvas)
	}
	return src
}

func (l *Layer) Source() source.Source { return l.src }

// rewind restarts the source and lets timeline-aware effects reposition it.
func (l *Layer) rewind() {
	l.src.Reset()
	if l.Effects != nil {
		l.Effects.Rewound()
	}
}

// Timeline returns the source's timeline when it is seekable.
func (l *Layer) Timeline() effect.Timeline {
	if tl, ok := l.src.(effect.Timeline); ok {
		return tl
	}
	return nil
}

func (l *Layer) Mode() blend.Mode { return blend.Mode(l.mode.Load()) }

func (l *Layer) SetMode(m blend.Mode) {
	if !m.Valid() {
		m = blend.Normal
	}
	l.mode.Store(int32(m))
}

func (l *Layer) Opacity() float64 { return math.Float64frombits(l.opacity.Load()) }

func (l *Layer) SetOpacity(v float64) { l.opacity.Store(math.Float64bits(blend.ClampOpacity(v))) }

func (l *Layer) Enabled() bool { return l.enabled.Load() }

func (l *Layer) SetEnabled(v bool) { l.enabled.Store(v) }

// visible is false for layers compositing must skip without pulling a frame.
func (l *Layer) visible() bool { return l.Enabled() && l.Opacity() > 0 }

func (l *Layer) next() (*frame.Frame, time.Duration) { return l.src.NextFrame() }

// Close releases the source. Safe to call more than once.
func (l *Layer) Close() {
	l.closeOnce.Do(func() {
		if l.src != nil {
			l.src.Cleanup()
		}
	})
}

// Info is the read-only view of a layer.
type Info struct {
	ID      int            `json:"id"`
	ClipID  string         `json:"clip_id,omitempty"`
	Source  string         `json:"source"`
	Mode    blend.Mode     `json:"blend_mode"`
	Opacity float64        `json:"opacity"`
	Enabled bool           `json:"enabled"`
	Effects []effect.Entry `json:"effects"`
}

func (l *Layer) Info() Info {
	in := Info{
		ID:      l.ID,
		ClipID:  l.ClipID,
		Mode:    l.Mode(),
		Opacity: l.Opacity(),
		Enabled: l.Enabled(),
	}
	if l.src != nil {
		in.Source = l.src.Name()
	}
	if l.Effects != nil {
		in.Effects = l.Effects.Entries()
	}
	return in
}
