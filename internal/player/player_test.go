package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/effect/fx"
	"github.com/coreman2200/arcaluminis-show/internal/frame"
	"github.com/coreman2200/arcaluminis-show/internal/playlist"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
	"github.com/coreman2200/arcaluminis-show/internal/source"
)

const canvas = 4

// gate blocks NextFrame until release is closed.
type gate struct {
	entered chan struct{}
	release chan struct{}
	f       *frame.Frame
}

func (g *gate) Initialize() error { return nil }
func (g *gate) Name() string      { return "gate" }
func (g *gate) Reset()            {}
func (g *gate) Cleanup()          {}
func (g *gate) NextFrame() (*frame.Frame, time.Duration) {
	g.entered <- struct{}{}
	<-g.release
	return g.f, 10 * time.Millisecond
}

// testSources registers "seq": n frames whose grey level is value+i.
func testSources(g *gate) *source.Registry {
	r := source.NewRegistry()
	r.Register("seq", func(s source.Spec) (source.Source, error) {
		n := s.Int("frames", 3)
		v := s.Int("value", 0)
		w, h := s.Width, s.Height
		if sz := s.Int("size", 0); sz > 0 {
			w, h = sz, sz
		}
		fs := make([]*frame.Frame, n)
		for i := range fs {
			c := uint8(v + i)
			fs[i] = frame.Solid(w, h, c, c, c)
		}
		return source.NewSequenceFrames(fs, 10*time.Millisecond), nil
	})
	if g != nil {
		r.Register("gate", func(source.Spec) (source.Source, error) { return g, nil })
	}
	return r
}

func seqClip(id string, frames, value int) registry.Clip {
	return registry.Clip{ID: id, Layers: []registry.LayerDef{{
		SourceType: "seq",
		Params:     map[string]any{"frames": frames, "value": value},
	}}}
}

type recorder struct {
	mu     sync.Mutex
	frames []*frame.Frame
}

func (r *recorder) Publish(f *frame.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type fixture struct {
	p       *Player
	list    *playlist.Playlist
	out     *recorder
	plugins *effect.Registry
}

func newFixture(t *testing.T, g *gate, loopLimit int, list *playlist.Playlist, clips ...registry.Clip) fixture {
	t.Helper()
	cat, err := registry.NewMemory(clips...)
	require.NoError(t, err)
	plugins := effect.NewRegistry()
	require.NoError(t, fx.RegisterAll(plugins))
	b := &StackBuilder{Catalog: cat, Sources: testSources(g), Plugins: plugins, Log: zerolog.Nop()}
	out := &recorder{}
	p := New(Config{ID: "video", Width: canvas, Height: canvas, FPS: 100, LoopLimit: loopLimit},
		list, b, plugins, zerolog.Nop(), WithConsumer(out))
	t.Cleanup(p.Close)
	return fixture{p: p, list: list, out: out, plugins: plugins}
}

func level(f *frame.Frame) int { return int(f.Pix[0]) }

func tickLevels(p *Player, n int) []int {
	out := make([]int, n)
	for i := range out {
		f, _ := p.Tick()
		out[i] = level(f)
	}
	return out
}

func TestStoppedPlayerShowsBlack(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a"}, true, false), seqClip("a", 2, 10))
	f, _ := h.p.Tick()
	require.NotNil(t, f)
	assert.Equal(t, canvas, f.Width)
	assert.Equal(t, 0, level(f))
	assert.Equal(t, -1, h.list.Cursor(), "tick must not load anything")
	assert.Equal(t, 0, h.out.count())
}

func TestPlayLoadsFirstClip(t *testing.T) {
	h := newFixture(t, nil, -1, playlist.New([]string{"a", "b"}, true, false), seqClip("a", 2, 10), seqClip("b", 2, 20))
	require.NoError(t, h.p.Play(context.Background()))
	assert.Equal(t, Playing, h.p.State())
	assert.Equal(t, 0, h.list.Cursor())

	f, d := h.p.Tick()
	assert.Equal(t, 10, level(f))
	assert.Equal(t, 10*time.Millisecond, d)
	assert.Equal(t, 1, h.out.count())
}

func TestPlayEmptyPlaylist(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New(nil, true, false))
	assert.ErrorIs(t, h.p.Play(context.Background()), ErrEmptyPlaylist)
	assert.Equal(t, Stopped, h.p.State())
}

func TestLoopLimitThenAdvanceThenHold(t *testing.T) {
	h := newFixture(t, nil, 1, playlist.New([]string{"a", "b"}, true, false), seqClip("a", 2, 10), seqClip("b", 2, 20))
	var changes []string
	h.p.OnClipChanged(func(_ string, _ int, clip string) { changes = append(changes, clip) })
	require.NoError(t, h.p.Play(context.Background()))

	// a twice (one restart), then b twice
	assert.Equal(t, []int{10, 11, 10, 11, 20, 21, 20, 21}, tickLevels(h.p, 8))
	assert.Equal(t, Playing, h.p.State())

	// b is out of loops and there is nothing after it
	f, _ := h.p.Tick()
	assert.Equal(t, 21, level(f), "last frame is held")
	assert.Equal(t, Stopped, h.p.State())
	assert.Equal(t, 1, h.list.Cursor())
	assert.Equal(t, []string{"a", "b"}, changes)

	f, _ = h.p.Tick()
	assert.Equal(t, 21, level(f))

	// play again restarts the held clip
	require.NoError(t, h.p.Play(context.Background()))
	f, _ = h.p.Tick()
	assert.Equal(t, 20, level(f))
}

func TestAutoplayOffStopsAtEnd(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a", "b"}, false, true), seqClip("a", 2, 10), seqClip("b", 2, 20))
	require.NoError(t, h.p.Play(context.Background()))
	assert.Equal(t, []int{10, 11, 11}, tickLevels(h.p, 3))
	assert.Equal(t, Stopped, h.p.State())
	assert.Equal(t, 0, h.list.Cursor())
}

func TestLoopForever(t *testing.T) {
	h := newFixture(t, nil, -1, playlist.New([]string{"a", "b"}, true, true), seqClip("a", 3, 10), seqClip("b", 2, 20))
	require.NoError(t, h.p.Play(context.Background()))
	levels := tickLevels(h.p, 30)
	for _, l := range levels {
		assert.GreaterOrEqual(t, l, 10)
		assert.LessOrEqual(t, l, 12)
	}
	assert.Equal(t, 0, h.list.Cursor())
	assert.Equal(t, Playing, h.p.State())
}

func TestSingleItemLoopingPlaylistRewinds(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a"}, true, true), seqClip("a", 2, 10))
	loads := 0
	h.p.OnClipChanged(func(string, int, string) { loads++ })
	require.NoError(t, h.p.Play(context.Background()))
	assert.Equal(t, []int{10, 11, 10, 11, 10}, tickLevels(h.p, 5))
	assert.Equal(t, 1, loads, "no rebuild for the same clip")
}

func TestPlaylistWrapsWhenLooping(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a", "b"}, true, true), seqClip("a", 1, 10), seqClip("b", 1, 20))
	require.NoError(t, h.p.Play(context.Background()))
	assert.Equal(t, []int{10, 20, 10, 20}, tickLevels(h.p, 4))
}

func TestStopKeepsCursorAndPosition(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a", "b"}, true, false), seqClip("a", 3, 10), seqClip("b", 3, 20))
	ctx := context.Background()
	require.NoError(t, h.p.Next(ctx))
	require.NoError(t, h.p.Play(ctx))
	f0, _ := h.p.Tick()
	assert.Equal(t, 10, level(f0))

	h.p.Stop()
	held, _ := h.p.Tick()
	assert.Same(t, f0, held)
	assert.Equal(t, 0, h.list.Cursor())

	require.NoError(t, h.p.Play(ctx))
	f, _ := h.p.Tick()
	assert.Equal(t, 11, level(f), "stop is not rewind")

	require.NoError(t, h.p.Restart(ctx))
	f, _ = h.p.Tick()
	assert.Equal(t, 10, level(f))
}

func TestPauseHoldsFrame(t *testing.T) {
	h := newFixture(t, nil, -1, playlist.New([]string{"a"}, true, false), seqClip("a", 3, 10))
	require.NoError(t, h.p.Play(context.Background()))
	h.p.Tick()
	h.p.Pause()
	assert.Equal(t, Paused, h.p.State())
	assert.Equal(t, []int{10, 10}, tickLevels(h.p, 2))
	require.NoError(t, h.p.Play(context.Background()))
	assert.Equal(t, []int{11}, tickLevels(h.p, 1))
}

func TestStopDiscardsInFlightTick(t *testing.T) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{}), f: frame.Solid(canvas, canvas, 200, 200, 200)}
	clip := registry.Clip{ID: "g", Layers: []registry.LayerDef{{SourceType: "gate"}}}
	h := newFixture(t, g, -1, playlist.New([]string{"g"}, true, false), clip)
	require.NoError(t, h.p.Play(context.Background()))

	done := make(chan *frame.Frame)
	go func() {
		f, _ := h.p.Tick()
		done <- f
	}()
	<-g.entered
	h.p.Stop()
	close(g.release)

	f := <-done
	assert.Equal(t, 0, level(f), "raced frame must not be shown")
	assert.Equal(t, 0, level(h.p.LastFrame()))
	assert.Equal(t, 0, h.out.count())
	assert.Equal(t, Stopped, h.p.State())
}

func TestJumpDuringFinalPullKeepsTarget(t *testing.T) {
	// the gate source has no frames: its in-flight pull ends the old clip
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	gated := registry.Clip{ID: "g", Layers: []registry.LayerDef{{SourceType: "gate"}}}
	h := newFixture(t, g, 0, playlist.New([]string{"g", "a", "b"}, true, false),
		gated, seqClip("a", 2, 20), seqClip("b", 2, 30))
	ctx := context.Background()
	require.NoError(t, h.p.Play(ctx))

	done := make(chan *frame.Frame)
	go func() {
		f, _ := h.p.Tick()
		done <- f
	}()
	<-g.entered
	require.NoError(t, h.p.Jump(ctx, 1))
	close(g.release)
	<-done

	assert.Equal(t, 1, h.list.Cursor(), "end of the replaced clip must not advance")
	assert.Equal(t, Playing, h.p.State())
	assert.Equal(t, []int{20, 21}, tickLevels(h.p, 2))
}

func TestNavigation(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a", "b", "c"}, true, false),
		seqClip("a", 2, 10), seqClip("b", 2, 20), seqClip("c", 2, 30))
	ctx := context.Background()

	require.NoError(t, h.p.Jump(ctx, 2))
	assert.Equal(t, Playing, h.p.State())
	assert.Equal(t, 30, level(first(h.p)))
	assert.ErrorIs(t, h.p.Next(ctx), ErrNoClip)

	require.NoError(t, h.p.Previous(ctx))
	assert.Equal(t, 1, h.list.Cursor())
	assert.Equal(t, 20, level(first(h.p)))

	assert.ErrorIs(t, h.p.Jump(ctx, 7), playlist.ErrOutOfRange)
	assert.Equal(t, 1, h.list.Cursor())
}

func first(p *Player) *frame.Frame {
	f, _ := p.Tick()
	return f
}

func TestLoadMissingClipLeavesState(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a", "ghost"}, true, false), seqClip("a", 2, 10))
	ctx := context.Background()
	require.NoError(t, h.p.Play(ctx))
	err := h.p.Load(ctx, 1)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Equal(t, 0, h.list.Cursor())
	assert.Equal(t, 10, level(first(h.p)))
}

func TestAdvanceToMissingClipHolds(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a", "ghost"}, true, false), seqClip("a", 1, 10))
	require.NoError(t, h.p.Play(context.Background()))
	assert.Equal(t, []int{10, 10}, tickLevels(h.p, 2))
	assert.Equal(t, Stopped, h.p.State())
}

func TestUnknownSourceRendersBlack(t *testing.T) {
	clip := registry.Clip{ID: "x", Layers: []registry.LayerDef{{SourceType: "nope"}}}
	h := newFixture(t, nil, -1, playlist.New([]string{"x"}, true, false), clip)
	require.NoError(t, h.p.Play(context.Background()))
	f := first(h.p)
	require.NotNil(t, f)
	assert.Equal(t, 0, level(f))
	assert.Equal(t, "black", h.p.Layers().Base().Source().Name())
}

func TestShowBlackAndResume(t *testing.T) {
	h := newFixture(t, nil, -1, playlist.New([]string{"a"}, true, false), seqClip("a", 3, 10))
	require.NoError(t, h.p.Play(context.Background()))
	h.p.Tick()

	h.p.ShowBlack()
	assert.Equal(t, Stopped, h.p.State())
	assert.True(t, h.p.AutoStopped())
	assert.Equal(t, 0, level(h.p.LastFrame()))
	assert.Equal(t, canvas, h.p.LastFrame().Width)
	assert.Equal(t, 2, h.out.count(), "black is pushed to the outputs")

	h.p.ResumeAfterSync()
	assert.Equal(t, Playing, h.p.State())
	assert.False(t, h.p.AutoStopped())
}

func TestShowBlackDoesNotResumeUserStop(t *testing.T) {
	h := newFixture(t, nil, -1, playlist.New([]string{"a"}, true, false), seqClip("a", 3, 10))
	require.NoError(t, h.p.Play(context.Background()))
	h.p.Stop()
	h.p.ShowBlack()
	h.p.ResumeAfterSync()
	assert.Equal(t, Stopped, h.p.State())
}

func TestSlaveLoopsInsteadOfAdvancing(t *testing.T) {
	h := newFixture(t, nil, 0, playlist.New([]string{"a", "b"}, true, true), seqClip("a", 2, 10), seqClip("b", 2, 20))
	h.p.SetSlave(true)
	require.NoError(t, h.p.Play(context.Background()))
	assert.Equal(t, []int{10, 11, 10, 11, 10}, tickLevels(h.p, 5))
	assert.Equal(t, 0, h.list.Cursor())
}

func TestGlobalChainAndCanvasResize(t *testing.T) {
	clip := registry.Clip{ID: "small", Layers: []registry.LayerDef{{
		SourceType: "seq",
		Params:     map[string]any{"frames": 1, "value": 10, "size": 2},
	}}}
	h := newFixture(t, nil, -1, playlist.New([]string{"small"}, true, false), clip)
	_, err := h.p.Global().Add("invert", nil)
	require.NoError(t, err)
	require.NoError(t, h.p.Play(context.Background()))

	f := first(h.p)
	assert.Equal(t, canvas, f.Width)
	assert.Equal(t, canvas, f.Height)
	assert.Equal(t, frame.RGB, f.Channels)
	assert.InDelta(t, 245, level(f), 1)
}

func TestClipEffectsRunBeforeLayerEffects(t *testing.T) {
	clip := seqClip("a", 1, 100)
	clip.Effects = []effect.Spec{{PluginID: "brightness", Params: map[string]any{"level": 0.5}}}
	clip.Layers[0].Effects = []effect.Spec{{PluginID: "invert"}}
	h := newFixture(t, nil, -1, playlist.New([]string{"a"}, true, false), clip)
	require.NoError(t, h.p.Play(context.Background()))

	entries := h.p.Layers().Base().Effects.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "brightness", entries[0].PluginID)
	assert.Equal(t, "invert", entries[1].PluginID)
	assert.Equal(t, 205, level(first(h.p)))
}

func TestPlaylistOverride(t *testing.T) {
	clip := seqClip("a", 1, 100)
	clip.Effects = []effect.Spec{{PluginID: "invert"}}
	list := playlist.New([]string{"a"}, true, false)
	require.NoError(t, list.SetOverride("a", playlist.Override{
		Effects: []effect.Spec{},
		Params:  map[string]any{"value": 40},
	}))
	h := newFixture(t, nil, -1, list, clip)
	require.NoError(t, h.p.Play(context.Background()))
	assert.Equal(t, 40, level(first(h.p)))
	assert.Equal(t, 0, h.p.Layers().Base().Effects.Len())
}

func TestEffectInstancesNotShared(t *testing.T) {
	clip := seqClip("a", 1, 100)
	clip.Layers[0].Effects = []effect.Spec{{PluginID: "brightness", Params: map[string]any{"level": 1.0}}}
	list := playlist.New([]string{"a"}, true, false)
	one := newFixture(t, nil, -1, list, clip)
	two := newFixture(t, nil, -1, playlist.New([]string{"a"}, true, false), clip)
	ctx := context.Background()
	require.NoError(t, one.p.Play(ctx))
	require.NoError(t, two.p.Play(ctx))

	require.NoError(t, one.p.Layers().Base().Effects.UpdateParameter(0, "level", 0.5))
	assert.Equal(t, 50, level(first(one.p)))
	assert.Equal(t, 100, level(first(two.p)))
}

func TestLiveParameters(t *testing.T) {
	clip := seqClip("a", 2, 10)
	clip.Layers = append(clip.Layers, registry.LayerDef{SourceType: "seq", Opacity: ptr(30.0),
		Effects: []effect.Spec{{PluginID: "brightness", Params: map[string]any{"level": 2.0}}}})
	h := newFixture(t, nil, -1, playlist.New([]string{"a"}, true, false), clip)
	_, err := h.p.Global().Add("tint", map[string]any{"amount": 0.5})
	require.NoError(t, err)
	require.NoError(t, h.p.Play(context.Background()))

	snap := h.p.LiveParameters()
	assert.Equal(t, "video", snap.PlayerID)
	assert.Equal(t, "a", snap.ClipID)
	assert.Equal(t, 0, snap.Cursor)
	require.Len(t, snap.Global, 1)
	assert.Equal(t, 0.5, snap.Global[0].Params["amount"])
	require.Len(t, snap.Layers, 2)
	assert.Equal(t, 30.0, snap.Layers[1].Opacity)
	require.Len(t, snap.Layers[1].Effects, 1)
	assert.Equal(t, 2.0, snap.Layers[1].Effects[0].Params["level"])

	st := h.p.Status()
	assert.Equal(t, Playing, st.State)
	assert.Equal(t, "a", st.ClipID)
	assert.Len(t, st.Layers, 2)
}

func ptr[T any](v T) *T { return &v }

func TestRunPublishesFrames(t *testing.T) {
	h := newFixture(t, nil, -1, playlist.New([]string{"a"}, true, false), seqClip("a", 5, 10))
	require.NoError(t, h.p.Play(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := h.p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, h.out.count(), 3)
}

func TestStateText(t *testing.T) {
	var s State
	require.NoError(t, s.UnmarshalText([]byte("Paused")))
	assert.Equal(t, Paused, s)
	b, _ := Playing.MarshalText()
	assert.Equal(t, "playing", string(b))
	assert.Error(t, s.UnmarshalText([]byte("rewinding")))
}
