package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/blend"
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/frame"
	"github.com/coreman2200/arcaluminis-show/internal/layer"
	"github.com/coreman2200/arcaluminis-show/internal/playlist"
	"github.com/coreman2200/arcaluminis-show/internal/registry"
	"github.com/coreman2200/arcaluminis-show/internal/source"
)

var (
	ErrEmptyPlaylist = errors.New("player: playlist is empty")
	ErrNoClip        = errors.New("player: no clip in that direction")
)

type State int32

const (
	Stopped State = iota
	Playing
	Paused
)

var stateNames = [...]string{"stopped", "playing", "paused"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if strings.EqualFold(string(b), n) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown player state %q", b)
}

// Config is the fixed shape of one timeline.
type Config struct {
	ID     string
	Width  int
	Height int
	FPS    float64
	// LoopLimit is how many times a clip restarts before the end action.
	// -1 loops forever.
	LoopLimit int
}

// Consumer receives every output frame. Publish must not block.
type Consumer interface {
	Publish(f *frame.Frame)
}

// ClipChanged is called after a new clip has been swapped in.
type ClipChanged func(playerID string, index int, clipID string)

type Option func(*Player)

func WithConsumer(c Consumer) Option { return func(p *Player) { p.out = c } }

// WithBlend replaces the blend function used by the layer stack.
func WithBlend(fn blend.Func) Option { return func(p *Player) { p.blendFn = fn } }

// Player is the playback state machine of one timeline. Tick runs on the
// render goroutine; every other method may be called from anywhere.
type Player struct {
	cfg     Config
	log     zerolog.Logger
	builder Builder
	list    *playlist.Playlist
	layers  *layer.Manager
	global  *effect.Chain
	out     Consumer
	blendFn blend.Func

	loadMu sync.Mutex // serializes clip loads

	mu          sync.Mutex
	state       State
	epoch       uint64
	loops       int
	loopLimit   int
	slave       bool
	wantPlay    bool
	autoStopped bool
	endStopped  bool
	clipID      string
	last        *frame.Frame

	ticks  atomic.Uint64
	frames atomic.Uint64

	hookMu sync.Mutex
	hooks  []ClipChanged

	wake chan struct{}
}

// New returns a stopped player showing black. Nothing is loaded until Play
// or Load.
func New(cfg Config, list *playlist.Playlist, b Builder, plugins *effect.Registry, log zerolog.Logger, opts ...Option) *Player {
	if cfg.Width <= 0 {
		cfg.Width = 1
	}
	if cfg.Height <= 0 {
		cfg.Height = 1
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if list == nil {
		list = playlist.New(nil, true, true)
	}
	log = log.With().Str("player", cfg.ID).Logger()
	p := &Player{
		cfg:       cfg,
		log:       log,
		builder:   b,
		list:      list,
		loopLimit: cfg.LoopLimit,
		last:      frame.Black(cfg.Width, cfg.Height),
		wake:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	p.layers = layer.NewManager(cfg.ID, p.blendFn, log)
	p.global = effect.NewChain(plugins, log.With().Str("chain", "global").Logger())
	return p
}

func (p *Player) ID() string                   { return p.cfg.ID }
func (p *Player) Config() Config               { return p.cfg }
func (p *Player) Playlist() *playlist.Playlist { return p.list }
func (p *Player) Layers() *layer.Manager       { return p.layers }
func (p *Player) Global() *effect.Chain        { return p.global }
func (p *Player) PlaylistLen() int             { return p.list.Len() }

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastFrame is the most recent output frame. Never nil.
func (p *Player) LastFrame() *frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Player) SetLoopLimit(n int) {
	if n < -1 {
		n = -1
	}
	p.mu.Lock()
	p.loopLimit = n
	p.mu.Unlock()
}

// SetSlave marks the player as driven by a master. Slaves loop their clip
// instead of advancing.
func (p *Player) SetSlave(v bool) {
	p.mu.Lock()
	p.slave = v
	p.mu.Unlock()
}

func (p *Player) IsSlave() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slave
}

// OnClipChanged registers fn. Hooks run on the goroutine that loaded the
// clip, outside the player's locks.
func (p *Player) OnClipChanged(fn ClipChanged) {
	p.hookMu.Lock()
	p.hooks = append(p.hooks, fn)
	p.hookMu.Unlock()
}

func (p *Player) fire(index int, clipID string) {
	p.hookMu.Lock()
	hooks := make([]ClipChanged, len(p.hooks))
	copy(hooks, p.hooks)
	p.hookMu.Unlock()
	for _, fn := range hooks {
		fn(p.cfg.ID, index, clipID)
	}
}

func (p *Player) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Play starts or resumes playback. With nothing loaded the first playlist
// item is loaded; after the clip ran out the base restarts.
func (p *Player) Play(ctx context.Context) error {
	if p.list.Cursor() < 0 {
		if p.list.Len() == 0 {
			return ErrEmptyPlaylist
		}
		if err := p.Load(ctx, 0); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.wantPlay = true
	p.autoStopped = false
	if p.state == Playing {
		p.mu.Unlock()
		return nil
	}
	rewind := p.endStopped
	p.endStopped = false
	if rewind {
		p.loops = 0
	}
	p.state = Playing
	p.mu.Unlock()
	if rewind {
		p.layers.ResetBase()
	}
	p.log.Debug().Msg("play")
	p.kick()
	return nil
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wantPlay = false
	if p.state == Playing {
		p.state = Paused
		p.epoch++
	}
}

// Stop halts playback. The cursor and the source position stay where they
// are; a tick already in flight is discarded.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wantPlay = false
	p.autoStopped = false
	if p.state != Stopped {
		p.state = Stopped
		p.epoch++
	}
}

// Rewind puts the current clip back on its first frame. The play state is
// left alone.
func (p *Player) Rewind() {
	p.mu.Lock()
	p.loops = 0
	p.endStopped = false
	p.epoch++
	p.mu.Unlock()
	p.layers.ResetBase()
}

// Restart rewinds the current clip and plays it.
func (p *Player) Restart(ctx context.Context) error {
	if p.list.Cursor() >= 0 {
		p.Rewind()
	}
	return p.Play(ctx)
}

// Next loads the following playlist item, wrapping when the playlist loops.
func (p *Player) Next(ctx context.Context) error {
	i := p.list.NextIndex()
	if i < 0 {
		return ErrNoClip
	}
	return p.Load(ctx, i)
}

func (p *Player) Previous(ctx context.Context) error {
	i := p.list.PrevIndex()
	if i < 0 {
		return ErrNoClip
	}
	return p.Load(ctx, i)
}

// Jump loads index and starts playing.
func (p *Player) Jump(ctx context.Context, index int) error {
	if err := p.Load(ctx, index); err != nil {
		return err
	}
	return p.Play(ctx)
}

// Load builds the clip at index and swaps it in. The play state is left
// alone.
func (p *Player) Load(ctx context.Context, index int) error {
	p.loadMu.Lock()
	clipID, err := p.load(ctx, index)
	p.loadMu.Unlock()
	if err != nil {
		return err
	}
	p.fire(index, clipID)
	return nil
}

func (p *Player) load(ctx context.Context, index int) (string, error) {
	clipID, ok := p.list.At(index)
	if !ok {
		return "", fmt.Errorf("%w: %d", playlist.ErrOutOfRange, index)
	}
	req := BuildRequest{
		Manager:  p.layers,
		PlayerID: p.cfg.ID,
		ClipID:   clipID,
		Width:    p.cfg.Width,
		Height:   p.cfg.Height,
		FPS:      p.cfg.FPS,
	}
	if o, ok := p.list.Override(clipID); ok {
		req.Override = &o
	}
	layers, err := p.builder.Build(ctx, req)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", clipID, err)
	}
	if err := p.list.SetCursor(index); err != nil {
		for _, l := range layers {
			l.Close()
		}
		return "", err
	}
	gen := p.layers.Replace(layers)

	p.mu.Lock()
	p.clipID = clipID
	p.loops = 0
	p.endStopped = false
	p.mu.Unlock()
	p.log.Info().Int("index", index).Str("clip", clipID).Uint64("gen", gen).Int("layers", len(layers)).Msg("clip loaded")
	return clipID, nil
}

// ShowBlack stops the player and outputs black at canvas size. The player
// remembers whether playback was wanted so ResumeAfterSync can pick it up.
func (p *Player) ShowBlack() {
	black := frame.Black(p.cfg.Width, p.cfg.Height)
	p.mu.Lock()
	p.autoStopped = true
	if p.state != Stopped {
		p.state = Stopped
		p.epoch++
	}
	p.last = black
	p.mu.Unlock()
	if p.out != nil {
		p.out.Publish(black)
	}
}

// ResumeAfterSync restarts a player that ShowBlack stopped, if playback had
// been wanted.
func (p *Player) ResumeAfterSync() {
	p.mu.Lock()
	resume := p.autoStopped && p.wantPlay
	p.autoStopped = false
	if resume {
		p.state = Playing
	}
	p.mu.Unlock()
	if resume {
		p.kick()
	}
}

func (p *Player) AutoStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoStopped
}

// Tick produces one output frame and the delay until the next one. While
// not playing it returns the last frame without touching any source.
func (p *Player) Tick() (*frame.Frame, time.Duration) {
	return p.tick(true)
}

func (p *Player) tick(retry bool) (*frame.Frame, time.Duration) {
	p.ticks.Add(1)
	p.mu.Lock()
	if p.state != Playing {
		f := p.last
		p.mu.Unlock()
		return f, 0
	}
	epoch := p.epoch
	p.mu.Unlock()

	res := p.layers.Composite()
	var out *frame.Frame
	if res.Frame != nil {
		out = p.finish(res.Frame)
	}

	p.mu.Lock()
	if p.epoch != epoch || p.state != Playing {
		// stopped while the frame was being made
		f := p.last
		p.mu.Unlock()
		return f, 0
	}
	if res.Empty {
		f := p.last
		p.mu.Unlock()
		return f, 0
	}
	if res.End {
		p.mu.Unlock()
		if p.onEnd(epoch, res.Gen) && retry {
			return p.tick(false)
		}
		return p.LastFrame(), 0
	}
	p.last = out
	p.mu.Unlock()

	p.frames.Add(1)
	if p.out != nil {
		p.out.Publish(out)
	}
	return out, res.Delay
}

// finish runs the global chain and shapes the frame for the outputs.
func (p *Player) finish(f *frame.Frame) *frame.Frame {
	f = p.global.Apply(f, effect.Context{PlayerID: p.cfg.ID, Tick: p.ticks.Load()})
	f = f.ToRGB()
	if f.Width != p.cfg.Width || f.Height != p.cfg.Height {
		f = frame.Resize(f, p.cfg.Width, p.cfg.Height)
	}
	return f
}

// onEnd handles the base layer of stack gen running out. It reports
// whether there is something new to show. An end reported by a stack that
// has since been replaced is ignored.
func (p *Player) onEnd(epoch, gen uint64) bool {
	p.loadMu.Lock()
	if p.layers.Gen() != gen {
		p.loadMu.Unlock()
		return false
	}
	p.mu.Lock()
	loop := p.slave || p.loopLimit < 0 || p.loops < p.loopLimit
	if loop {
		if !p.slave && p.loopLimit >= 0 {
			p.loops++
		}
		p.mu.Unlock()
		p.layers.ResetBase()
		p.loadMu.Unlock()
		return true
	}
	p.mu.Unlock()

	next := -1
	if p.list.Autoplay() {
		next = p.list.NextIndex()
	}
	switch {
	case next < 0:
		p.holdAtEnd(epoch)
		p.loadMu.Unlock()
		return false
	case next == p.list.Cursor():
		// single-item looping playlist
		p.mu.Lock()
		p.loops = 0
		p.mu.Unlock()
		p.layers.ResetBase()
		p.loadMu.Unlock()
		return true
	}
	clipID, err := p.load(context.Background(), next)
	if err != nil {
		p.log.Error().Err(err).Int("index", next).Msg("cannot advance playlist; holding")
		p.holdAtEnd(epoch)
		p.loadMu.Unlock()
		return false
	}
	p.loadMu.Unlock()
	p.fire(next, clipID)
	return true
}

func (p *Player) holdAtEnd(epoch uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.epoch != epoch || p.state != Playing {
		return
	}
	p.state = Stopped
	p.epoch++
	p.endStopped = true
	p.log.Info().Str("clip", p.clipID).Msg("end of playlist; holding last frame")
}

// Status is a point-in-time view for the control surface.
type Status struct {
	ID          string         `json:"id"`
	State       State          `json:"state"`
	Cursor      int            `json:"cursor"`
	ClipID      string         `json:"clip_id,omitempty"`
	Slave       bool           `json:"slave"`
	AutoStopped bool           `json:"auto_stopped"`
	LoopLimit   int            `json:"loop_limit"`
	Loops       int            `json:"loops"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	FPS         float64        `json:"fps"`
	Ticks       uint64         `json:"ticks"`
	Frames      uint64         `json:"frames"`
	Playlist    playlist.State `json:"playlist"`
	Layers      []layer.Info   `json:"layers"`
	Global      []effect.Entry `json:"global_effects"`
}

func (p *Player) Status() Status {
	p.mu.Lock()
	st := Status{
		ID:          p.cfg.ID,
		State:       p.state,
		ClipID:      p.clipID,
		Slave:       p.slave,
		AutoStopped: p.autoStopped,
		LoopLimit:   p.loopLimit,
		Loops:       p.loops,
		Width:       p.cfg.Width,
		Height:      p.cfg.Height,
		FPS:         p.cfg.FPS,
	}
	p.mu.Unlock()
	st.Ticks = p.ticks.Load()
	st.Frames = p.frames.Load()
	st.Playlist = p.list.State()
	st.Cursor = st.Playlist.Cursor
	st.Layers = p.layers.Layers()
	st.Global = p.global.Entries()
	return st
}

// LiveParameters reports the current layer and effect settings so they can
// be persisted elsewhere.
func (p *Player) LiveParameters() registry.Snapshot {
	p.mu.Lock()
	clipID := p.clipID
	p.mu.Unlock()
	snap := registry.Snapshot{
		PlayerID: p.cfg.ID,
		ClipID:   clipID,
		Cursor:   p.list.Cursor(),
		TakenAt:  time.Now().UTC(),
		Global:   p.global.Snapshot(),
	}
	for _, in := range p.layers.Layers() {
		ls := registry.LayerSnapshot{
			ID:        in.ID,
			Source:    in.Source,
			BlendMode: in.Mode,
			Opacity:   in.Opacity,
			Enabled:   in.Enabled,
		}
		for _, e := range in.Effects {
			ls.Effects = append(ls.Effects, effect.Spec{PluginID: e.PluginID, Params: e.Parameters, Enabled: effect.BoolPtr(e.Enabled)})
		}
		snap.Layers = append(snap.Layers, ls)
	}
	return snap
}

func (p *Player) interval() time.Duration { return source.Interval(p.cfg.FPS) }

// Close stops the player and releases every layer.
func (p *Player) Close() {
	p.Stop()
	p.layers.Close()
}
