package layer

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/blend"
	"github.com/coreman2200/arcaluminis-show/internal/effect"
	"github.com/coreman2200/arcaluminis-show/internal/frame"
	"github.com/coreman2200/arcaluminis-show/internal/logging"
)

var (
	ErrNotFound   = errors.New("layer: not found")
	ErrOutOfRange = errors.New("layer: index out of range")
	ErrBaseLayer  = errors.New("layer: the base layer cannot be removed")
)

// stack is an immutable snapshot of the layer list. Readers hold a reference
// for the duration of a tick; once the stack is retired and the last reader
// lets go, the layers that did not survive into the successor are closed.
type stack struct {
	layers  []*Layer
	gen     uint64
	refs    atomic.Int64
	retired atomic.Bool
	drop    []*Layer
	once    sync.Once
}

func (s *stack) teardown() {
	s.once.Do(func() {
		for _, l := range s.drop {
			l.Close()
		}
	})
}

// Result is one composited tick.
type Result struct {
	Frame *frame.Frame
	// Delay is the base layer's inter-frame delay.
	Delay time.Duration
	// End is set when the base layer ran out of frames.
	End bool
	// Empty is set when the stack has no layers.
	Empty bool
	Gen   uint64
}

// Manager owns the layer stack of one timeline. Composite may run on the
// render goroutine while the mutators run elsewhere.
type Manager struct {
	owner string
	blend blend.Func
	log   zerolog.Logger
	warn  logging.Once

	cur    atomic.Pointer[stack]
	mu     sync.Mutex // serializes writers
	gen    uint64
	nextID atomic.Int64
	ticks  atomic.Uint64
}

// NewManager returns an empty manager. A nil blend uses blend.Blend.
func NewManager(owner string, fn blend.Func, log zerolog.Logger) *Manager {
	if fn == nil {
		fn = blend.Blend
	}
	m := &Manager{owner: owner, blend: fn, log: log}
	m.cur.Store(&stack{})
	return m
}

// NextID hands out layer ids that are unique for this manager's lifetime.
func (m *Manager) NextID() int { return int(m.nextID.Add(1)) }

func (m *Manager) acquire() *stack {
	for {
		s := m.cur.Load()
		if s == nil {
			return nil
		}
		s.refs.Add(1)
		if m.cur.Load() == s {
			return s
		}
		m.release(s)
	}
}

func (m *Manager) release(s *stack) {
	if s.refs.Add(-1) == 0 && s.retired.Load() {
		s.teardown()
	}
}

// publish swaps in layers as the new stack. Layers of the old stack that are
// not in the new one are closed once no tick can still be using them.
// Caller holds m.mu.
func (m *Manager) publish(layers []*Layer) uint64 {
	m.gen++
	next := &stack{layers: layers, gen: m.gen}
	old := m.cur.Swap(next)
	if old == nil {
		return next.gen
	}
	keep := make(map[*Layer]struct{}, len(layers))
	for _, l := range layers {
		keep[l] = struct{}{}
	}
	for _, l := range old.layers {
		if _, ok := keep[l]; !ok {
			old.drop = append(old.drop, l)
		}
	}
	old.retired.Store(true)
	if old.refs.Load() == 0 {
		old.teardown()
	}
	return next.gen
}

// Replace atomically swaps in a whole new stack, e.g. on clip change.
func (m *Manager) Replace(layers []*Layer) uint64 {
	cp := make([]*Layer, len(layers))
	copy(cp, layers)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publish(cp)
}

func (m *Manager) snapshot() []*Layer {
	s := m.cur.Load()
	if s == nil {
		return nil
	}
	return s.layers
}

// AddLayer appends an overlay (or the base, on an empty stack).
func (m *Manager) AddLayer(l *Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.snapshot()
	next := make([]*Layer, 0, len(cur)+1)
	next = append(next, cur...)
	m.publish(append(next, l))
}

// RemoveLayer drops an overlay by id. The base layer stays.
func (m *Manager) RemoveLayer(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.snapshot()
	idx := indexOf(cur, id)
	if idx < 0 {
		return fmt.Errorf("%w: layer %d", ErrNotFound, id)
	}
	if idx == 0 {
		return ErrBaseLayer
	}
	next := make([]*Layer, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	m.publish(append(next, cur[idx+1:]...))
	return nil
}

// MoveLayer moves the layer with id to position to; moving to 0 makes it the base.
func (m *Manager) MoveLayer(id, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.snapshot()
	idx := indexOf(cur, id)
	if idx < 0 {
		return fmt.Errorf("%w: layer %d", ErrNotFound, id)
	}
	if to < 0 || to >= len(cur) {
		return fmt.Errorf("%w: %d (len %d)", ErrOutOfRange, to, len(cur))
	}
	next := make([]*Layer, 0, len(cur))
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	next = append(next[:to], append([]*Layer{cur[idx]}, next[to:]...)...)
	m.publish(next)
	return nil
}

func indexOf(ls []*Layer, id int) int {
	for i, l := range ls {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// Layer looks a layer up by id in the current stack.
func (m *Manager) Layer(id int) (*Layer, bool) {
	s := m.acquire()
	if s == nil {
		return nil, false
	}
	defer m.release(s)
	if i := indexOf(s.layers, id); i >= 0 {
		return s.layers[i], true
	}
	return nil, false
}

// Base returns the index-0 layer, if any.
func (m *Manager) Base() *Layer {
	s := m.acquire()
	if s == nil {
		return nil
	}
	defer m.release(s)
	if len(s.layers) == 0 {
		return nil
	}
	return s.layers[0]
}

func (m *Manager) Len() int { return len(m.snapshot()) }

// Gen identifies the current stack; it changes on every publish.
func (m *Manager) Gen() uint64 {
	if s := m.cur.Load(); s != nil {
		return s.gen
	}
	return 0
}

// Layers describes the current stack, base first.
func (m *Manager) Layers() []Info {
	s := m.acquire()
	if s == nil {
		return nil
	}
	defer m.release(s)
	out := make([]Info, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.Info()
	}
	return out
}

// ResetBase rewinds the base layer's source.
func (m *Manager) ResetBase() {
	s := m.acquire()
	if s == nil {
		return
	}
	defer m.release(s)
	if len(s.layers) > 0 {
		s.layers[0].rewind()
	}
}

// Close tears the stack down. Later Composite calls return Empty.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.cur.Swap(nil)
	if old == nil {
		return
	}
	old.drop = old.layers
	old.retired.Store(true)
	if old.refs.Load() == 0 {
		old.teardown()
	}
}

// Composite runs one tick over the current snapshot: base frame and its
// chain, then each visible overlay in order, blended into the accumulator.
func (m *Manager) Composite() Result {
	s := m.acquire()
	if s == nil || len(s.layers) == 0 {
		if s != nil {
			m.release(s)
		}
		return Result{Empty: true}
	}
	defer m.release(s)

	tick := m.ticks.Add(1)
	base := s.layers[0]
	f, delay := base.next()
	if f == nil {
		return Result{End: true, Gen: s.gen}
	}
	f = base.Effects.Apply(f, m.ctx(base, tick))
	if len(s.layers) == 1 {
		return Result{Frame: f, Delay: delay, Gen: s.gen}
	}

	acc := f
	for _, l := range s.layers[1:] {
		if !l.visible() {
			continue
		}
		of, _ := l.next()
		if of == nil {
			// overlays loop on their own
			l.rewind()
			of, _ = l.next()
		}
		if of == nil {
			m.warn.Do(strconv.Itoa(l.ID), func() {
				m.log.Warn().Int("layer", l.ID).Str("source", l.src.Name()).
					Msg("overlay produced no frame after reset; skipping")
			})
			continue
		}
		of = l.Effects.Apply(of, m.ctx(l, tick))
		acc = m.blend(acc, of, l.Mode(), l.Opacity())
	}
	return Result{Frame: acc, Delay: delay, Gen: s.gen}
}

func (m *Manager) ctx(l *Layer, tick uint64) effect.Context {
	return effect.Context{PlayerID: m.owner, LayerID: l.ID, Tick: tick, Timeline: l.Timeline()}
}
