// Package sequencer runs a timed slot program that drives every player to
// the same playlist index and automates effect parameters.
package sequencer

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
)

// Hooks connect the timeline to the playback engine.
type Hooks struct {
	// Engage switches sequencer authority on when the program starts and off
	// when it stops or runs out.
	Engage func(on bool)
	// AdvanceToSlot loads slot on every player.
	AdvanceToSlot func(ctx context.Context, slot int) error
	// SetParam writes an envelope value into every matching effect.
	SetParam func(pluginID, name string, v float64)
}

// ChainParams returns a SetParam hook that updates every entry of the plugin
// in the chains chains returns, e.g. each player's global chain.
func ChainParams(chains func() []*effect.Chain) func(pluginID, name string, v float64) {
	return func(pluginID, name string, v float64) {
		for _, c := range chains() {
			c.UpdateByPlugin(pluginID, name, v)
		}
	}
}

// Timeline owns the slot program and the play position.
type Timeline struct {
	log   zerolog.Logger
	hooks Hooks

	mu    sync.Mutex
	state State
	prog  Program
	nowS  float64
	idx   int

	// loaded is the slot last pushed to the players, -1 for none.
	loaded int
}

func NewTimeline(h Hooks, log zerolog.Logger) *Timeline {
	return &Timeline{hooks: h, log: log, state: Idle, loaded: -1}
}

// Load replaces the program and rewinds to Idle.
func (t *Timeline) Load(p Program) error {
	if err := p.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	wasActive := t.state != Idle
	t.prog = p.normalized()
	t.nowS, t.idx, t.state, t.loaded = 0, 0, Idle, -1
	t.mu.Unlock()
	if wasActive {
		t.engage(false)
	}
	return nil
}

func (t *Timeline) engage(on bool) {
	if t.hooks.Engage != nil {
		t.hooks.Engage(on)
	}
}

func (t *Timeline) advance(ctx context.Context, slot int) {
	if t.hooks.AdvanceToSlot == nil {
		return
	}
	if err := t.hooks.AdvanceToSlot(ctx, slot); err != nil {
		t.log.Warn().Err(err).Int("slot", slot).Msg("slot advance incomplete")
	}
}

// Start engages the sequencer and loads the current slot everywhere.
func (t *Timeline) Start(ctx context.Context) error {
	t.mu.Lock()
	if len(t.prog.Slots) == 0 {
		t.mu.Unlock()
		return ErrEmptyProgram
	}
	if t.state == Running {
		t.mu.Unlock()
		return nil
	}
	resume := t.state == Paused
	t.state = Running
	idx := t.idx
	push := !resume || idx != t.loaded
	t.loaded = idx
	t.mu.Unlock()

	if !resume {
		t.engage(true)
	}
	if push {
		t.advance(ctx, idx)
	}
	t.log.Info().Int("slot", idx).Bool("resume", resume).Msg("sequencer running")
	return nil
}

func (t *Timeline) Pause() {
	t.mu.Lock()
	if t.state == Running {
		t.state = Paused
	}
	t.mu.Unlock()
}

// Stop rewinds and hands authority back.
func (t *Timeline) Stop() {
	t.mu.Lock()
	was := t.state
	t.state, t.nowS, t.idx, t.loaded = Idle, 0, 0, -1
	t.mu.Unlock()
	if was != Idle {
		t.engage(false)
		t.log.Info().Msg("sequencer stopped")
	}
}

// Seek jumps to absolute program time s, clamped into the program. While
// running the landing slot is loaded at once.
func (t *Timeline) Seek(ctx context.Context, s float64) {
	t.mu.Lock()
	if len(t.prog.Slots) == 0 {
		t.mu.Unlock()
		return
	}
	if s < 0 {
		s = 0
	}
	if total := t.prog.total(); s >= total {
		s = math.Nextafter(total, 0)
	}
	t.nowS = s
	t.idx = t.slotAt(s)
	idx := t.idx
	push := t.state == Running && idx != t.loaded
	if push {
		t.loaded = idx
	}
	t.mu.Unlock()
	if push {
		t.advance(ctx, idx)
	}
}

func (t *Timeline) slotAt(s float64) int {
	acc := 0.0
	for i, sl := range t.prog.Slots {
		if s < acc+sl.DurationS {
			return i
		}
		acc += sl.DurationS
	}
	return len(t.prog.Slots) - 1
}

func (t *Timeline) slotStart(idx int) float64 {
	acc := 0.0
	for i := 0; i < idx; i++ {
		acc += t.prog.Slots[i].DurationS
	}
	return acc
}

type paramSet struct {
	plugin, name string
	v            float64
}

// Tick moves the timeline by dt seconds. Crossing slot boundaries loads only
// the slot it lands in. Envelope values of that slot are then applied.
func (t *Timeline) Tick(ctx context.Context, dt float64) {
	t.mu.Lock()
	if t.state != Running || dt <= 0 || len(t.prog.Slots) == 0 {
		t.mu.Unlock()
		return
	}
	prev := t.idx
	t.nowS += dt
	ended, wrapped := false, false
	if total := t.prog.total(); t.nowS >= total {
		if t.prog.Loop {
			t.nowS = math.Mod(t.nowS, total)
			wrapped = true
		} else {
			ended = true
		}
	}
	if ended {
		t.state, t.nowS, t.idx, t.loaded = Idle, 0, 0, -1
		t.mu.Unlock()
		t.log.Info().Msg("program finished")
		t.engage(false)
		return
	}
	t.idx = t.slotAt(t.nowS)
	idx := t.idx
	local := t.nowS - t.slotStart(idx)
	slot := t.prog.Slots[idx]
	// a wrapped program that lands in the same slot still reloads it
	push := idx != prev || wrapped
	if push {
		t.loaded = idx
	}
	t.mu.Unlock()

	if push {
		t.advance(ctx, idx)
	}
	if t.hooks.SetParam == nil || len(slot.Envelopes) == 0 {
		return
	}
	sets := make([]paramSet, 0, len(slot.Envelopes))
	for key, env := range slot.Envelopes {
		plugin, name, _ := SplitKey(key)
		sets = append(sets, paramSet{plugin, name, env.At(local)})
	}
	sort.Slice(sets, func(i, j int) bool {
		if sets[i].plugin != sets[j].plugin {
			return sets[i].plugin < sets[j].plugin
		}
		return sets[i].name < sets[j].name
	})
	for _, s := range sets {
		t.hooks.SetParam(s.plugin, s.name, s.v)
	}
}

// Run ticks with the wall clock every interval until ctx ends.
func (t *Timeline) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			t.Tick(ctx, now.Sub(last).Seconds())
			last = now
		}
	}
}

// Status is a point-in-time view.
type Status struct {
	State     State   `json:"state"`
	Slot      int     `json:"slot"`
	SlotName  string  `json:"slot_name,omitempty"`
	PositionS float64 `json:"position_s"`
	TotalS    float64 `json:"total_s"`
	Slots     int     `json:"slots"`
	Loop      bool    `json:"loop"`
}

func (t *Timeline) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := Status{
		State:     t.state,
		Slot:      t.idx,
		PositionS: t.nowS,
		TotalS:    t.prog.total(),
		Slots:     len(t.prog.Slots),
		Loop:      t.prog.Loop,
	}
	if t.idx < len(t.prog.Slots) {
		st.SlotName = t.prog.Slots[t.idx].Name
	}
	return st
}
