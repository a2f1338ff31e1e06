// Package syncctl keeps the playlists of several players in step, either
// behind a master player or behind an external slot sequencer.
package syncctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/player"
)

var (
	ErrSequencerActive   = errors.New("syncctl: sequencer mode is active")
	ErrSequencerInactive = errors.New("syncctl: sequencer mode is off")
	ErrUnknownPlayer     = errors.New("syncctl: unknown player")
)

// DefaultQueueSize bounds the pending clip-change events.
const DefaultQueueSize = 64

// Target is the part of a player the controller drives.
type Target interface {
	ID() string
	PlaylistLen() int
	Load(ctx context.Context, index int) error
	Rewind()
	ShowBlack()
	ResumeAfterSync()
	SetSlave(bool)
	OnClipChanged(player.ClipChanged)
}

// Event is a clip change reported by a player.
type Event struct {
	PlayerID string
	Index    int
	ClipID   string
}

// Controller holds the master/sequencer authority. Its methods are safe for
// concurrent use; player render loops only ever enqueue events.
type Controller struct {
	log zerolog.Logger

	mu        sync.Mutex
	players   map[string]Target
	order     []string
	master    string
	sequencer bool
	slot      int

	qmu     sync.Mutex
	queue   []Event
	qsize   int
	signal  chan struct{}
	dropped atomic.Uint64
	handled atomic.Uint64
}

func New(log zerolog.Logger, queueSize int) *Controller {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Controller{
		log:     log,
		players: map[string]Target{},
		qsize:   queueSize,
		signal:  make(chan struct{}, 1),
		slot:    -1,
	}
}

// Add puts t under the controller and subscribes to its clip changes.
func (c *Controller) Add(t Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := t.ID()
	if _, ok := c.players[id]; ok {
		return fmt.Errorf("syncctl: player %q already added", id)
	}
	c.players[id] = t
	c.order = append(c.order, id)
	t.OnClipChanged(func(playerID string, index int, clipID string) {
		c.Notify(Event{PlayerID: playerID, Index: index, ClipID: clipID})
	})
	if c.sequencer {
		t.SetSlave(true)
	}
	return nil
}

func (c *Controller) targets() []Target {
	out := make([]Target, len(c.order))
	for i, id := range c.order {
		out[i] = c.players[id]
	}
	return out
}

// SetMaster makes id the master, or clears it when id is empty. A new
// master resets every player, master included, to index 0.
func (c *Controller) SetMaster(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sequencer {
		return ErrSequencerActive
	}
	if id == "" {
		c.master = ""
		for _, t := range c.targets() {
			t.SetSlave(false)
		}
		c.log.Info().Msg("master cleared")
		return nil
	}
	if _, ok := c.players[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	c.master = id
	var errs []error
	for _, t := range c.targets() {
		t.SetSlave(t.ID() != id)
		if err := c.syncSlave(ctx, t, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.ID(), err))
			continue
		}
		t.Rewind()
	}
	// the reset supersedes anything still queued
	c.clearQueue()
	c.log.Info().Str("master", id).Msg("master set; all timelines reset")
	return errors.Join(errs...)
}

// Master returns the current master id, empty when none.
func (c *Controller) Master() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.master
}

// OnMasterClipChanged moves every non-master player to index.
func (c *Controller) OnMasterClipChanged(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sequencer || c.master == "" {
		return nil
	}
	var errs []error
	for _, t := range c.targets() {
		if t.ID() == c.master {
			continue
		}
		if err := c.syncSlave(ctx, t, index); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// SyncSlave moves one player to index; see syncSlave.
func (c *Controller) SyncSlave(ctx context.Context, id string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return c.syncSlave(ctx, t, index)
}

// syncSlave blacks the player out when index is past its playlist, else
// loads the clip and resumes a player that an earlier blackout stopped.
func (c *Controller) syncSlave(ctx context.Context, t Target, index int) error {
	if index < 0 || index >= t.PlaylistLen() {
		c.log.Debug().Str("player", t.ID()).Int("index", index).Msg("index past playlist; black")
		t.ShowBlack()
		return nil
	}
	if err := t.Load(ctx, index); err != nil {
		return err
	}
	t.ResumeAfterSync()
	return nil
}

// EnableSequencer hands authority to the slot sequencer. Any master is
// cleared.
func (c *Controller) EnableSequencer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sequencer {
		return
	}
	if c.master != "" {
		c.log.Info().Str("master", c.master).Msg("sequencer on; master cleared")
		c.master = ""
	}
	c.sequencer = true
	c.slot = -1
	for _, t := range c.targets() {
		t.SetSlave(true)
	}
}

// DisableSequencer returns to free running. No master is restored.
func (c *Controller) DisableSequencer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sequencer {
		return
	}
	c.sequencer = false
	c.slot = -1
	for _, t := range c.targets() {
		t.SetSlave(false)
	}
	c.log.Info().Msg("sequencer off")
}

func (c *Controller) SequencerActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequencer
}

// AdvanceAllToSlot loads slot as the clip index of every player.
func (c *Controller) AdvanceAllToSlot(ctx context.Context, slot int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sequencer {
		return ErrSequencerInactive
	}
	c.slot = slot
	var errs []error
	for _, t := range c.targets() {
		if err := c.syncSlave(ctx, t, slot); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.ID(), err))
		}
	}
	c.log.Debug().Int("slot", slot).Msg("advanced all players")
	return errors.Join(errs...)
}

// Notify queues ev without blocking. A full queue drops its oldest event.
func (c *Controller) Notify(ev Event) {
	c.qmu.Lock()
	if len(c.queue) >= c.qsize {
		c.queue = c.queue[1:]
		c.dropped.Add(1)
	}
	c.queue = append(c.queue, ev)
	c.qmu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Controller) clearQueue() {
	c.qmu.Lock()
	c.queue = nil
	c.qmu.Unlock()
}

func (c *Controller) take() []Event {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	evs := c.queue
	c.queue = nil
	return evs
}

// Process handles every queued event in order and returns how many it saw.
func (c *Controller) Process(ctx context.Context) int {
	evs := c.take()
	for _, ev := range evs {
		c.handle(ctx, ev)
	}
	return len(evs)
}

func (c *Controller) handle(ctx context.Context, ev Event) {
	c.handled.Add(1)
	c.mu.Lock()
	relevant := !c.sequencer && c.master != "" && ev.PlayerID == c.master
	c.mu.Unlock()
	if !relevant {
		return
	}
	if err := c.OnMasterClipChanged(ctx, ev.Index); err != nil {
		c.log.Warn().Err(err).Int("index", ev.Index).Str("clip", ev.ClipID).Msg("slave sync incomplete")
	}
}

// Run handles events until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.signal:
			c.Process(ctx)
		}
	}
}

// Status is a point-in-time view for the control surface.
type Status struct {
	Master    string   `json:"master,omitempty"`
	Sequencer bool     `json:"sequencer"`
	Slot      int      `json:"slot"`
	Players   []string `json:"players"`
	Pending   int      `json:"pending"`
	Handled   uint64   `json:"handled"`
	Dropped   uint64   `json:"dropped"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		Master:    c.master,
		Sequencer: c.sequencer,
		Slot:      c.slot,
		Players:   append([]string(nil), c.order...),
	}
	c.mu.Unlock()
	c.qmu.Lock()
	st.Pending = len(c.queue)
	c.qmu.Unlock()
	st.Handled = c.handled.Load()
	st.Dropped = c.dropped.Load()
	return st
}
