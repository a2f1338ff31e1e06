package effect

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// Entry is the read-only view of one chain slot.
type Entry struct {
	PluginID   string         `json:"plugin_id"`
	Enabled    bool           `json:"enabled"`
	Parameters map[string]any `json:"parameters"`
}

type slot struct {
	plugin  Plugin
	enabled bool
}

// Chain is an ordered list of effect instances. Mutators may run concurrently
// with Apply; Apply works on a copy of the slot list taken under a read lock.
type Chain struct {
	reg     *Registry
	log     zerolog.Logger
	failLog zerolog.Logger

	mu       sync.RWMutex
	slots    []*slot
	timeline Timeline
}

func NewChain(reg *Registry, log zerolog.Logger) *Chain {
	return &Chain{
		reg:     reg,
		log:     log,
		failLog: log.Sample(&zerolog.BurstSampler{Burst: 3, Period: 5 * time.Second}),
	}
}

// Bind attaches a timeline; existing and future TimelineAware plugins get it.
func (c *Chain) Bind(t Timeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = t
	for _, s := range c.slots {
		c.bindLocked(s.plugin)
	}
}

// Rewound tells TimelineAware plugins that the bound source went back to
// its first frame, before anything is pulled from it.
func (c *Chain) Rewound() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.slots {
		c.bindLocked(s.plugin)
	}
}

func (c *Chain) bindLocked(p Plugin) {
	if c.timeline == nil {
		return
	}
	if ta, ok := p.(TimelineAware); ok {
		ta.BindTimeline(c.timeline)
	}
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

// Add appends a new instance of pluginID and returns its index.
func (c *Chain) Add(pluginID string, params map[string]any) (int, error) {
	p, err := c.reg.New(pluginID, params)
	if err != nil {
		return -1, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindLocked(p)
	c.slots = append(c.slots, &slot{plugin: p, enabled: true})
	return len(c.slots) - 1, nil
}

// Insert places a new instance at index (0..Len).
func (c *Chain) Insert(index int, pluginID string, params map[string]any) error {
	p, err := c.reg.New(pluginID, params)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index > len(c.slots) {
		return fmt.Errorf("%w: insert at %d (len %d)", ErrIndexOutOfRange, index, len(c.slots))
	}
	c.bindLocked(p)
	c.slots = append(c.slots, nil)
	copy(c.slots[index+1:], c.slots[index:])
	c.slots[index] = &slot{plugin: p, enabled: true}
	return nil
}

// AddSpecs appends every spec. It stops at the first invalid one; entries
// added before it stay.
func (c *Chain) AddSpecs(specs []Spec) error {
	for _, s := range specs {
		i, err := c.Add(s.PluginID, s.Params)
		if err != nil {
			return err
		}
		if !s.IsEnabled() {
			_ = c.SetEnabled(i, false)
		}
	}
	return nil
}

func (c *Chain) Remove(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(index); err != nil {
		return err
	}
	c.slots = append(c.slots[:index:index], c.slots[index+1:]...)
	return nil
}

// Move relocates the entry at from so that it ends up at index to.
func (c *Chain) Move(from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(from); err != nil {
		return err
	}
	if err := c.checkLocked(to); err != nil {
		return err
	}
	s := c.slots[from]
	next := make([]*slot, 0, len(c.slots))
	next = append(next, c.slots[:from]...)
	next = append(next, c.slots[from+1:]...)
	next = append(next[:to], append([]*slot{s}, next[to:]...)...)
	c.slots = next
	return nil
}

func (c *Chain) SetEnabled(index int, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked(index); err != nil {
		return err
	}
	// slots are shared with in-flight Apply snapshots; replace, don't mutate
	old := c.slots[index]
	c.slots[index] = &slot{plugin: old.plugin, enabled: enabled}
	return nil
}

func (c *Chain) UpdateParameter(index int, name string, value any) error {
	c.mu.RLock()
	if err := c.checkLocked(index); err != nil {
		c.mu.RUnlock()
		return err
	}
	p := c.slots[index].plugin
	c.mu.RUnlock()
	return p.UpdateParameter(name, value)
}

// UpdateByPlugin sets name on every entry of pluginID. It returns how many
// entries accepted the value.
func (c *Chain) UpdateByPlugin(pluginID, name string, value any) int {
	c.mu.RLock()
	targets := make([]Plugin, 0, len(c.slots))
	for _, s := range c.slots {
		if s.plugin.ID() == pluginID {
			targets = append(targets, s.plugin)
		}
	}
	c.mu.RUnlock()
	n := 0
	for _, p := range targets {
		if p.UpdateParameter(name, value) == nil {
			n++
		}
	}
	return n
}

func (c *Chain) Clear() {
	c.mu.Lock()
	c.slots = nil
	c.mu.Unlock()
}

// Entries returns the current chain with live parameter values.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.slots))
	for i, s := range c.slots {
		out[i] = Entry{PluginID: s.plugin.ID(), Enabled: s.enabled, Parameters: s.plugin.Parameters()}
	}
	return out
}

// Snapshot returns the chain as specs that rebuild it.
func (c *Chain) Snapshot() []Spec {
	entries := c.Entries()
	out := make([]Spec, len(entries))
	for i, e := range entries {
		out[i] = Spec{PluginID: e.PluginID, Params: e.Parameters, Enabled: BoolPtr(e.Enabled)}
	}
	return out
}

func (c *Chain) checkLocked(index int) error {
	if index < 0 || index >= len(c.slots) {
		return fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, index, len(c.slots))
	}
	return nil
}

// Apply runs the enabled entries in order. A failing entry is logged and
// skipped for this call; the frame it received carries on to the next one.
func (c *Chain) Apply(f *frame.Frame, ctx Context) *frame.Frame {
	if c == nil || f == nil {
		return f
	}
	c.mu.RLock()
	if len(c.slots) == 0 {
		c.mu.RUnlock()
		return f
	}
	slots := make([]*slot, len(c.slots))
	copy(slots, c.slots)
	if ctx.Timeline == nil {
		ctx.Timeline = c.timeline
	}
	c.mu.RUnlock()

	work := f
	for i, s := range slots {
		if !s.enabled {
			continue
		}
		out, err := process(s.plugin, work, ctx)
		if err == nil && out == nil {
			err = errNoFrame
		}
		if err != nil {
			c.failLog.Warn().Err(err).
				Str("plugin", s.plugin.ID()).
				Int("index", i).
				Str("player", ctx.PlayerID).
				Int("layer", ctx.LayerID).
				Msg("effect failed; frame passed through")
			continue
		}
		work = out
	}
	return work
}

var errNoFrame = fmt.Errorf("effect returned no frame")

func process(p Plugin, f *frame.Frame, ctx Context) (out *frame.Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Process(f, ctx)
}
