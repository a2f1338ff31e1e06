// Package playlist is the ordered clip list of one timeline.
package playlist

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coreman2200/arcaluminis-show/internal/effect"
)

var (
	ErrOutOfRange = errors.New("playlist: index out of range")
	ErrEmptyID    = errors.New("playlist: empty clip id")
)

// Override replaces a clip's stored settings for this playlist only.
type Override struct {
	// Effects replaces the clip-level effect list when non-nil.
	Effects []effect.Spec `json:"effects,omitempty" yaml:"effects,omitempty" toml:"effects,omitempty"`
	// Params are merged over the base layer's source parameters.
	Params map[string]any `json:"parameters,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
}

func (o Override) clone() Override {
	out := Override{Effects: effect.CloneSpecs(o.Effects)}
	if o.Params != nil {
		out.Params = make(map[string]any, len(o.Params))
		for k, v := range o.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Playlist holds clip ids and a cursor that is either -1 or a valid index.
// All methods are safe for concurrent use.
type Playlist struct {
	mu        sync.RWMutex
	items     []string
	cursor    int
	autoplay  bool
	loop      bool
	overrides map[string]Override
}

func New(items []string, autoplay, loop bool) *Playlist {
	p := &Playlist{cursor: -1, autoplay: autoplay, loop: loop, overrides: map[string]Override{}}
	p.items = append(p.items, items...)
	return p
}

// State is a point-in-time copy for status output.
type State struct {
	Items     []string            `json:"items"`
	Cursor    int                 `json:"cursor"`
	Autoplay  bool                `json:"autoplay"`
	Loop      bool                `json:"loop"`
	Overrides map[string]Override `json:"overrides,omitempty"`
}

func (p *Playlist) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := State{Items: append([]string(nil), p.items...), Cursor: p.cursor, Autoplay: p.autoplay, Loop: p.loop}
	if len(p.overrides) > 0 {
		st.Overrides = make(map[string]Override, len(p.overrides))
		for k, v := range p.overrides {
			st.Overrides[k] = v.clone()
		}
	}
	return st
}

func (p *Playlist) Items() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.items...)
}

func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

func (p *Playlist) Cursor() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

// At returns the clip id at i.
func (p *Playlist) At(i int) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.items) {
		return "", false
	}
	return p.items[i], true
}

// Current returns the clip under the cursor.
func (p *Playlist) Current() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cursor < 0 {
		return "", false
	}
	return p.items[p.cursor], true
}

// SetCursor moves the cursor; -1 unloads.
func (p *Playlist) SetCursor(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < -1 || i >= len(p.items) {
		return fmt.Errorf("%w: %d (len %d)", ErrOutOfRange, i, len(p.items))
	}
	p.cursor = i
	return nil
}

// NextIndex is the index after the cursor, wrapping when loop is set.
// It returns -1 at the end of a non-looping list or on an empty list.
func (p *Playlist) NextIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.items)
	if n == 0 {
		return -1
	}
	ni := p.cursor + 1
	if ni >= n {
		if p.loop {
			return 0
		}
		return -1
	}
	return ni
}

// PrevIndex is the index before the cursor, wrapping when loop is set.
func (p *Playlist) PrevIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.items)
	if n == 0 {
		return -1
	}
	if p.cursor <= 0 {
		if p.loop {
			return n - 1
		}
		return -1
	}
	return p.cursor - 1
}

func (p *Playlist) Autoplay() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoplay
}

func (p *Playlist) SetAutoplay(v bool) {
	p.mu.Lock()
	p.autoplay = v
	p.mu.Unlock()
}

func (p *Playlist) Loop() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loop
}

func (p *Playlist) SetLoop(v bool) {
	p.mu.Lock()
	p.loop = v
	p.mu.Unlock()
}

// Add appends a clip and returns its index.
func (p *Playlist) Add(clipID string) (int, error) {
	if clipID == "" {
		return -1, ErrEmptyID
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, clipID)
	return len(p.items) - 1, nil
}

// Insert places a clip at i (0..Len). The cursor keeps pointing at the same clip.
func (p *Playlist) Insert(i int, clipID string) error {
	if clipID == "" {
		return ErrEmptyID
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i > len(p.items) {
		return fmt.Errorf("%w: %d (len %d)", ErrOutOfRange, i, len(p.items))
	}
	p.items = append(p.items, "")
	copy(p.items[i+1:], p.items[i:])
	p.items[i] = clipID
	if p.cursor >= i {
		p.cursor++
	}
	return nil
}

// Remove deletes the item at i. Removing an earlier item shifts the cursor
// back; removing the cursor item leaves the cursor on whatever now occupies
// that slot, clamped to the end; emptying the list unloads.
func (p *Playlist) Remove(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.items) {
		return fmt.Errorf("%w: %d (len %d)", ErrOutOfRange, i, len(p.items))
	}
	p.items = append(p.items[:i], p.items[i+1:]...)
	switch {
	case len(p.items) == 0:
		p.cursor = -1
	case i < p.cursor:
		p.cursor--
	case p.cursor >= len(p.items):
		p.cursor = len(p.items) - 1
	}
	return nil
}

// Move relocates the item at from to index to; the cursor follows its clip.
func (p *Playlist) Move(from, to int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d->%d (len %d)", ErrOutOfRange, from, to, n)
	}
	id := p.items[from]
	rest := append(append([]string(nil), p.items[:from]...), p.items[from+1:]...)
	p.items = append(rest[:to], append([]string{id}, rest[to:]...)...)

	switch c := p.cursor; {
	case c == from:
		p.cursor = to
	case from < c && to >= c:
		p.cursor--
	case from > c && to <= c:
		p.cursor++
	}
	return nil
}

// Replace swaps the whole list and unloads the cursor.
func (p *Playlist) Replace(items []string) {
	p.mu.Lock()
	p.items = append([]string(nil), items...)
	p.cursor = -1
	p.mu.Unlock()
}

func (p *Playlist) SetOverride(clipID string, o Override) error {
	if clipID == "" {
		return ErrEmptyID
	}
	p.mu.Lock()
	p.overrides[clipID] = o.clone()
	p.mu.Unlock()
	return nil
}

func (p *Playlist) Override(clipID string) (Override, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o, ok := p.overrides[clipID]
	if !ok {
		return Override{}, false
	}
	return o.clone(), true
}

func (p *Playlist) ClearOverride(clipID string) {
	p.mu.Lock()
	delete(p.overrides, clipID)
	p.mu.Unlock()
}
