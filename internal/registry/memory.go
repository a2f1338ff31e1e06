package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process catalog, filled from the config file.
type Memory struct {
	mu    sync.RWMutex
	clips map[string]Clip
}

func NewMemory(clips ...Clip) (*Memory, error) {
	m := &Memory{clips: map[string]Clip{}}
	for _, c := range clips {
		if err := m.Put(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Memory) Put(c Clip) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.clips[c.ID] = c.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(id string) {
	m.mu.Lock()
	delete(m.clips, id)
	m.mu.Unlock()
}

func (m *Memory) Clip(_ context.Context, id string) (Clip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clips[id]
	if !ok {
		return Clip{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.Clone(), nil
}

// List returns clips sorted by id.
func (m *Memory) List(_ context.Context) ([]Clip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Clip, 0, len(m.clips))
	for _, c := range m.clips {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
