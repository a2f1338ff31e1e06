package effect

import (
	"fmt"
	"sort"
	"sync"
)

// Descriptor registers one plugin type.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Schema      Schema `json:"parameters"`
	// New returns a fresh instance with default parameters.
	New func() Plugin `json:"-"`
}

// Registry maps plugin ids to constructors. It is built once at startup and
// handed to whoever needs to create effects.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Descriptor
}

func NewRegistry() *Registry { return &Registry{byID: map[string]Descriptor{}} }

func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" || d.New == nil {
		return fmt.Errorf("effect: descriptor needs an id and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, d.ID)
	}
	r.byID[d.ID] = d
	return nil
}

func (r *Registry) Descriptor(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// List returns descriptors sorted by id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// New builds an instance and applies params. Nothing is constructed if any
// parameter is rejected.
func (r *Registry) New(id string, params map[string]any) (Plugin, error) {
	d, ok := r.Descriptor(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	if err := d.Schema.Validate(params); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	p := d.New()
	for _, name := range sortedKeys(params) {
		if err := p.UpdateParameter(name, params[name]); err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
	}
	return p, nil
}

// ValidateSpec checks a spec against the registry without building it.
func (r *Registry) ValidateSpec(s Spec) error {
	d, ok := r.Descriptor(s.PluginID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, s.PluginID)
	}
	if err := d.Schema.Validate(s.Params); err != nil {
		return fmt.Errorf("%s: %w", s.PluginID, err)
	}
	return nil
}
