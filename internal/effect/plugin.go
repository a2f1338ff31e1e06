package effect

import (
	"errors"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

var (
	ErrUnknownPlugin    = errors.New("effect: unknown plugin")
	ErrDuplicatePlugin  = errors.New("effect: plugin already registered")
	ErrInvalidParameter = errors.New("effect: invalid parameter")
	ErrIndexOutOfRange  = errors.New("effect: index out of range")
)

// Plugin is one frame transform. Instances are never shared between layers
// or players; the registry builds a fresh one for every chain entry.
type Plugin interface {
	ID() string
	// Process returns the transformed frame. It must not modify f.
	Process(f *frame.Frame, ctx Context) (*frame.Frame, error)
	Parameters() map[string]any
	UpdateParameter(name string, value any) error
}

// Timeline is the playback position of a seekable source.
type Timeline interface {
	FrameCount() int
	Position() int
	Seek(frame int) bool
}

// TimelineAware is implemented by plugins that need the owning source's
// timeline. The layer binds it when the plugin is attached.
type TimelineAware interface {
	BindTimeline(t Timeline)
}

// Context is passed to every Process call.
type Context struct {
	PlayerID string
	LayerID  int
	Tick     uint64
	// Timeline is nil for the global chain and for non-seekable sources.
	Timeline Timeline
}

// Spec describes one chain entry as stored in a clip or config file.
type Spec struct {
	PluginID string         `json:"plugin_id" yaml:"plugin" toml:"plugin"`
	Params   map[string]any `json:"parameters,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Enabled  *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (s Spec) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// BoolPtr returns a pointer for Spec.Enabled literals.
func BoolPtr(v bool) *bool { return &v }

// CloneSpecs deep-copies parameter maps so callers can't alias stored specs.
func CloneSpecs(in []Spec) []Spec {
	if in == nil {
		return nil
	}
	out := make([]Spec, len(in))
	for i, s := range in {
		out[i] = Spec{PluginID: s.PluginID, Params: cloneMap(s.Params)}
		if s.Enabled != nil {
			out[i].Enabled = BoolPtr(*s.Enabled)
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
