// Package source defines the frame source contract and the built-in sources.
package source

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

var (
	ErrUnknownType = errors.New("source: unknown type")
	ErrNotReady    = errors.New("source: not initialized")
)

// Source produces a restartable sequence of frames. A nil frame from
// NextFrame means the source has ended; Reset rewinds it.
type Source interface {
	Initialize() error
	NextFrame() (*frame.Frame, time.Duration)
	Reset()
	Cleanup()
	Name() string
}

// Spec describes a source as stored in a clip layer definition.
type Spec struct {
	Type   string         `json:"source_type" yaml:"type" toml:"type"`
	Path   string         `json:"source_path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Width  int            `json:"width,omitempty" yaml:"width,omitempty" toml:"width,omitempty"`
	Height int            `json:"height,omitempty" yaml:"height,omitempty" toml:"height,omitempty"`
	FPS    float64        `json:"fps,omitempty" yaml:"fps,omitempty" toml:"fps,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
}

// Interval converts a frame rate to a frame delay; non-positive rates use 30.
func Interval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 30
	}
	return time.Duration(float64(time.Second) / fps)
}

func (s Spec) interval() time.Duration { return Interval(s.FPS) }

func (s Spec) size() (int, int) {
	w, h := s.Width, s.Height
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return w, h
}

func (s Spec) Float(key string, def float64) float64 {
	switch v := s.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s Spec) Int(key string, def int) int {
	return int(s.Float(key, float64(def)))
}

func (s Spec) String(key, def string) string {
	if v, ok := s.Params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Factory builds an uninitialized source.
type Factory func(Spec) (Source, error)

// Registry maps source types to factories.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Factory
}

func NewRegistry() *Registry { return &Registry{m: map[string]Factory{}} }

// Builtins returns a registry with every built-in source type.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("black", func(s Spec) (Source, error) { return NewBlack(s), nil })
	r.Register("solid", func(s Spec) (Source, error) { return NewSolid(s) })
	r.Register("gradient", func(s Spec) (Source, error) { return NewGradient(s), nil })
	r.Register("sequence", func(s Spec) (Source, error) { return NewSequence(s), nil })
	r.Register("testpattern", func(s Spec) (Source, error) { return NewTestPattern(s) })
	r.Register("script", func(s Spec) (Source, error) { return NewScript(s), nil })
	return r
}

func (r *Registry) Register(typ string, f Factory) {
	if f == nil {
		return
	}
	r.mu.Lock()
	r.m[strings.ToLower(typ)] = f
	r.mu.Unlock()
}

func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[strings.ToLower(typ)]
	return ok
}

func (r *Registry) New(s Spec) (Source, error) {
	r.mu.RLock()
	f, ok := r.m[strings.ToLower(s.Type)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
	return f(s)
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
