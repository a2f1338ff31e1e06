// Package registry is the clip catalog the players build layer stacks from.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreman2200/arcaluminis-show/internal/blend"
	"github.com/coreman2200/arcaluminis-show/internal/effect"
)

var (
	ErrNotFound    = errors.New("registry: clip not found")
	ErrInvalidClip = errors.New("registry: invalid clip")
)

// Clip is one playable entry: a stack of layer definitions plus clip-level
// effects that run on the base layer ahead of its own chain.
type Clip struct {
	ID      string        `json:"id" yaml:"id" toml:"id"`
	Name    string        `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Effects []effect.Spec `json:"effects,omitempty" yaml:"effects,omitempty" toml:"effects,omitempty"`
	Layers  []LayerDef    `json:"layers" yaml:"layers" toml:"layers"`
}

// LayerDef describes one layer of a clip. Missing opacity means 100 and a
// missing enabled flag means enabled.
type LayerDef struct {
	SourceType string         `json:"source_type" yaml:"source" toml:"source"`
	SourcePath string         `json:"source_path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	BlendMode  blend.Mode     `json:"blend_mode" yaml:"blend_mode,omitempty" toml:"blend_mode,omitempty"`
	Opacity    *float64       `json:"opacity,omitempty" yaml:"opacity,omitempty" toml:"opacity,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	FPS        float64        `json:"fps,omitempty" yaml:"fps,omitempty" toml:"fps,omitempty"`
	Params     map[string]any `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Effects    []effect.Spec  `json:"effects,omitempty" yaml:"effects,omitempty" toml:"effects,omitempty"`
}

func (d LayerDef) OpacityValue() float64 {
	if d.Opacity == nil {
		return 100
	}
	return *d.Opacity
}

func (d LayerDef) IsEnabled() bool { return d.Enabled == nil || *d.Enabled }

// Validate checks the clip's own invariants.
func (c Clip) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidClip)
	}
	if len(c.Layers) == 0 {
		return fmt.Errorf("%w: %s has no layers", ErrInvalidClip, c.ID)
	}
	for i, l := range c.Layers {
		if l.SourceType == "" {
			return fmt.Errorf("%w: %s layer %d has no source", ErrInvalidClip, c.ID, i)
		}
		if !l.BlendMode.Valid() {
			return fmt.Errorf("%w: %s layer %d: %v", ErrInvalidClip, c.ID, i, blend.ErrUnknownMode)
		}
		if op := l.OpacityValue(); op < 0 || op > 100 || op != op {
			return fmt.Errorf("%w: %s layer %d opacity %v outside [0,100]", ErrInvalidClip, c.ID, i, op)
		}
	}
	return nil
}

// Check validates the clip and resolves its source types and effects
// against the running registries.
func (c Clip) Check(sources interface{ Has(string) bool }, plugins *effect.Registry) error {
	if err := c.Validate(); err != nil {
		return err
	}
	check := func(specs []effect.Spec) error {
		for _, s := range specs {
			if err := plugins.ValidateSpec(s); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidClip, c.ID, err)
			}
		}
		return nil
	}
	if plugins != nil {
		if err := check(c.Effects); err != nil {
			return err
		}
	}
	for i, l := range c.Layers {
		if sources != nil && !sources.Has(l.SourceType) {
			return fmt.Errorf("%w: %s layer %d: unknown source type %q", ErrInvalidClip, c.ID, i, l.SourceType)
		}
		if plugins != nil {
			if err := check(l.Effects); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone deep-copies parameter maps and effect lists.
func (c Clip) Clone() Clip {
	out := Clip{ID: c.ID, Name: c.Name, Effects: effect.CloneSpecs(c.Effects)}
	out.Layers = make([]LayerDef, len(c.Layers))
	for i, l := range c.Layers {
		cp := l
		cp.Effects = effect.CloneSpecs(l.Effects)
		if l.Params != nil {
			cp.Params = make(map[string]any, len(l.Params))
			for k, v := range l.Params {
				cp.Params[k] = v
			}
		}
		if l.Opacity != nil {
			v := *l.Opacity
			cp.Opacity = &v
		}
		if l.Enabled != nil {
			v := *l.Enabled
			cp.Enabled = &v
		}
		out.Layers[i] = cp
	}
	return out
}

// Catalog is the read side the players use.
type Catalog interface {
	Clip(ctx context.Context, id string) (Clip, error)
	List(ctx context.Context) ([]Clip, error)
}

// Snapshot is the live state of one player, as reported for persistence.
type Snapshot struct {
	ID       string          `json:"id"`
	PlayerID string          `json:"player_id"`
	ClipID   string          `json:"clip_id,omitempty"`
	Cursor   int             `json:"cursor"`
	TakenAt  time.Time       `json:"taken_at"`
	Global   []effect.Spec   `json:"global_effects"`
	Layers   []LayerSnapshot `json:"layers"`
}

type LayerSnapshot struct {
	ID        int           `json:"id"`
	Source    string        `json:"source"`
	BlendMode blend.Mode    `json:"blend_mode"`
	Opacity   float64       `json:"opacity"`
	Enabled   bool          `json:"enabled"`
	Effects   []effect.Spec `json:"effects"`
}
