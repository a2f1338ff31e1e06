package sequencer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var ErrEmptyProgram = errors.New("sequencer: program has no slots")

// Ease shapes the segment that starts at a keyframe. Empty means Linear.
type Ease string

const (
	Linear Ease = "linear"
	Smooth Ease = "smooth"
	Cubic  Ease = "cubic"
)

func (e Ease) valid() bool {
	switch e {
	case "", Linear, Smooth, Cubic:
		return true
	}
	return false
}

// shape maps segment progress u, clamped to [0,1].
func (e Ease) shape(u float64) float64 {
	u = math.Max(0, math.Min(1, u))
	switch e {
	case Smooth:
		return u * u * (3 - 2*u)
	case Cubic:
		return u * u * u * (u*(6*u-15) + 10)
	}
	return u
}

// Keyframe is a value at time T (seconds into the slot).
type Keyframe struct {
	T    float64 `json:"t" yaml:"t" toml:"t"`
	V    float64 `json:"v" yaml:"v" toml:"v"`
	Ease Ease    `json:"ease,omitempty" yaml:"ease,omitempty" toml:"ease,omitempty"`
}

// Envelope is a list of keyframes sorted by T.
type Envelope []Keyframe

// At samples the envelope t seconds into its slot. Outside the keys it
// holds the nearest end value; an empty envelope is 0.
func (e Envelope) At(t float64) float64 {
	n := len(e)
	switch {
	case n == 0:
		return 0
	case t <= e[0].T:
		return e[0].V
	case t >= e[n-1].T:
		return e[n-1].V
	}
	i := sort.Search(n, func(i int) bool { return e[i].T > t })
	a, b := e[i-1], e[i]
	return a.V + (b.V-a.V)*a.Ease.shape((t-a.T)/(b.T-a.T))
}

// Slot is one section of the show. Slot i maps to playlist index i on every
// player. Envelope keys are "<plugin>.<param>".
type Slot struct {
	Name      string              `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	DurationS float64             `json:"duration_s" yaml:"duration_s" toml:"duration_s"`
	Envelopes map[string]Envelope `json:"envelopes,omitempty" yaml:"envelopes,omitempty" toml:"envelopes,omitempty"`
}

// Program is the full slot list.
type Program struct {
	Loop  bool   `json:"loop,omitempty" yaml:"loop,omitempty" toml:"loop,omitempty"`
	Slots []Slot `json:"slots" yaml:"slots" toml:"slots"`
}

// SplitKey splits "<plugin>.<param>".
func SplitKey(key string) (plugin, param string, ok bool) {
	plugin, param, ok = strings.Cut(key, ".")
	if !ok || plugin == "" || param == "" {
		return "", "", false
	}
	return plugin, param, true
}

// Validate checks durations and envelope keys.
func (p Program) Validate() error {
	if len(p.Slots) == 0 {
		return ErrEmptyProgram
	}
	for i, s := range p.Slots {
		if s.DurationS <= 0 {
			return fmt.Errorf("sequencer: slot %d: duration_s must be > 0", i)
		}
		for key, env := range s.Envelopes {
			if _, _, ok := SplitKey(key); !ok {
				return fmt.Errorf("sequencer: slot %d: envelope key %q is not plugin.param", i, key)
			}
			for _, k := range env {
				if !k.Ease.valid() {
					return fmt.Errorf("sequencer: slot %d: %s: unknown ease %q", i, key, k.Ease)
				}
			}
		}
	}
	return nil
}

// normalized returns a copy with every envelope sorted by time.
func (p Program) normalized() Program {
	out := Program{Loop: p.Loop, Slots: make([]Slot, len(p.Slots))}
	for i, s := range p.Slots {
		ns := Slot{Name: s.Name, DurationS: s.DurationS}
		if len(s.Envelopes) > 0 {
			ns.Envelopes = make(map[string]Envelope, len(s.Envelopes))
			for k, env := range s.Envelopes {
				e := append(Envelope(nil), env...)
				sort.SliceStable(e, func(a, b int) bool { return e[a].T < e[b].T })
				ns.Envelopes[k] = e
			}
		}
		out.Slots[i] = ns
	}
	return out
}

func (p Program) total() float64 {
	t := 0.0
	for _, s := range p.Slots {
		t += s.DurationS
	}
	return t
}

type State string

const (
	Idle    State = "idle"
	Running State = "running"
	Paused  State = "paused"
)
