package source

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// Black is an endless black source. Layers fall back to it when their real
// source cannot start.
type Black struct {
	f     *frame.Frame
	delay time.Duration
}

func NewBlack(s Spec) *Black {
	w, h := s.size()
	return &Black{f: frame.Black(w, h), delay: s.interval()}
}

func (b *Black) Initialize() error                        { return nil }
func (b *Black) NextFrame() (*frame.Frame, time.Duration) { return b.f, b.delay }
func (b *Black) Reset()                                   {}
func (b *Black) Cleanup()                                 {}
func (b *Black) Name() string                             { return "black" }

var presets = map[string][3]uint8{
	"red":   {255, 0, 0},
	"green": {0, 255, 0},
	"blue":  {0, 0, 255},
	"white": {255, 255, 255},
	"black": {0, 0, 0},
}

// ParseColor accepts a preset name (Red, Green, Blue, White, Black) or #rrggbb.
func ParseColor(s string) ([3]uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := presets[s]; ok {
		return c, nil
	}
	var c [3]uint8
	if len(s) == 7 && s[0] == '#' {
		if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c[0], &c[1], &c[2]); err == nil {
			return c, nil
		}
	}
	return c, fmt.Errorf("source: bad colour %q", s)
}

// Solid fills the canvas with one colour. Optional "pulse_hz" modulates
// brightness.
type Solid struct {
	w, h    int
	c       [3]uint8
	pulseHz float64
	delay   time.Duration

	mu sync.Mutex
	n  int
	f  *frame.Frame
}

func NewSolid(s Spec) (*Solid, error) {
	c, err := ParseColor(s.String("color", "white"))
	if err != nil {
		return nil, err
	}
	w, h := s.size()
	return &Solid{w: w, h: h, c: c, pulseHz: s.Float("pulse_hz", 0), delay: s.interval()}, nil
}

func (s *Solid) Initialize() error { return nil }
func (s *Solid) Name() string      { return "solid" }
func (s *Solid) Cleanup()          {}

func (s *Solid) Reset() {
	s.mu.Lock()
	s.n = 0
	s.mu.Unlock()
}

func (s *Solid) NextFrame() (*frame.Frame, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pulseHz <= 0 {
		if s.f == nil {
			s.f = frame.Solid(s.w, s.h, s.c[0], s.c[1], s.c[2])
		}
		return s.f, s.delay
	}
	t := float64(s.n) * s.delay.Seconds()
	s.n++
	k := 0.5 + 0.5*math.Sin(2*math.Pi*s.pulseHz*t)
	return frame.Solid(s.w, s.h,
		uint8(float64(s.c[0])*k+0.5),
		uint8(float64(s.c[1])*k+0.5),
		uint8(float64(s.c[2])*k+0.5)), s.delay
}

// Gradient renders a spatial rainbow along "axis" (x or y) that drifts at
// "speed" cycles per second.
type Gradient struct {
	w, h  int
	axis  string
	speed float64
	delay time.Duration

	mu sync.Mutex
	n  int
}

func NewGradient(s Spec) *Gradient {
	w, h := s.size()
	return &Gradient{w: w, h: h, axis: s.String("axis", "x"), speed: s.Float("speed", 0), delay: s.interval()}
}

func (g *Gradient) Initialize() error { return nil }
func (g *Gradient) Name() string      { return "gradient" }
func (g *Gradient) Cleanup()          {}

func (g *Gradient) Reset() {
	g.mu.Lock()
	g.n = 0
	g.mu.Unlock()
}

func (g *Gradient) NextFrame() (*frame.Frame, time.Duration) {
	g.mu.Lock()
	t := float64(g.n) * g.delay.Seconds()
	g.n++
	g.mu.Unlock()

	f := frame.New(g.w, g.h, frame.RGB)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			v := float64(x) / float64(max(g.w-1, 1))
			if g.axis == "y" {
				v = float64(y) / float64(max(g.h-1, 1))
			}
			// simple hue-ish rotation
			phase := v*2*math.Pi + t*2*math.Pi*g.speed
			f.SetRGB(x, y,
				unit8(0.5+0.5*math.Sin(phase)),
				unit8(0.5+0.5*math.Sin(phase+2*math.Pi/3)),
				unit8(0.5+0.5*math.Sin(phase+4*math.Pi/3)))
		}
	}
	return f, g.delay
}

func unit8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
