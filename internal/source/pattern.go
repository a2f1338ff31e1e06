package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// Pattern is a calibration pattern kind.
type Pattern string

const (
	IndexSweep Pattern = "index_sweep"
	RGBTest    Pattern = "rgb_channels"
	RowSweep   Pattern = "row_sweep"
)

// TestPattern steps through a calibration pattern and ends when it is done.
// Useful for checking strip wiring and colour order.
type TestPattern struct {
	kind  Pattern
	w, h  int
	delay time.Duration

	mu   sync.Mutex
	step int
}

func NewTestPattern(s Spec) (*TestPattern, error) {
	k := Pattern(s.String("pattern", string(IndexSweep)))
	switch k {
	case IndexSweep, RGBTest, RowSweep:
	default:
		return nil, fmt.Errorf("source: unknown test pattern %q", k)
	}
	w, h := s.size()
	return &TestPattern{kind: k, w: w, h: h, delay: s.interval()}, nil
}

func (p *TestPattern) Initialize() error { return nil }
func (p *TestPattern) Cleanup()          {}
func (p *TestPattern) Name() string      { return "testpattern:" + string(p.kind) }

func (p *TestPattern) Reset() {
	p.mu.Lock()
	p.step = 0
	p.mu.Unlock()
}

// Steps is the number of frames before the pattern ends.
func (p *TestPattern) Steps() int {
	switch p.kind {
	case IndexSweep:
		return p.w * p.h
	case RGBTest:
		return 3
	case RowSweep:
		return p.h
	}
	return 0
}

func (p *TestPattern) NextFrame() (*frame.Frame, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.step >= p.Steps() {
		return nil, 0
	}
	f := frame.Black(p.w, p.h)
	n := p.w * p.h
	switch p.kind {
	case IndexSweep:
		i := p.step * 3
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = 255, 255, 255
	case RGBTest:
		phase := p.step % 3
		for i := 0; i < n; i++ {
			f.Pix[i*3+phase] = 255
		}
	case RowSweep:
		y := p.step
		for x := 0; x < p.w; x++ {
			f.SetRGB(x, y, 0, 255, 255) // cyan
		}
	}
	p.step++
	return f, p.delay
}
