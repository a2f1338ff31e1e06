package output

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// SimSink logs a compact summary of the frames it is given: the average
// colour and the first pixel. Useful headless.
type SimSink struct {
	name  string
	log   zerolog.Logger
	every time.Duration
	count atomic.Uint64
	last  atomic.Int64
}

func NewSimSink(name string, log zerolog.Logger, every time.Duration) *SimSink {
	if name == "" {
		name = "sim"
	}
	return &SimSink{name: name, log: log, every: every}
}

func (s *SimSink) Name() string { return s.name }

// Count is the number of frames seen.
func (s *SimSink) Count() uint64 { return s.count.Load() }

func (s *SimSink) Write(f *frame.Frame) error {
	n := s.count.Add(1)
	now := time.Now().UnixNano()
	if s.every > 0 && now-s.last.Load() < int64(s.every) {
		return nil
	}
	s.last.Store(now)
	avg, first := Summary(f)
	s.log.Debug().
		Uint64("frame", n).
		Floats64("avg", avg[:]).
		Uints8("first", first[:]).
		Msg("frame")
	return nil
}

func (s *SimSink) Close() error { return nil }

// Summary returns the mean colour and the top-left pixel of f.
func Summary(f *frame.Frame) (avg [3]float64, first [3]uint8) {
	if f == nil || f.Pixels() == 0 {
		return
	}
	var r, g, b float64
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			pr, pg, pb := f.RGBAt(x, y)
			r += float64(pr)
			g += float64(pg)
			b += float64(pb)
		}
	}
	n := float64(f.Pixels())
	avg = [3]float64{r / n, g / n, b / n}
	first[0], first[1], first[2] = f.RGBAt(0, 0)
	return
}
