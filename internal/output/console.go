package output

import (
	"sync"
	"time"

	"periph.io/x/devices/v3/screen1d"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// ConsoleSink paints the strip as one line of ANSI colour on the terminal.
// It is the fallback when no SPI port is present.
type ConsoleSink struct {
	layout Layout
	every  time.Duration
	dev    *screen1d.Dev

	mu   sync.Mutex
	last time.Time
	buf  []byte
}

func NewConsoleSink(l Layout, every time.Duration) *ConsoleSink {
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	return &ConsoleSink{layout: l, every: every, dev: screen1d.New(&screen1d.Opts{X: l.Count()})}
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Write(f *frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Sub(c.last) < c.every {
		return nil
	}
	c.last = now
	c.buf = c.layout.Map(f, c.buf)
	_, err := c.dev.Write(c.buf)
	return err
}

func (c *ConsoleSink) Close() error { return c.dev.Halt() }
