package output

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// DefaultDepth is the per-sink queue length.
const DefaultDepth = 2

type outlet struct {
	sink    Sink
	ch      chan *frame.Frame
	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
	log     zerolog.Logger
}

func (o *outlet) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for f := range o.ch {
		if err := o.sink.Write(f); err != nil {
			o.failed.Add(1)
			o.log.Warn().Err(err).Msg("sink write failed")
			continue
		}
		o.sent.Add(1)
	}
}

// Fanout hands every published frame to each sink on its own goroutine.
// Publish never blocks: a sink that is behind loses the new frame.
type Fanout struct {
	log   zerolog.Logger
	depth int

	mu     sync.RWMutex
	outs   []*outlet
	closed bool
	wg     sync.WaitGroup
}

func NewFanout(log zerolog.Logger, depth int, sinks ...Sink) *Fanout {
	if depth <= 0 {
		depth = DefaultDepth
	}
	f := &Fanout{log: log, depth: depth}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add starts delivering to s. It is a no-op after Close.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	o := &outlet{
		sink: s,
		ch:   make(chan *frame.Frame, f.depth),
		log:  f.log.With().Str("sink", s.Name()).Logger().Sample(&zerolog.BurstSampler{Burst: 3, Period: 10 * time.Second}),
	}
	f.outs = append(f.outs, o)
	f.wg.Add(1)
	go o.run(&f.wg)
}

func (f *Fanout) Publish(fr *frame.Frame) {
	if fr == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, o := range f.outs {
		select {
		case o.ch <- fr:
		default:
			o.dropped.Add(1)
		}
	}
}

func (f *Fanout) Stats() []Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Stats, len(f.outs))
	for i, o := range f.outs {
		out[i] = Stats{Sink: o.sink.Name(), Sent: o.sent.Load(), Dropped: o.dropped.Load(), Failed: o.failed.Load()}
	}
	return out
}

// Close drains the queues, waits for the writers and closes every sink.
func (f *Fanout) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for _, o := range f.outs {
		close(o.ch)
	}
	outs := f.outs
	f.mu.Unlock()

	f.wg.Wait()
	var errs []error
	for _, o := range outs {
		if err := o.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
