package player

import (
	"context"
	"time"
)

const minDelay = time.Millisecond

// Run drives Tick at the clip's frame rate until ctx ends. The base layer's
// delay sets the interval when it reports one; time spent producing the
// frame is subtracted from the wait.
func (p *Player) Run(ctx context.Context) error {
	timer := time.NewTimer(p.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(0)
		case <-timer.C:
			start := time.Now()
			_, d := p.Tick()
			if d <= 0 {
				d = p.interval()
			}
			d -= time.Since(start)
			if d < minDelay {
				d = minDelay
			}
			timer.Reset(d)
		}
	}
}
