// Package output delivers player frames to LED strips, the console, logs
// and preview clients.
package output

import (
	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// Sink is one output destination. Write may block; the Fanout keeps that
// off the render goroutine.
type Sink interface {
	Name() string
	Write(f *frame.Frame) error
	Close() error
}

// Stats are per-sink delivery counters.
type Stats struct {
	Sink    string `json:"sink"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}
