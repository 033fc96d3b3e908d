//go:build !tinygo

package hal

import "time"

// hostTime publishes one tick per elapsed millisecond of wall time. The
// runner calls advance once per frame; ticks nobody reads are dropped.
type hostTime struct {
	ch    chan uint64
	start time.Time
	sent  uint64
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 256)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

func (t *hostTime) advance() {
	if t.start.IsZero() {
		t.start = time.Now()
	}
	due := uint64(time.Since(t.start)/time.Millisecond) + 1
	for t.sent < due {
		t.sent++
		select {
		case t.ch <- t.sent:
		default:
		}
	}
}
