package kernel

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Companion is the work loop run on the second core.
type Companion interface {
	// Handle services a gate request and returns the ack argument.
	Handle(msg Message) uint32
	// Idle runs between gate polls.
	Idle()
}

// System is the dual-core runtime state: the cross-core gate, the shared
// status line and the timebase.
type System struct {
	gate   Gate
	status Status
	ticks  atomic.Uint64
}

// NewSystem creates a runtime instance.
func NewSystem() *System {
	return &System{}
}

// StartTick follows src, a stream of millisecond tick counts, until ctx
// is done. A nil src is replaced by a local 1ms ticker.
func (s *System) StartTick(ctx context.Context, src <-chan uint64) {
	if src == nil {
		go s.countTicks(ctx)
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-src:
				if !ok {
					return
				}
				s.ticks.Store(v)
			}
		}
	}()
}

func (s *System) countTicks(ctx context.Context) {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.ticks.Add(1)
		}
	}
}

// Ticks returns the current tick count (1ms per tick).
func (s *System) Ticks() uint64 {
	return s.ticks.Load()
}

func (s *System) Gate() *Gate     { return &s.gate }
func (s *System) Status() *Status { return &s.status }

// RunCompanion runs c until ctx is done. It blocks; callers start it on the
// second core (a goroutine on hosted targets).
func (s *System) RunCompanion(ctx context.Context, c Companion) {
	for ctx.Err() == nil {
		if s.gate.Poll(c.Handle) {
			continue
		}
		c.Idle()
		s.Yield()
	}
}

// Yield yields execution to let other tasks run.
func (s *System) Yield() {
	runtime.Gosched()
}
