package kernel

import (
	"sync"
	"sync/atomic"
)

const maxStatusBytes = 64

// Status is a short status line published by the main core and rendered by
// the companion core. Readers detect changes through the sequence number.
type Status struct {
	mu  sync.Mutex
	seq atomic.Uint32
	buf [maxStatusBytes]byte
	n   int
}

// Set replaces the status text, truncating to the buffer size.
func (s *Status) Set(text string) uint32 {
	s.mu.Lock()
	s.n = copy(s.buf[:], text)
	s.mu.Unlock()
	return s.seq.Add(1)
}

// Seq returns the sequence number of the last Set.
func (s *Status) Seq() uint32 {
	return s.seq.Load()
}

// Get returns the current status text and its sequence number.
func (s *Status) Get() (text string, seq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buf[:s.n]), s.seq.Load()
}
