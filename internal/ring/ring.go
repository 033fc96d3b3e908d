// Package ring provides mask-based indexing over power-of-two sized buffers.
//
// A Ring never allocates and never moves its backing storage, so hardware
// (DMA) may write into the wrapped slice directly while the ring is only
// used to address it.
package ring

import "errors"

var ErrNotPow2 = errors.New("ring: length is not a power of two")

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Ring addresses buf with wraparound.
type Ring[T any] struct {
	buf  []T
	mask uint32
}

// Wrap uses buf as the ring storage. The slice is not copied.
func Wrap[T any](buf []T) (*Ring[T], error) {
	if !IsPow2(len(buf)) {
		return nil, ErrNotPow2
	}
	return &Ring[T]{buf: buf, mask: uint32(len(buf) - 1)}, nil
}

func (r *Ring[T]) Len() int              { return len(r.buf) }
func (r *Ring[T]) Index(i uint32) uint32 { return i & r.mask }

// At returns the element at i, wrapped.
func (r *Ring[T]) At(i uint32) T {
	return r.buf[i&r.mask]
}

// Prev returns the index before i.
func (r *Ring[T]) Prev(i uint32) uint32 {
	return (i - 1) & r.mask
}

// CopyFrom copies len(dst) elements starting at start into dst, walking forward
// and wrapping. It returns the number of elements copied, at most Len().
func (r *Ring[T]) CopyFrom(dst []T, start uint32) int {
	n := min(len(dst), len(r.buf))
	start &= r.mask
	first := copy(dst[:n], r.buf[start:])
	if first < n {
		copy(dst[first:n], r.buf[:n-first])
	}
	return n
}

// Clear zeroes the storage.
func (r *Ring[T]) Clear() {
	clear(r.buf)
}
