package hal

import (
	"fmt"
	"sync"
	"unsafe"
)

type bigBuffer struct {
	mu    sync.Mutex
	raw   []byte
	buf   []byte
	owner string
}

// NewBigBuffer reserves size bytes aligned to align (a power of two, or 0).
// Ring-wrapped DMA writes require the buffer to be aligned to the chunk size.
func NewBigBuffer(size, align int) BigBuffer {
	if align <= 1 {
		return &bigBuffer{buf: make([]byte, size)}
	}
	raw := make([]byte, size+align)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	off := int((uintptr(align) - addr%uintptr(align)) % uintptr(align))
	return &bigBuffer{raw: raw, buf: raw[off : off+size : off+size]}
}

func (b *bigBuffer) Claim(owner string, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner != "" {
		return nil, fmt.Errorf("%w: held by %s", ErrBufferInUse, b.owner)
	}
	if n > len(b.buf) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrBufferTooSmall, n, len(b.buf))
	}
	b.owner = owner
	return b.buf[:n:n], nil
}

func (b *bigBuffer) Release(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner == owner {
		b.owner = ""
	}
}

func (b *bigBuffer) Owner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner
}
