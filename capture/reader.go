package capture

import (
	"fmt"

	"buspirate/internal/ring"
)

// Reader addresses a finished capture. It is a snapshot handle: it must not
// be retained past the View callback that produced it.
type Reader struct {
	buf   *ring.Ring[byte]
	wp    uint32
	stats Stats
}

// WritePointer is the index of the most recent sample.
func (r Reader) WritePointer() uint32 { return r.wp }

// Len is the ring length in samples.
func (r Reader) Len() int { return r.buf.Len() }

// Captured is the number of valid samples, newest first from WritePointer.
func (r Reader) Captured() uint32 { return r.stats.Captured }

// Stats describes the acquisition the reader belongs to.
func (r Reader) Stats() Stats { return r.stats }

// At returns the sample at absolute index i.
func (r Reader) At(i uint32) uint8 { return r.buf.At(i) }

// DumpNext returns the sample at cursor and the cursor one step older.
func (r Reader) DumpNext(cursor uint32) (sample uint8, next uint32) {
	return r.buf.At(cursor), r.buf.Prev(cursor)
}

// WindowStart is the absolute index of the first sample of a count-long
// window positioned offset samples after the oldest of the last count.
func (r Reader) WindowStart(offset, count uint32) uint32 {
	return r.buf.Index(r.wp - count + offset)
}

// ReadWindow copies len(dst) samples starting at WindowStart(offset, count)
// into dst, oldest first. It returns the number copied.
func (r Reader) ReadWindow(dst []byte, offset, count uint32) int {
	return r.buf.CopyFrom(dst, r.WindowStart(offset, count))
}

// Bit reports the level of channel ch at absolute index i.
func (r Reader) Bit(i uint32, ch uint8) bool {
	return r.buf.At(i)&(1<<ch) != 0
}

func (e *Engine) readerLocked() Reader {
	return Reader{buf: e.buf, wp: e.wp, stats: e.stats}
}

func (e *Engine) assertIdleLocked(op string) {
	if e.raw == nil {
		panic(fmt.Sprintf("capture: %s before setup", op))
	}
	if e.state != Idle {
		panic(fmt.Sprintf("capture: %s while %s", op, e.state))
	}
}

// WritePointer returns the index of the most recent sample.
func (e *Engine) WritePointer() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wp
}

// Dump returns the sample at *cursor and steps *cursor one sample back.
// Start with *cursor = WritePointer() to walk newest to oldest. It panics
// unless the engine is set up and Idle.
func (e *Engine) Dump(cursor *uint32) uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assertIdleLocked("dump")
	v, next := e.readerLocked().DumpNext(*cursor)
	*cursor = next
	return v
}

// ReadWindow copies a window of the finished capture into dst. See
// Reader.ReadWindow. It panics unless the engine is set up and Idle.
func (e *Engine) ReadWindow(dst []byte, offset, count uint32) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assertIdleLocked("read window")
	return e.readerLocked().ReadWindow(dst, offset, count)
}

// View runs fn with a Reader if the engine is set up and Idle. It never
// waits for the engine: if another context holds it, View returns false
// without calling fn.
func (e *Engine) View(fn func(Reader)) bool {
	if !e.mu.TryLock() {
		return false
	}
	defer e.mu.Unlock()
	if e.raw == nil || e.state != Idle {
		return false
	}
	fn(e.readerLocked())
	return true
}

// Snapshot returns a copy of the captured samples, oldest first.
func (r Reader) Snapshot() []byte {
	out := make([]byte, r.stats.Captured)
	r.ReadWindow(out, 1, r.stats.Captured)
	return out
}
