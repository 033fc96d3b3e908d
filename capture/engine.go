// Package capture is the triggered ring-buffer logic analyzer engine.
//
// An Engine owns one capture buffer split into power-of-two chunks, one DMA
// channel per chunk, chained in a circle and paced by a waveform program on
// the sampler. Arm starts an acquisition; IsDone drives the state machine
// and finishes it once the completion interrupt has fired. Samples are read
// back with Dump, ReadWindow or View while the engine is Idle.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"buspirate/hal"
	"buspirate/internal/ring"
	"buspirate/kernel"
)

// Owner is the name the engine claims the shared big buffer under.
const Owner = "logic analyzer"

// MsgAllocFailed is shown to the user when Setup fails.
const MsgAllocFailed = "Failed to allocate buffer. Is another capture already running?"

var (
	ErrResourceExhausted = errors.New("capture: resources exhausted")
	ErrGateTimeout       = errors.New("capture: companion core did not acknowledge")
	ErrInvalidArgument   = errors.New("capture: invalid argument")
)

// Handshaker is the cross-core rendezvous used around arming and completion.
type Handshaker interface {
	Handshake(ctx context.Context, kind kernel.Kind, arg uint32) (uint32, error)
}

// Indicator reflects the acquisition state on a status LED or line.
type Indicator interface {
	SetState(s State)
}

// Stats describes the last acquisition.
type Stats struct {
	FreqHz    float32
	Requested uint32
	// Captured is the number of valid samples behind WritePointer.
	Captured uint32
	Trigger  TriggerSpec
	Program  hal.SampleProgram
	End      EndReason
}

// Engine is the capture state machine. All methods are safe to call from
// one main-core context; the completion handler only raises a flag that the
// next poll consumes.
type Engine struct {
	mu  sync.Mutex
	hw  hal.Capture
	hs  Handshaker
	log hal.Logger
	ind Indicator
	cfg Config

	raw []byte
	buf *ring.Ring[byte]

	state       State
	wp          uint32
	initialTail uint32
	stats       Stats

	irq  atomic.Bool
	wake chan struct{}
}

// New returns an engine over hw. hs may be nil on single-core targets; log
// and ind may be nil.
func New(hw hal.Capture, hs Handshaker, log hal.Logger, ind Indicator, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hs == nil {
		hs = noHandshake{}
	}
	if log == nil {
		log = discard{}
	}
	if ind == nil {
		ind = noIndicator{}
	}
	return &Engine{
		hw:   hw,
		hs:   hs,
		log:  log,
		ind:  ind,
		cfg:  cfg,
		wake: make(chan struct{}, 1),
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Setup claims the capture buffer and the DMA channels. On failure nothing
// stays claimed and the error wraps ErrResourceExhausted. An engine that is
// already set up belongs to whoever set it up, so a second Setup fails with
// hal.ErrBufferInUse and leaves it untouched.
func (e *Engine) Setup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.raw != nil {
		return fmt.Errorf("%w: buffer: %w", ErrResourceExhausted, hal.ErrBufferInUse)
	}
	return e.setupLocked()
}

func (e *Engine) setupLocked() error {
	if e.raw != nil {
		return nil
	}
	n := e.cfg.BufferLen()
	mem := e.hw.Memory()
	raw, err := mem.Claim(Owner, n)
	if err != nil {
		return fmt.Errorf("%w: buffer: %w", ErrResourceExhausted, err)
	}
	buf, err := ring.Wrap(raw)
	if err != nil {
		mem.Release(Owner)
		return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}
	if err := e.hw.DMA().Configure(raw, e.cfg.ChunkSize); err != nil {
		mem.Release(Owner)
		return fmt.Errorf("%w: dma: %w", ErrResourceExhausted, err)
	}
	e.raw = raw
	e.buf = buf
	e.state = Idle
	e.wp = 0
	e.stats = Stats{}
	e.irq.Store(false)
	e.hw.Sampler().SetCompletionHandler(e.onComplete)
	return nil
}

// Ready reports whether Setup has succeeded and Cleanup has not run since.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.raw != nil
}

// Cleanup tears down any running acquisition and releases the buffer, the
// DMA channels and the resident program. It is a no-op if not set up.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanupLocked()
}

func (e *Engine) cleanupLocked() {
	if e.raw == nil {
		return
	}
	if e.state != Idle {
		e.finishLocked(EndAbort)
	}
	s := e.hw.Sampler()
	s.SetCompletionHandler(nil)
	s.EnableIRQ(false)
	s.Enable(false)
	s.Evict()
	e.hw.DMA().Release()
	e.hw.Memory().Release(Owner)
	e.raw = nil
	e.buf = nil
	e.state = Idle
	e.wp = 0
}

// Arm starts an acquisition of samples samples at freqHz. A zero trigger
// mask samples immediately; otherwise sampling starts once the lowest
// masked pin reaches the level given by its direction bit.
//
// Arming a set-up engine that is already armed or holds a finished capture
// restarts from scratch, the same as Cleanup, Setup, Arm.
func (e *Engine) Arm(freqHz float32, samples uint32, mask, dir uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.raw == nil {
		panic("capture: arm before setup")
	}
	if samples == 0 || !(freqHz > 0) {
		return fmt.Errorf("%w: %d samples at %g Hz", ErrInvalidArgument, samples, freqHz)
	}

	// Tear down any running acquisition and reset the channel set so every
	// arm starts from channel 0.
	e.cleanupLocked()
	if err := e.setupLocked(); err != nil {
		return err
	}

	trig := TriggerSpec{Mask: mask, Direction: dir}
	prog, pin := trig.Program()
	s := e.hw.Sampler()
	s.Evict()
	if err := s.Load(prog, pin, freqHz); err != nil {
		e.cleanupLocked()
		return fmt.Errorf("%w: sampler: %w", ErrResourceExhausted, err)
	}
	e.buf.Clear()
	e.wp = 0
	e.irq.Store(false)
	select {
	case <-e.wake:
	default:
	}
	e.stats = Stats{FreqHz: freqHz, Requested: samples, Trigger: trig, Program: prog}

	if _, err := e.handshake(kernel.MsgCaptureArm, samples); err != nil {
		s.Evict()
		return err
	}

	dma := e.hw.DMA()
	s.SetCount(samples - 1)
	dma.Arm(0)
	e.initialTail = dma.Channel(0).Remaining()
	s.EnableIRQ(true)
	s.Enable(true)
	e.setState(ArmedInit)
	return nil
}

// IsDone polls the acquisition and reports whether the engine is Idle.
// It never blocks on the hardware; the companion handshake after completion
// is the only wait.
func (e *Engine) IsDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pollLocked()
	return e.state == Idle
}

func (e *Engine) pollLocked() {
	if e.irq.Swap(false) && e.state != Idle {
		e.finishLocked(EndComplete)
		return
	}
	switch e.state {
	case ArmedInit:
		e.setState(Armed)
	case Armed:
		if e.hw.DMA().Channel(0).Remaining() != e.initialTail {
			e.setState(Capturing)
		}
	}
}

// Wait polls until the acquisition finishes. If ctx ends first the capture
// is cancelled and ctx.Err() returned.
func (e *Engine) Wait(ctx context.Context) error {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for !e.IsDone() {
		select {
		case <-ctx.Done():
			e.Cancel()
			return ctx.Err()
		case <-e.wake:
		case <-t.C:
		}
	}
	return nil
}

// Stop force-completes a running acquisition through the normal completion
// path. The ring then holds everything sampled so far.
func (e *Engine) Stop() {
	e.end(EndStop)
}

// Cancel abandons a running acquisition. The hardware is torn down exactly
// as on completion so nothing is left armed.
func (e *Engine) Cancel() {
	e.end(EndCancel)
}

func (e *Engine) end(r EndReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.raw == nil || e.state == Idle {
		return
	}
	e.finishLocked(r)
}

// State returns the current state without polling.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns the statistics of the last acquisition.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// onComplete runs in interrupt context.
func (e *Engine) onComplete() {
	e.irq.Store(true)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) finishLocked(r EndReason) {
	s := e.hw.Sampler()
	s.EnableIRQ(false)
	s.Enable(false)
	s.Evict()
	if _, err := e.handshake(kernel.MsgCaptureDone, uint32(r)); err != nil {
		e.log.WriteLineString("capture: " + err.Error())
	}

	dma := e.hw.DMA()
	produced, resolved := e.resolveTailLocked()
	dma.Abort()
	e.irq.Store(false)

	n := uint64(e.buf.Len())
	switch {
	case !resolved && r != EndComplete:
		e.stats.Captured = 0
	case r == EndComplete:
		e.stats.Captured = uint32(min(uint64(e.stats.Requested), n))
	default:
		e.stats.Captured = uint32(min(produced, uint64(e.stats.Requested), n))
	}
	e.stats.End = r
	e.setState(Idle)
}

// resolveTailLocked points wp at the newest sample and returns how many
// samples were written since Arm, counting ring wraps.
func (e *Engine) resolveTailLocked() (uint64, bool) {
	dma := e.hw.DMA()
	chunk := uint64(e.cfg.ChunkSize)
	for i := 0; i < dma.Count(); i++ {
		ch := dma.Channel(i)
		if !ch.Busy() {
			continue
		}
		rem := ch.Remaining()
		e.wp = e.buf.Index(TailIndex(i, rem, e.cfg.ChunkSize))
		return uint64(dma.Completed())*chunk + chunk - uint64(min(rem, uint32(chunk))), true
	}
	e.log.WriteLineString("capture: tail unresolved: no busy channel")
	return 0, false
}

// TailIndex is the absolute index of the last sample written when channel k
// is in flight with remaining transfers left in a chunk of chunkSize.
// The transfer counter is decremented before the write lands, hence the
// extra -1. The result is not masked.
func TailIndex(k int, remaining uint32, chunkSize int) uint32 {
	return uint32(k*chunkSize) + (uint32(chunkSize) - remaining - 1)
}

func (e *Engine) handshake(kind kernel.Kind, arg uint32) (uint32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.GateTimeout)
	defer cancel()
	v, err := e.hs.Handshake(ctx, kind, arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrGateTimeout, kind, err)
	}
	return v, nil
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.ind.SetState(s)
}

type noHandshake struct{}

func (noHandshake) Handshake(context.Context, kernel.Kind, uint32) (uint32, error) { return 0, nil }

type noIndicator struct{}

func (noIndicator) SetState(State) {}

type discard struct{}

func (discard) WriteLineString(string) {}
func (discard) WriteLineBytes([]byte)  {}
