package hal

import (
	"context"
	"sync"
	"time"
)

// SampleSource produces the level of all channels at a sample tick.
type SampleSource interface {
	Sample(tick uint64) uint8
}

// SampleFunc adapts a function to SampleSource.
type SampleFunc func(tick uint64) uint8

func (f SampleFunc) Sample(tick uint64) uint8 { return f(tick) }

// SimConfig configures the simulated capture hardware.
type SimConfig struct {
	// Channels is the number of DMA channels available to claim.
	Channels int
	// MemoryBytes sizes the shared big buffer.
	MemoryBytes int
	Source      SampleSource
	// MaxSamplesPerMs caps free-running mode.
	MaxSamplesPerMs int
	// EnableBurst samples are taken the moment the sampler is enabled,
	// before Enable returns to the caller.
	EnableBurst int
}

// DefaultSimConfig mirrors the RP2040: 12 DMA channels, 128 KiB capture memory.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Channels:        12,
		MemoryBytes:     128 * 1024,
		Source:          CounterSource(),
		MaxSamplesPerMs: 1 << 14,
	}
}

type simChannel struct {
	id        uint8
	busy      bool
	remaining uint32
}

func (c *simChannel) ID() uint8         { return c.id }
func (c *simChannel) Busy() bool        { return c.busy }
func (c *simChannel) Remaining() uint32 { return c.remaining }

// SimCapture is a deterministic software model of the PIO sampler and the
// chained DMA ring. Samples are produced by Step (or Run) rather than by a
// clock, so tests control exactly when the trigger fires and the ring fills.
type SimCapture struct {
	mu  sync.Mutex
	cfg SimConfig
	mem BigBuffer

	tick uint64

	prog      SampleProgram
	trigPin   uint8
	freqHz    float32
	count     uint32
	enabled   bool
	triggered bool
	left      uint32
	irqOn     bool
	handler   func()

	buf    []byte
	chunk  int
	chans  []simChannel
	active int
	inUse  int
	done   uint32
}

// NewSimCapture returns simulated capture hardware.
func NewSimCapture(cfg SimConfig) *SimCapture {
	def := DefaultSimConfig()
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if cfg.MemoryBytes <= 0 {
		cfg.MemoryBytes = def.MemoryBytes
	}
	if cfg.Source == nil {
		cfg.Source = def.Source
	}
	if cfg.MaxSamplesPerMs <= 0 {
		cfg.MaxSamplesPerMs = def.MaxSamplesPerMs
	}
	return &SimCapture{
		cfg:    cfg,
		mem:    NewBigBuffer(cfg.MemoryBytes, 0),
		active: -1,
	}
}

func (s *SimCapture) Sampler() Sampler  { return (*simSampler)(s) }
func (s *SimCapture) DMA() RingDMA      { return (*simDMA)(s) }
func (s *SimCapture) Memory() BigBuffer { return s.mem }

// SetSource replaces the sample source.
func (s *SimCapture) SetSource(src SampleSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Source = src
}

// Tick returns the number of sample ticks elapsed.
func (s *SimCapture) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// FreqHz returns the sample rate of the resident program.
func (s *SimCapture) FreqHz() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freqHz
}

// Step advances the simulation by n sample ticks. It returns the number of
// samples written to the ring. The completion handler, if enabled, runs
// after the step that exhausts the program's count.
func (s *SimCapture) Step(n int) int {
	s.mu.Lock()
	written, fire := s.stepLocked(n)
	h := s.handler
	s.mu.Unlock()

	if fire {
		h()
	}
	return written
}

func (s *SimCapture) stepLocked(n int) (written int, fire bool) {
	for i := 0; i < n; i++ {
		v := s.cfg.Source.Sample(s.tick)
		s.tick++
		if !s.enabled || s.left == 0 {
			continue
		}
		if !s.triggered {
			level := v&(1<<s.trigPin) != 0
			switch {
			case s.prog == ProgramTriggerHigh && level:
				s.triggered = true
			case s.prog == ProgramTriggerLow && !level:
				s.triggered = true
			}
			if !s.triggered {
				continue
			}
		}
		// With no channel draining the FIFO the program stalls.
		if !s.push(v) {
			continue
		}
		written++
		s.left--
		if s.left == 0 {
			fire = s.irqOn && s.handler != nil
			break
		}
	}
	return written, fire
}

func (s *SimCapture) push(v uint8) bool {
	if s.active < 0 {
		return false
	}
	ch := &s.chans[s.active]
	off := s.active*s.chunk + (s.chunk - int(ch.remaining))
	s.buf[off] = v
	ch.remaining--
	if ch.remaining == 0 {
		s.done++
		ch.busy = false
		next := (s.active + 1) % len(s.chans)
		s.chans[next].busy = true
		s.chans[next].remaining = uint32(s.chunk)
		s.active = next
	}
	return true
}

// Run steps the simulation in real time at the resident program's rate
// until ctx is done.
func (s *SimCapture) Run(ctx context.Context) {
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	var acc float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			acc += float64(s.FreqHz()) / 1000
			n := int(acc)
			acc -= float64(n)
			if n > s.cfg.MaxSamplesPerMs {
				n = s.cfg.MaxSamplesPerMs
			}
			if n > 0 {
				s.Step(n)
			}
		}
	}
}

type simSampler SimCapture

func (p *simSampler) Load(prog SampleProgram, triggerPin uint8, freqHz float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prog != ProgramNone {
		return ErrProgramSpace
	}
	p.prog = prog
	p.trigPin = triggerPin % SampleChannels
	p.freqHz = freqHz
	p.enabled = false
	p.left = 0
	return nil
}

func (p *simSampler) Evict() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prog = ProgramNone
	p.enabled = false
	p.left = 0
}

func (p *simSampler) Loaded() SampleProgram {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prog
}

func (p *simSampler) SetCount(v uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = v
}

func (p *simSampler) Enable(on bool) {
	p.mu.Lock()
	if p.prog == ProgramNone {
		p.mu.Unlock()
		return
	}
	start := on && !p.enabled
	if start {
		p.left = p.count + 1
		p.triggered = p.prog == ProgramUnconditional
	}
	p.enabled = on
	fire := false
	if start && p.cfg.EnableBurst > 0 {
		_, fire = (*SimCapture)(p).stepLocked(p.cfg.EnableBurst)
	}
	h := p.handler
	p.mu.Unlock()

	if fire {
		h()
	}
}

func (p *simSampler) SetCompletionHandler(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = fn
}

func (p *simSampler) EnableIRQ(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.irqOn = on
}

type simDMA SimCapture

func (d *simDMA) Configure(buf []byte, chunkSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chans != nil {
		return ErrDMAConfigured
	}
	if chunkSize <= 0 || len(buf) == 0 || len(buf)%chunkSize != 0 {
		return ErrInvalidGeometry
	}
	n := len(buf) / chunkSize
	if d.inUse+n > d.cfg.Channels {
		return ErrNoChannels
	}
	d.inUse += n
	d.buf = buf
	d.chunk = chunkSize
	d.chans = make([]simChannel, n)
	for i := range d.chans {
		d.chans[i] = simChannel{id: uint8(i), remaining: uint32(chunkSize)}
	}
	d.active = -1
	return nil
}

func (d *simDMA) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.chans)
}

// Channel returns a snapshot of channel i.
func (d *simDMA) Channel(i int) DMAChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.chans[i]
	return &c
}

func (d *simDMA) Arm(i int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chans[i].busy = true
	d.chans[i].remaining = uint32(d.chunk)
	d.active = i
	d.done = 0
}

func (d *simDMA) Completed() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *simDMA) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.chans {
		d.chans[i].busy = false
	}
	d.active = -1
}

func (d *simDMA) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inUse -= len(d.chans)
	d.chans = nil
	d.buf = nil
	d.chunk = 0
	d.active = -1
}

// SetBusy forces the busy/remaining state of channel i. Tests use it to
// exercise tail resolution directly.
func (s *SimCapture) SetBusy(i int, busy bool, remaining uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chans[i].busy = busy
	s.chans[i].remaining = remaining
	if busy {
		s.active = i
	}
}

// Hog claims n channels on behalf of another peripheral.
func (s *SimCapture) Hog(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inUse += n
}
