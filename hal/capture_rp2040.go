//go:build tinygo && rp2040

package hal

import (
	"device/rp"
	"fmt"
	"machine"
	"math/bits"
	"runtime/interrupt"
	"runtime/volatile"
	"sync"
	"sync/atomic"
	"unsafe"

	pio "github.com/tinygo-org/pio/rp2-pio"
)

// Sampler programs. Each takes its sample count from the TX FIFO, waits for
// its trigger, shifts count+1 bytes of pins into the RX FIFO, raises IRQ 0
// and parks. Jump targets are relative to the load offset.
var samplerPrograms = map[SampleProgram][]uint16{
	ProgramUnconditional: {
		0x80a0, //  0: pull block
		0x6020, //  1: out x, 32
		0x4008, //  2: in pins, 8
		0x0042, //  3: jmp x--, 2
		0xc000, //  4: irq 0
		0x0005, //  5: jmp 5
	},
	ProgramTriggerHigh: {
		0x80a0, //  0: pull block
		0x6020, //  1: out x, 32
		0x20a0, //  2: wait 1 pin, N
		0x4008, //  3: in pins, 8
		0x0043, //  4: jmp x--, 3
		0xc000, //  5: irq 0
		0x0006, //  6: jmp 6
	},
	ProgramTriggerLow: {
		0x80a0, //  0: pull block
		0x6020, //  1: out x, 32
		0x2020, //  2: wait 0 pin, N
		0x4008, //  3: in pins, 8
		0x0043, //  4: jmp x--, 3
		0xc000, //  5: irq 0
		0x0006, //  6: jmp 6
	},
}

// Cycles per sample of the inner in/jmp loop.
const samplerLoopCycles = 2

const (
	pioIRQ0      = 1 << 0
	pioINTESM0   = 1 << 8
	dreqPIO0RX0  = 0x4
	dmaChannels  = 12
	maxRingBits  = 15
	abortSpinMax = 100000
)

// rp2040Capture is the PIO + DMA capture hardware. The sampler runs on PIO0
// state machine 0 reading eight consecutive pins starting at base.
type rp2040Capture struct {
	smp *rpSampler
	dma *rpDMA
	mem BigBuffer
}

func newRP2040Capture(base machine.Pin, memBytes, align int) *rp2040Capture {
	for i := machine.Pin(0); i < SampleChannels; i++ {
		(base + i).Configure(machine.PinConfig{Mode: pio.PIO0.PinMode()})
	}
	smp := &rpSampler{sm: pio.PIO0.StateMachine(0), base: base}
	smp.sm.TryClaim()
	activeSampler = smp
	irq := interrupt.New(rp.IRQ_PIO0_IRQ_0, func(interrupt.Interrupt) {
		pio.PIO0.ClearIRQ(pioIRQ0)
		if s := activeSampler; s != nil && s.handler != nil {
			s.handler()
		}
	})
	irq.Enable()
	dma := &rpDMA{}
	activeDMA = dma
	dmaIRQ := interrupt.New(rp.IRQ_DMA_IRQ_0, func(interrupt.Interrupt) {
		ints := rp.DMA.INTS0.Get()
		rp.DMA.INTS0.Set(ints)
		if d := activeDMA; d != nil {
			d.done.Add(uint32(bits.OnesCount32(ints)))
		}
	})
	dmaIRQ.Enable()
	return &rp2040Capture{
		smp: smp,
		dma: dma,
		mem: NewBigBuffer(memBytes, align),
	}
}

func (c *rp2040Capture) Sampler() Sampler  { return c.smp }
func (c *rp2040Capture) DMA() RingDMA      { return c.dma }
func (c *rp2040Capture) Memory() BigBuffer { return c.mem }

var activeSampler *rpSampler

type rpSampler struct {
	mu      sync.Mutex
	sm      pio.StateMachine
	base    machine.Pin
	prog    SampleProgram
	offset  uint8
	length  uint8
	count   uint32
	handler func()
}

func (s *rpSampler) Load(p SampleProgram, triggerPin uint8, freqHz float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prog != ProgramNone {
		return ErrProgramSpace
	}
	src, ok := samplerPrograms[p]
	if !ok {
		return fmt.Errorf("sampler: unknown program %s", p)
	}
	instr := make([]uint16, len(src))
	copy(instr, src)
	if p != ProgramUnconditional {
		// The wait index is relative to the IN pin base.
		instr[2] |= uint16(triggerPin % SampleChannels)
	}
	offset, err := pio.PIO0.AddProgram(instr, -1)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProgramSpace, err)
	}

	periodNs := uint32(1e9 / (float64(freqHz) * samplerLoopCycles))
	whole, frac, err := pio.ClkDivFromPeriod(periodNs, uint32(machine.CPUFrequency()))
	if err != nil {
		pio.PIO0.ClearProgramSection(offset, uint8(len(instr)))
		return fmt.Errorf("sampler: %g Hz: %w", freqHz, err)
	}

	cfg := pio.DefaultStateMachineConfig()
	cfg.SetInPins(s.base)
	cfg.SetInShift(false, true, 8)
	cfg.SetWrap(offset, offset+uint8(len(instr))-1)
	cfg.SetClkDivIntFrac(whole, frac)
	s.sm.Init(offset, cfg)

	s.prog = p
	s.offset = offset
	s.length = uint8(len(instr))
	return nil
}

func (s *rpSampler) Evict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prog == ProgramNone {
		return
	}
	s.sm.SetEnabled(false)
	s.sm.ClearFIFOs()
	pio.PIO0.ClearProgramSection(s.offset, s.length)
	s.prog = ProgramNone
}

func (s *rpSampler) Loaded() SampleProgram {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prog
}

func (s *rpSampler) SetCount(v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = v
}

func (s *rpSampler) Enable(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prog == ProgramNone {
		return
	}
	if !on {
		s.sm.SetEnabled(false)
		return
	}
	s.sm.ClearFIFOs()
	s.sm.Restart()
	s.sm.Exec(pio.EncodeJmp(s.offset, pio.JmpAlways))
	s.sm.TxPut(s.count)
	s.sm.SetEnabled(true)
}

func (s *rpSampler) SetCompletionHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

func (s *rpSampler) EnableIRQ(on bool) {
	pio.PIO0.ClearIRQ(pioIRQ0)
	if on {
		rp.PIO0.IRQ0_INTE.SetBits(pioINTESM0)
	} else {
		rp.PIO0.IRQ0_INTE.ClearBits(pioINTESM0)
	}
}

// DMA control register fields.
const (
	dmaCtrlEN        = 1 << 0
	dmaCtrlSize8     = 0 << 2
	dmaCtrlIncrWrite = 1 << 5
	dmaCtrlRingPos   = 6
	dmaCtrlRingSel   = 1 << 10
	dmaCtrlChainPos  = 11
	dmaCtrlTreqPos   = 15
	dmaCtrlBusy      = 1 << 24
)

//goland:noinspection GoSnakeCaseUsage
type dmaChannelHW struct {
	READ_ADDR   volatile.Register32
	WRITE_ADDR  volatile.Register32
	TRANS_COUNT volatile.Register32
	CTRL_TRIG   volatile.Register32
	AL1_CTRL    volatile.Register32
	_           [11]volatile.Register32
}

func dmaHW(ch uint8) *dmaChannelHW {
	chans := (*[dmaChannels]dmaChannelHW)(unsafe.Pointer(rp.DMA))
	return &chans[ch]
}

var (
	dmaClaimed uint16
	activeDMA  *rpDMA
)

type rpChannel struct {
	idx uint8
}

func (c rpChannel) ID() uint8 { return c.idx }

func (c rpChannel) Busy() bool {
	return dmaHW(c.idx).CTRL_TRIG.Get()&dmaCtrlBusy != 0
}

func (c rpChannel) Remaining() uint32 {
	return dmaHW(c.idx).TRANS_COUNT.Get()
}

type rpDMA struct {
	mu    sync.Mutex
	chans []rpChannel
	buf   []byte
	chunk int
	mask  uint32
	done  atomic.Uint32
}

func (d *rpDMA) Configure(buf []byte, chunkSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chans != nil {
		return ErrDMAConfigured
	}
	if chunkSize <= 0 || len(buf) == 0 || len(buf)%chunkSize != 0 || chunkSize&(chunkSize-1) != 0 {
		return ErrInvalidGeometry
	}
	ringBits := uint32(0)
	for 1<<ringBits < chunkSize {
		ringBits++
	}
	if ringBits > maxRingBits || uintptr(unsafe.Pointer(&buf[0]))%uintptr(chunkSize) != 0 {
		return ErrInvalidGeometry
	}

	n := len(buf) / chunkSize
	var picked []rpChannel
	for i := uint8(0); i < dmaChannels && len(picked) < n; i++ {
		if dmaClaimed&(1<<i) == 0 {
			picked = append(picked, rpChannel{idx: i})
		}
	}
	if len(picked) < n {
		return ErrNoChannels
	}
	for _, c := range picked {
		dmaClaimed |= 1 << c.idx
	}

	for i, c := range picked {
		next := picked[(i+1)%n]
		hw := dmaHW(c.idx)
		hw.READ_ADDR.Set(uint32(uintptr(unsafe.Pointer(&rp.PIO0.RXF0))))
		hw.WRITE_ADDR.Set(uint32(uintptr(unsafe.Pointer(&buf[i*chunkSize]))))
		hw.TRANS_COUNT.Set(uint32(chunkSize))
		hw.AL1_CTRL.Set(dmaCtrlEN | dmaCtrlSize8 | dmaCtrlIncrWrite |
			ringBits<<dmaCtrlRingPos | dmaCtrlRingSel |
			uint32(next.idx)<<dmaCtrlChainPos |
			dreqPIO0RX0<<dmaCtrlTreqPos)
	}
	d.chans = picked
	d.buf = buf
	d.chunk = chunkSize
	d.mask = 0
	for _, c := range picked {
		d.mask |= 1 << c.idx
	}
	// One interrupt per finished chunk feeds Completed.
	rp.DMA.INTS0.Set(d.mask)
	rp.DMA.INTE0.SetBits(d.mask)
	return nil
}

func (d *rpDMA) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.chans)
}

func (d *rpDMA) Channel(i int) DMAChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chans[i]
}

func (d *rpDMA) Arm(i int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, c := range d.chans {
		hw := dmaHW(c.idx)
		hw.WRITE_ADDR.Set(uint32(uintptr(unsafe.Pointer(&d.buf[k*d.chunk]))))
		hw.TRANS_COUNT.Set(uint32(d.chunk))
	}
	rp.DMA.INTS0.Set(d.mask)
	d.done.Store(0)
	rp.DMA.MULTI_CHAN_TRIGGER.Set(1 << d.chans[i].idx)
}

func (d *rpDMA) Completed() uint32 { return d.done.Load() }

func (d *rpDMA) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.abortLocked()
}

func (d *rpDMA) abortLocked() {
	var mask uint32
	for _, c := range d.chans {
		mask |= 1 << c.idx
	}
	if mask == 0 {
		return
	}
	// Disable chaining first so an aborted channel cannot retrigger its successor.
	for _, c := range d.chans {
		hw := dmaHW(c.idx)
		hw.AL1_CTRL.Set(hw.AL1_CTRL.Get() &^ dmaCtrlEN)
	}
	rp.DMA.CHAN_ABORT.Set(mask)
	for i := 0; i < abortSpinMax && rp.DMA.CHAN_ABORT.Get()&mask != 0; i++ {
	}
	// Restore the enables so the next Arm can trigger the ring again.
	for _, c := range d.chans {
		hw := dmaHW(c.idx)
		hw.AL1_CTRL.Set(hw.AL1_CTRL.Get() | dmaCtrlEN)
	}
}

func (d *rpDMA) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.abortLocked()
	rp.DMA.INTE0.ClearBits(d.mask)
	rp.DMA.INTS0.Set(d.mask)
	d.mask = 0
	for _, c := range d.chans {
		dmaHW(c.idx).AL1_CTRL.Set(0)
		dmaClaimed &^= 1 << c.idx
	}
	d.chans = nil
	d.buf = nil
	d.chunk = 0
}
