package hal

import "errors"

// SampleChannels is the number of digital channels sampled per tick.
const SampleChannels = 8

var (
	ErrNoChannels      = errors.New("dma: not enough free channels")
	ErrDMAConfigured   = errors.New("dma: already configured")
	ErrProgramSpace    = errors.New("sampler: program store occupied")
	ErrBufferInUse     = errors.New("memory: buffer in use")
	ErrBufferTooSmall  = errors.New("memory: buffer too small")
	ErrInvalidGeometry = errors.New("dma: buffer is not a whole number of chunks")
)

// SampleProgram selects one of the fixed waveform programs.
type SampleProgram uint8

const (
	ProgramNone SampleProgram = iota
	// ProgramUnconditional samples from the moment it is enabled.
	ProgramUnconditional
	// ProgramTriggerHigh waits for the trigger pin to read high.
	ProgramTriggerHigh
	// ProgramTriggerLow waits for the trigger pin to read low.
	ProgramTriggerLow
)

func (p SampleProgram) String() string {
	switch p {
	case ProgramNone:
		return "none"
	case ProgramUnconditional:
		return "unconditional"
	case ProgramTriggerHigh:
		return "trigger-high"
	case ProgramTriggerLow:
		return "trigger-low"
	default:
		return "unknown"
	}
}

// Sampler runs a waveform program producing one 8-bit sample per tick into a
// FIFO drained by RingDMA. Only one program may be resident at a time.
type Sampler interface {
	// Load places p in the instruction store. It fails with ErrProgramSpace if
	// a program is already resident.
	Load(p SampleProgram, triggerPin uint8, freqHz float32) error
	// Evict stops and removes the resident program, if any.
	Evict()
	Loaded() SampleProgram
	// SetCount writes the count register; the program then produces v+1
	// samples after its trigger condition is met.
	SetCount(v uint32)
	Enable(on bool)
	// SetCompletionHandler installs the completion interrupt handler. fn runs
	// in interrupt context and must not block.
	SetCompletionHandler(fn func())
	EnableIRQ(on bool)
}

// DMAChannel is a read-only view of one transfer channel.
type DMAChannel interface {
	ID() uint8
	Busy() bool
	// Remaining is the live transfer count.
	Remaining() uint32
}

// RingDMA is a set of transfer channels, each owning one chunk of a buffer,
// chained in a circle and paced by the Sampler's request line.
type RingDMA interface {
	// Configure claims len(buf)/chunkSize channels and wires channel i to
	// write buf[i*chunkSize:(i+1)*chunkSize] from the sampler FIFO, chaining
	// to channel (i+1) mod count. Nothing is claimed on failure.
	Configure(buf []byte, chunkSize int) error
	Count() int
	Channel(i int) DMAChannel
	// Arm starts channel i. The chain then refills indefinitely.
	Arm(i int)
	// Completed reports chunk transfers finished since the last Arm.
	Completed() uint32
	// Abort stops all channels without releasing them.
	Abort()
	// Release aborts and unclaims all channels.
	Release()
}

// BigBuffer is the one large memory region shared by capture features.
// It has at most one owner at a time.
type BigBuffer interface {
	Claim(owner string, n int) ([]byte, error)
	Release(owner string)
	Owner() string
}

// Capture groups the logic-capture hardware.
type Capture interface {
	Sampler() Sampler
	DMA() RingDMA
	Memory() BigBuffer
}
