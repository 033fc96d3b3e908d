// Package hal is the board boundary of the analyzer: log output, the status
// LED, the LCD, keys, the millisecond tick, probe pins and the capture
// hardware (sampler, DMA ring, big buffer).
//
// The host build simulates all of it; the RP2040 build drives PIO0, the DMA
// block and an ILI9341 panel.
package hal

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is the status LED. It is lit while a capture is armed or running.
type LED interface {
	High()
	Low()
}

type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp little-endian: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a pixel buffer in RAM. Present pushes it to the panel or
// window.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

type KeyCode uint16

// Keys the viewer reacts to.
const (
	KeyUnknown KeyCode = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyEscape
	KeyHome
	KeyEnd
)

type KeyEvent struct {
	Code  KeyCode
	Press bool
	// Rune is set for text input; Code is then KeyUnknown.
	Rune rune
}

type Keyboard interface {
	Events() <-chan KeyEvent
}

type Display interface {
	Framebuffer() Framebuffer
}

// Input returns a nil Keyboard on boards without keys.
type Input interface {
	Keyboard() Keyboard
}

// Time streams a tick count, one tick per millisecond.
type Time interface {
	Ticks() <-chan uint64
}

// HAL is everything the analyzer needs from the board.
type HAL interface {
	Logger() Logger
	LED() LED
	Display() Display
	Input() Input
	Time() Time
	GPIO() GPIO
	Capture() Capture
}
