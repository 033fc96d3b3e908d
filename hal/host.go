//go:build !tinygo

package hal

import (
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// HostConfig configures the host HAL.
type HostConfig struct {
	Width  int
	Height int
	Sim    SimConfig
}

// DefaultHostConfig is a 320x240 panel over the default simulated capture
// hardware.
func DefaultHostConfig() HostConfig {
	return HostConfig{Width: 320, Height: 240, Sim: DefaultSimConfig()}
}

type hostHAL struct {
	logger hostLogger
	led    *hostLED
	gpio   GPIO
	fb     *memFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	sim    *SimCapture
}

// New returns a host HAL implementation.
func New() HAL {
	return NewHost(DefaultHostConfig())
}

// NewHost returns a host HAL with simulated capture hardware.
func NewHost(cfg HostConfig) HAL {
	def := DefaultHostConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	led := &hostLED{}
	pins := pinBank{
		// IO0..IO6 carry test signals so a GPIO-sourced capture shows activity.
		newSquarePin("IO0", 2*time.Millisecond, 1*time.Millisecond),
		newSquarePin("IO1", 4*time.Millisecond, 2*time.Millisecond),
		newSquarePin("IO2", 8*time.Millisecond, 4*time.Millisecond),
		newSquarePin("IO3", 16*time.Millisecond, 8*time.Millisecond),
		newSquarePin("IO4", 100*time.Millisecond, 5*time.Millisecond),
		newSquarePin("IO5", 20*time.Millisecond, 5*time.Millisecond),
		newSquarePin("IO6", time.Second, 500*time.Millisecond),
		newLatchPin("IO7"),
		newLEDPin("LED", led),
	}
	return &hostHAL{
		led:  led,
		gpio: pins,
		fb:   newMemFramebuffer(cfg.Width, cfg.Height, nil),
		kbd:  newHostKeyboard(),
		t:    newHostTime(),
		sim:  NewSimCapture(cfg.Sim),
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) GPIO() GPIO       { return h.gpio }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Capture() Capture { return h.sim }

type hostDisplay struct {
	fb *memFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

// hostLogger writes through klog so host runs share the CLI's log flags.
type hostLogger struct{}

func (hostLogger) WriteLineString(s string) {
	klog.InfoDepth(1, s)
}

func (hostLogger) WriteLineBytes(b []byte) {
	klog.InfoDepth(1, string(b))
}

type hostLED struct {
	mu sync.Mutex
	on bool
}

func (l *hostLED) High() { l.set(true) }
func (l *hostLED) Low()  { l.set(false) }

func (l *hostLED) set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on != on {
		klog.V(2).Infof("led: %v", on)
	}
	l.on = on
}

// On reports the LED state.
func (l *hostLED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}
