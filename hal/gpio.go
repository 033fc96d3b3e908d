package hal

import (
	"fmt"
	"sync"
	"time"
)

// GPIO is the bank of probe lines: IO0..IO7 first, then any board extras
// such as the status LED.
type GPIO interface {
	PinCount() int
	// Pin returns nil for an id outside the bank.
	Pin(id int) GPIOPin
}

// GPIOPin is one digital line.
type GPIOPin interface {
	Name() string
	Read() (level bool, err error)
	Write(level bool) error
}

type pinBank []GPIOPin

func (b pinBank) PinCount() int { return len(b) }

func (b pinBank) Pin(id int) GPIOPin {
	if id < 0 || id >= len(b) {
		return nil
	}
	return b[id]
}

// latchPin holds whatever was last written to it.
type latchPin struct {
	name  string
	mu    sync.Mutex
	level bool
}

func newLatchPin(name string) *latchPin { return &latchPin{name: name} }

func (p *latchPin) Name() string { return p.name }

func (p *latchPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

func (p *latchPin) Write(level bool) error {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
	return nil
}

// squarePin is an input-only test signal: high for the first high of
// every period, measured from construction.
type squarePin struct {
	name   string
	start  time.Time
	now    func() time.Time
	period time.Duration
	high   time.Duration
}

func newSquarePin(name string, period, high time.Duration) *squarePin {
	return newSquarePinClock(name, period, high, time.Now)
}

func newSquarePinClock(name string, period, high time.Duration, now func() time.Time) *squarePin {
	if period <= 0 {
		period = time.Second
	}
	high = min(max(high, 0), period)
	return &squarePin{name: name, start: now(), now: now, period: period, high: high}
}

func (p *squarePin) Name() string { return p.name }

func (p *squarePin) Read() (bool, error) {
	d := p.now().Sub(p.start)
	if d < 0 {
		d = -d
	}
	return d%p.period < p.high, nil
}

func (p *squarePin) Write(bool) error {
	return fmt.Errorf("gpio: %s is an input", p.name)
}

// ledPin drives the status LED.
type ledPin struct {
	name string
	led  LED
	on   latchPin
}

func newLEDPin(name string, led LED) *ledPin { return &ledPin{name: name, led: led} }

func (p *ledPin) Name() string        { return p.name }
func (p *ledPin) Read() (bool, error) { return p.on.Read() }

func (p *ledPin) Write(level bool) error {
	if level {
		p.led.High()
	} else {
		p.led.Low()
	}
	return p.on.Write(level)
}

type gpioSource struct {
	pins [SampleChannels]GPIOPin
}

// NewGPIOSource samples up to SampleChannels consecutive pins of g starting
// at base, bit i holding pin base+i. Missing pins and read errors read low.
func NewGPIOSource(g GPIO, base int) SampleSource {
	s := &gpioSource{}
	if g == nil {
		return s
	}
	for i := range s.pins {
		s.pins[i] = g.Pin(base + i)
	}
	return s
}

func (s *gpioSource) Sample(uint64) uint8 {
	var v uint8
	for i, p := range s.pins {
		if p == nil {
			continue
		}
		if level, err := p.Read(); err == nil && level {
			v |= 1 << i
		}
	}
	return v
}
