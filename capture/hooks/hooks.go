// Package hooks brackets bus operations with a follow-along capture.
//
// Protocol code calls StartIfAny before and StopIfAny/NotifyAll after every
// bus operation. With no listener registered those calls do nothing; with
// one or more, each operation gets its own capture window which is reported
// to every listener.
package hooks

import (
	"errors"
	"fmt"
	"reflect"

	"buspirate/capture"
	"buspirate/capture/decode"
	"buspirate/hal"
)

// Capacity is the maximum number of registered hooks.
const Capacity = 2

var (
	ErrFull         = errors.New("hooks: registry full")
	ErrRegistered   = errors.New("hooks: already registered")
	ErrUncomparable = errors.New("hooks: hook is not comparable")
)

// Hook receives the capture taken around a bus operation. It runs with the
// engine locked and must not call back into it. Hooks are compared with ==,
// so implementations should be pointer types; values that cannot be compared
// are refused by Register.
type Hook interface {
	OnCapture(r capture.Reader)
}

// Engine is the part of *capture.Engine the registry drives.
type Engine interface {
	Setup() error
	Ready() bool
	Cleanup()
	Arm(freqHz float32, samples uint32, mask, dir uint8) error
	IsDone() bool
	Stop()
	View(fn func(capture.Reader)) bool
}

// Config is the capture taken around each operation.
type Config struct {
	FreqHz  float32
	Samples uint32
	Mask    uint8
	Dir     uint8
	// Verbose 0 prints the summary, 1 adds a trace, 2 adds protocol decode.
	Verbose    int
	TraceWidth int
	Decoder    decode.Decoder
}

func DefaultConfig() Config {
	return Config{
		FreqHz:     1_000_000,
		Samples:    1024,
		TraceWidth: 64,
	}
}

// Registry is a fixed-capacity set of hooks. The engine is set up while at
// least one hook is registered and cleaned up when the last one leaves.
type Registry struct {
	eng   Engine
	log   hal.Logger
	cfg   Config
	slots [Capacity]Hook
	n     int
	armed bool
}

func New(eng Engine, log hal.Logger, cfg Config) *Registry {
	if cfg.TraceWidth <= 0 {
		cfg.TraceWidth = DefaultConfig().TraceWidth
	}
	return &Registry{eng: eng, log: log, cfg: cfg}
}

func (r *Registry) Config() Config     { return r.cfg }
func (r *Registry) SetConfig(c Config) { r.cfg = c }

// Register adds h. The first registration sets up the engine; if that
// fails nothing is registered.
func (r *Registry) Register(h Hook) error {
	if h == nil {
		return errors.New("hooks: nil hook")
	}
	if !reflect.ValueOf(h).Comparable() {
		return fmt.Errorf("%w: %T", ErrUncomparable, h)
	}
	free := -1
	for i, s := range r.slots {
		if s == h {
			return ErrRegistered
		}
		if s == nil && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return ErrFull
	}
	if r.n == 0 {
		if err := r.eng.Setup(); err != nil {
			return fmt.Errorf("hooks: %w", err)
		}
	}
	r.slots[free] = h
	r.n++
	return nil
}

// Unregister removes h. Removing the last hook cleans up the engine.
func (r *Registry) Unregister(h Hook) {
	if h == nil || !reflect.ValueOf(h).Comparable() {
		return
	}
	for i, s := range r.slots {
		if s == nil || s != h {
			continue
		}
		r.slots[i] = nil
		r.n--
		if r.n == 0 {
			r.armed = false
			r.eng.Cleanup()
		}
		return
	}
}

func (r *Registry) HasAny() bool { return r.n > 0 }

// StartIfAny arms a capture if any hook is registered. An engine that lost
// its resources on a failed re-arm is set up again first; if that fails the
// operation runs without a capture.
func (r *Registry) StartIfAny() {
	if r.n == 0 {
		return
	}
	r.armed = false
	if !r.eng.Ready() {
		if err := r.eng.Setup(); err != nil {
			r.log.WriteLineString("hooks: setup: " + err.Error())
			return
		}
	}
	c := r.cfg
	if err := r.eng.Arm(c.FreqHz, c.Samples, c.Mask, c.Dir); err != nil {
		r.log.WriteLineString("hooks: arm: " + err.Error())
		return
	}
	r.armed = true
}

// StopIfAny ends the capture started by StartIfAny. A capture that already
// ran out of samples completes normally; otherwise it is force-completed.
func (r *Registry) StopIfAny() {
	if r.n == 0 || !r.armed {
		return
	}
	if !r.eng.IsDone() {
		r.eng.Stop()
	}
}

// NotifyAll reports the last capture, then calls each hook in slot order.
func (r *Registry) NotifyAll() {
	if r.n == 0 || !r.armed {
		return
	}
	r.armed = false
	ok := r.eng.View(func(rd capture.Reader) {
		r.log.WriteLineString(fmt.Sprintf("Logic analyzer: %d samples captured", rd.Captured()))
		if r.cfg.Verbose >= 1 {
			for _, line := range Trace(rd, r.cfg.TraceWidth) {
				r.log.WriteLineString(line)
			}
		}
		if r.cfg.Verbose >= 2 && r.cfg.Decoder != nil {
			for _, line := range r.cfg.Decoder.Decode(rd.Snapshot(), float64(r.cfg.FreqHz)) {
				r.log.WriteLineString(line)
			}
		}
		for _, h := range r.slots {
			if h != nil {
				h.OnCapture(rd)
			}
		}
	})
	if !ok {
		r.log.WriteLineString("hooks: capture not available")
	}
}

// Around runs op between StartIfAny and StopIfAny, then notifies.
func (r *Registry) Around(op func() error) error {
	r.StartIfAny()
	err := op()
	r.StopIfAny()
	r.NotifyAll()
	return err
}
