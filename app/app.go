// Package app wires the HAL, the dual-core runtime, the capture engine, the
// follow-along hooks and the LCD viewer into the analyzer.
package app

import (
	"context"
	"fmt"
	"time"

	"buspirate/capture"
	"buspirate/capture/hooks"
	"buspirate/hal"
	"buspirate/kernel"
	"buspirate/laview"
)

type Config struct {
	Engine capture.Config
	// Capture is used for captures started from the keyboard and for
	// follow-along captures.
	Capture hooks.Config
	// AutoArm arms a capture at start and re-arms Interval after each one
	// finishes.
	AutoArm  bool
	Interval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Engine:   capture.DefaultConfig(),
		Capture:  hooks.DefaultConfig(),
		Interval: time.Second,
	}
}

// App is one analyzer instance. Step runs on the main core; the viewer runs
// on the companion core started by Start.
type App struct {
	h     hal.HAL
	cfg   Config
	sys   *kernel.System
	eng   *capture.Engine
	hooks *hooks.Registry
	view  *laview.Viewer

	armed  bool
	nextAt uint64
}

// New builds the analyzer over h. Nothing runs until Start.
func New(h hal.HAL, cfg Config) (*App, error) {
	sys := kernel.NewSystem()
	ind := newIndicator(h.LED(), sys.Status())
	eng, err := capture.New(h.Capture(), sys.Gate(), h.Logger(), ind, cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	var kb hal.Keyboard
	if in := h.Input(); in != nil {
		kb = in.Keyboard()
	}
	view := laview.New(h.Display().Framebuffer(), eng, kb)
	view.FollowStatus(sys.Status())
	return &App{
		h:     h,
		cfg:   cfg,
		sys:   sys,
		eng:   eng,
		hooks: hooks.New(eng, h.Logger(), cfg.Capture),
		view:  view,
	}, nil
}

func (a *App) Engine() *capture.Engine { return a.eng }
func (a *App) Hooks() *hooks.Registry  { return a.hooks }
func (a *App) Viewer() *laview.Viewer  { return a.view }
func (a *App) System() *kernel.System  { return a.sys }

// Start runs the tick and the companion core until ctx is done.
func (a *App) Start(ctx context.Context) {
	var ticks <-chan uint64
	if t := a.h.Time(); t != nil {
		ticks = t.Ticks()
	}
	a.sys.StartTick(ctx, ticks)
	go a.sys.RunCompanion(ctx, a.view)
	if a.cfg.AutoArm {
		a.arm()
	}
}

// Step is one pass of the main-core loop: it serves key requests, polls a
// running capture and re-arms when AutoArm is set.
func (a *App) Step() error {
	if a.view.TakeCancelRequest() && a.armed {
		a.eng.Cancel()
	}
	if a.view.TakeArmRequest() {
		a.arm()
	}
	if a.armed && a.eng.IsDone() {
		a.armed = false
		a.report()
		a.nextAt = a.sys.Ticks() + uint64(a.cfg.Interval/time.Millisecond)
	}
	if a.cfg.AutoArm && !a.armed && a.sys.Ticks() >= a.nextAt {
		a.arm()
	}
	return nil
}

func (a *App) arm() {
	log := a.h.Logger()
	if !a.eng.Ready() {
		if err := a.eng.Setup(); err != nil {
			log.WriteLineString(capture.MsgAllocFailed)
			log.WriteLineString(err.Error())
			a.sys.Status().Set("no buffer")
			return
		}
	}
	c := a.hooks.Config()
	if err := a.eng.Arm(c.FreqHz, c.Samples, c.Mask, c.Dir); err != nil {
		log.WriteLineString("app: arm: " + err.Error())
		a.sys.Status().Set("arm failed")
		return
	}
	a.armed = true
}

func (a *App) report() {
	st := a.eng.Stats()
	a.h.Logger().WriteLineString(fmt.Sprintf("Logic analyzer: %d samples captured (%s)", st.Captured, st.End))
	a.sys.Status().Set(fmt.Sprintf("%s: %d samples", st.End, st.Captured))
}

// NewStep builds and starts the analyzer and returns its main-core step,
// in the shape the host runners expect.
func NewStep(h hal.HAL, cfg Config) func() error {
	a, err := New(h, cfg)
	if err != nil {
		return func() error { return err }
	}
	a.Start(context.Background())
	return a.Step
}

// Run starts the analyzer and blocks forever (TinyGo entrypoint).
func Run(h hal.HAL) {
	defer func() {
		if v := recover(); v != nil {
			showPanic(h, v)
		}
	}()
	bootScreen(h, "setting up capture")
	cfg := DefaultConfig()
	cfg.AutoArm = true
	a, err := New(h, cfg)
	if err != nil {
		bootScreen(h, err.Error())
		select {}
	}
	a.Start(context.Background())
	for {
		_ = a.Step()
		a.sys.Yield()
	}
}
