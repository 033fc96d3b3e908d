//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	// Hz is the main-loop frame rate.
	Hz int
	// Frames stops the run after that many frames; 0 runs until ctx ends.
	Frames uint64
	// StepBudget is the number of app steps per frame.
	StepBudget int
	Host       HostConfig
}

// RunHeadless runs the analyzer without a window. The simulated capture
// hardware samples in real time on its own goroutine while the app steps
// at cfg.Hz.
func RunHeadless(ctx context.Context, newApp func(HAL) func() error, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 || cfg.Hz > int(time.Second) {
		return fmt.Errorf("headless: invalid frame rate %d", cfg.Hz)
	}
	cfg.StepBudget = max(cfg.StepBudget, 1)
	if cfg.Host.Width <= 0 || cfg.Host.Height <= 0 {
		cfg.Host = DefaultHostConfig()
	}

	h := NewHost(cfg.Host).(*hostHAL)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.sim.Run(ctx)

	step := newApp(h)
	frame := time.NewTicker(time.Second / time.Duration(cfg.Hz))
	defer frame.Stop()

	for n := uint64(1); ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-frame.C:
		}
		h.t.advance()
		for i := 0; i < cfg.StepBudget && step != nil; i++ {
			if err := step(); err != nil {
				return err
			}
		}
		if n == cfg.Frames {
			return nil
		}
	}
}
