//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"k8s.io/klog/v2"

	"buspirate/app"
	"buspirate/hal"
)

func main() {
	klog.InitFlags(nil)
	err := run()
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	hcfg := hal.HeadlessConfig{Host: hal.DefaultHostConfig()}
	acfg := app.DefaultConfig()
	var (
		headless bool
		freq     float64
		samples  uint
	)
	flag.BoolVar(&headless, "headless", false, "Run without a window.")
	flag.IntVar(&hcfg.Hz, "hz", 60, "Frame rate in headless mode.")
	flag.Uint64Var(&hcfg.Frames, "frames", 0, "Stop after N frames in headless mode (0 = run forever).")
	flag.BoolVar(&acfg.AutoArm, "auto", false, "Arm a capture at start and re-arm after each one.")
	flag.DurationVar(&acfg.Interval, "interval", acfg.Interval, "Delay between automatic captures.")
	flag.Float64Var(&freq, "freq", float64(acfg.Capture.FreqHz), "Sample rate in Hz.")
	flag.UintVar(&samples, "samples", uint(acfg.Capture.Samples), "Samples per capture.")
	flag.Parse()

	acfg.Capture.FreqHz = float32(freq)
	acfg.Capture.Samples = uint32(samples)
	newApp := func(h hal.HAL) func() error { return app.NewStep(h, acfg) }

	if !headless {
		return hal.RunWindow(hcfg.Host, newApp)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := hal.RunHeadless(ctx, newApp, hcfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
