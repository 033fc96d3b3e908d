package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"buspirate/capture"
	"buspirate/capture/decode"
	"buspirate/capture/hooks"
	"buspirate/hal"
	"buspirate/sump"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run one capture and print it",
	Long: `Arm the engine, wait for the capture to finish and print a trace of it.

A zero trigger mask samples immediately. Otherwise sampling starts when the
lowest masked pin reaches the level of its bit in the trigger direction.
Press any key (or Ctrl-C) to cancel; whatever was sampled so far is shown.

Examples:
  # 4096 samples of the counter source at 1 MHz
  lacapture capture

  # Wait for IO0 to go low, then decode the UART stream on it
  lacapture capture --source uart --trigger-mask 1 --trigger-dir 0 --decode uart:rx=0,baud=115200`,
	PreRunE: bindFlags,
	RunE:    runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	f := captureCmd.Flags()
	f.Float64("freq", 1_000_000, "sample rate in Hz")
	f.Uint32("samples", 4096, "samples to capture")
	f.Uint8("trigger-mask", 0, "trigger pin mask (0 = no trigger)")
	f.Uint8("trigger-dir", 0, "trigger level per masked pin")
	f.String("source", "counter", "simulated input: counter, uart or gpio")
	f.Int("uart-baud", 115200, "baud rate of the uart source")
	f.String("message", "Hello, Bus Pirate!", "text sent by the uart source")
	f.String("decode", "", "protocol decoder, e.g. uart:rx=0,baud=115200")
	f.Int("width", 64, "trace width in columns")
	f.String("sump-out", "", "write the samples in SUMP order to this file")
	f.Duration("timeout", 0, "cancel the capture after this long (0 = none)")
	f.Bool("progress", true, "show a progress bar")
	f.Bool("keys", true, "cancel on any keypress")
}

func sampleSource(name string, freqHz float64) (hal.SampleSource, error) {
	switch name {
	case "counter":
		return hal.CounterSource(), nil
	case "uart":
		baud := viper.GetInt("uart-baud")
		if baud <= 0 {
			return nil, fmt.Errorf("uart source: invalid baud %d", baud)
		}
		return hal.NewUARTSource(0, int(freqHz)/baud, []byte(viper.GetString("message"))), nil
	case "gpio":
		return hal.NewGPIOSource(hal.NewHost(hal.DefaultHostConfig()).GPIO(), 0), nil
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}
}

func runCapture(cmd *cobra.Command, _ []string) error {
	cfg, err := engineConfig()
	if err != nil {
		return err
	}
	freq := viper.GetFloat64("freq")
	src, err := sampleSource(viper.GetString("source"), freq)
	if err != nil {
		return err
	}
	var dec decode.Decoder
	if s := viper.GetString("decode"); s != "" {
		if dec, err = decode.Parse(s); err != nil {
			return err
		}
	}

	var bar io.Writer
	if viper.GetBool("progress") {
		bar = cmd.ErrOrStderr()
	}
	r, err := newRig(cfg, src, klogLogger{}, bar)
	if err != nil {
		return err
	}
	r.start(true)
	defer r.close()

	if err := r.eng.Setup(); err != nil {
		return fmt.Errorf("%s: %w", capture.MsgAllocFailed, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if d := viper.GetDuration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if viper.GetBool("keys") {
		keyCtx, keyStop := context.WithCancel(context.Background())
		defer keyStop()
		r.wg.Go(func() {
			if waitKey(keyCtx) {
				cancel()
			}
		})
	}

	samples := viper.GetUint32("samples")
	mask := uint8(viper.GetUint("trigger-mask"))
	dir := uint8(viper.GetUint("trigger-dir"))
	if err := r.eng.Arm(float32(freq), samples, mask, dir); err != nil {
		return err
	}
	if err := r.eng.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return report(cmd.OutOrStdout(), r.eng, dec, viper.GetInt("width"), viper.GetString("sump-out"))
}

func report(w io.Writer, eng *capture.Engine, dec decode.Decoder, width int, sumpOut string) error {
	var werr error
	ok := eng.View(func(rd capture.Reader) {
		st := rd.Stats()
		fmt.Fprintf(w, "Logic analyzer: %d samples captured (%s, trigger %s, %s)\n",
			rd.Captured(), st.End, st.Trigger, st.Program)
		for _, line := range hooks.Trace(rd, width) {
			fmt.Fprintln(w, line)
		}
		if dec != nil {
			for _, line := range dec.Decode(rd.Snapshot(), float64(st.FreqHz)) {
				fmt.Fprintln(w, line)
			}
		}
		if sumpOut != "" {
			werr = writeSUMP(sumpOut, rd)
		}
	})
	if !ok {
		return errors.New("capture not available")
	}
	return werr
}

func writeSUMP(path string, rd capture.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := sump.WriteSamples(f, rd); err != nil {
		f.Close()
		return fmt.Errorf("sump: %w", err)
	}
	return f.Close()
}
