package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"buspirate/capture"
	"buspirate/capture/decode"
	"buspirate/capture/hooks"
	"buspirate/hal"
)

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Capture around simulated UART writes",
	Long: `Register a follow-along hook and send a few UART writes on IO0. Each
write is bracketed by its own capture, which is summarized, traced and
decoded after the write returns.`,
	PreRunE: bindFlags,
	RunE:    runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)

	f := followCmd.Flags()
	f.Int("ops", 3, "number of writes")
	f.String("message", "hello", "text of each write")
	f.Int("uart-baud", 115200, "baud rate of the writes")
	f.Float64("freq", 1_000_000, "sample rate in Hz")
	f.Uint32("samples", 2048, "samples per capture")
	f.Int("verbose", 2, "0 summary, 1 adds a trace, 2 adds the UART decode")
	f.Int("width", 64, "trace width in columns")
}

// opHook reports each follow-along capture.
type opHook struct {
	w  io.Writer
	op int
}

func (h *opHook) OnCapture(r capture.Reader) {
	h.op++
	st := r.Stats()
	fmt.Fprintf(h.w, "write %d: %d of %d samples (%s)\n", h.op, r.Captured(), st.Requested, st.End)
}

// uartWrite clocks msg out on IO0 as an 8N1 frame after a short idle.
func uartWrite(sim *hal.SimCapture, spb int, msg []byte) {
	src := hal.NewUARTSource(0, spb, msg)
	base := sim.Tick()
	sim.SetSource(hal.SampleFunc(func(tick uint64) uint8 { return src.Sample(tick - base) }))
	// 20 idle bits, then ten bits per byte.
	sim.Step(spb * (20 + 10*len(msg)))
	sim.SetSource(hal.SampleFunc(func(uint64) uint8 { return 1 }))
}

func runFollow(cmd *cobra.Command, _ []string) error {
	cfg, err := engineConfig()
	if err != nil {
		return err
	}
	baud := viper.GetInt("uart-baud")
	freq := viper.GetFloat64("freq")
	spb := int(freq) / max(baud, 1)
	if spb < 2 {
		return fmt.Errorf("follow: %g Hz is too slow for %d baud", freq, baud)
	}

	out := cmd.OutOrStdout()
	r, err := newRig(cfg, hal.SampleFunc(func(uint64) uint8 { return 1 }), klogLogger{}, nil)
	if err != nil {
		return err
	}
	r.start(false)
	defer r.close()

	hc := hooks.DefaultConfig()
	hc.FreqHz = float32(freq)
	hc.Samples = viper.GetUint32("samples")
	hc.Verbose = viper.GetInt("verbose")
	hc.TraceWidth = viper.GetInt("width")
	hc.Decoder = decode.UART{RX: 0, Baud: baud}
	reg := hooks.New(r.eng, lineLogger{w: out}, hc)

	h := &opHook{w: out}
	if err := reg.Register(h); err != nil {
		return fmt.Errorf("%s: %w", capture.MsgAllocFailed, err)
	}
	defer reg.Unregister(h)

	msg := viper.GetString("message")
	for i := 0; i < viper.GetInt("ops"); i++ {
		payload := []byte(fmt.Sprintf("%s %d", msg, i))
		if err := reg.Around(func() error {
			uartWrite(r.sim, spb, payload)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
