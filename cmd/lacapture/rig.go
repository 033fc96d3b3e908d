package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/sourcegraph/conc"
	"k8s.io/klog/v2"

	"buspirate/capture"
	"buspirate/hal"
	"buspirate/kernel"
)

// rig is the simulated two-core analyzer: the engine on the calling
// goroutine, the companion and the free-running sampler on their own.
type rig struct {
	sim  *hal.SimCapture
	sys  *kernel.System
	eng  *capture.Engine
	comp *progress
	wg   conc.WaitGroup
	stop context.CancelFunc
}

func newRig(cfg capture.Config, src hal.SampleSource, log hal.Logger, bar io.Writer) (*rig, error) {
	sim := hal.NewSimCapture(hal.SimConfig{Source: src})
	sys := kernel.NewSystem()
	eng, err := capture.New(sim, sys.Gate(), log, stateLogger{}, cfg)
	if err != nil {
		return nil, err
	}
	return &rig{
		sim:  sim,
		sys:  sys,
		eng:  eng,
		comp: &progress{sim: sim, w: bar},
	}, nil
}

// start runs the companion and, if realtime is set, the sampler clock.
func (r *rig) start(realtime bool) {
	ctx, cancel := context.WithCancel(context.Background())
	r.stop = cancel
	r.wg.Go(func() { r.sys.RunCompanion(ctx, r.comp) })
	if realtime {
		r.wg.Go(func() { r.sim.Run(ctx) })
	}
}

// close releases the engine, then stops the companion. Cleanup may still
// need the companion for the completion handshake.
func (r *rig) close() {
	r.eng.Cleanup()
	if r.stop != nil {
		r.stop()
	}
	r.wg.Wait()
}

// progress is the companion core of the CLI: it acknowledges the gate and
// shows a progress bar while a capture runs.
type progress struct {
	sim   *hal.SimCapture
	w     io.Writer
	bar   *pb.ProgressBar
	start uint64
	total int64
}

func (p *progress) Handle(msg kernel.Message) uint32 {
	switch msg.Kind {
	case kernel.MsgCaptureArm:
		p.total = int64(msg.Arg)
		p.start = p.sim.Tick()
		if p.w != nil {
			p.bar = pb.New64(p.total)
			p.bar.SetWriter(p.w)
			p.bar.Start()
		}
	case kernel.MsgCaptureDone:
		if p.bar != nil {
			if capture.EndReason(msg.Arg) == capture.EndComplete {
				p.bar.SetCurrent(p.total)
			}
			p.bar.Finish()
			p.bar = nil
		}
	case kernel.MsgPing:
		return msg.Arg
	}
	return 0
}

func (p *progress) Idle() {
	if p.bar != nil {
		p.bar.SetCurrent(min(int64(p.sim.Tick()-p.start), p.total))
	}
	time.Sleep(time.Millisecond)
}

// klogLogger is the engine's log on the host.
type klogLogger struct{}

func (klogLogger) WriteLineString(s string) { klog.InfoDepth(1, s) }
func (klogLogger) WriteLineBytes(b []byte)  { klog.InfoDepth(1, string(b)) }

// lineLogger writes log lines to w, for output the user asked for.
type lineLogger struct {
	w io.Writer
}

func (l lineLogger) WriteLineString(s string) { fmt.Fprintln(l.w, s) }
func (l lineLogger) WriteLineBytes(b []byte)  { fmt.Fprintln(l.w, string(b)) }

type stateLogger struct{}

func (stateLogger) SetState(s capture.State) { klog.V(2).Infof("capture: state %s", s) }
