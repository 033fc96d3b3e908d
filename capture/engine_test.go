package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"buspirate/hal"
	"buspirate/kernel"
)

type companionLog struct {
	mu    sync.Mutex
	kinds []kernel.Kind
}

func (c *companionLog) handle(m kernel.Message) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, m.Kind)
	return 0
}

func (c *companionLog) get() []kernel.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]kernel.Kind(nil), c.kinds...)
}

type stateLog []State

func (l *stateLog) SetState(s State) { *l = append(*l, s) }

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *lineLog) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *lineLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

type testRig struct {
	sim  *hal.SimCapture
	eng  *Engine
	comp *companionLog
	ind  *stateLog
	log  *lineLog
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkCount = 4
	cfg.ChunkSize = 16
	return cfg
}

func newRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	return newSimRig(t, cfg, hal.DefaultSimConfig())
}

func newSimRig(t *testing.T, cfg Config, simCfg hal.SimConfig) *testRig {
	t.Helper()
	sim := hal.NewSimCapture(simCfg)
	var g kernel.Gate
	comp := &companionLog{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go g.Serve(ctx, comp.handle)

	ind := &stateLog{}
	log := &lineLog{}
	eng, err := New(sim, &g, log, ind, cfg)
	if err != nil {
		t.Fatalf("New() err = %v", err)
	}
	if err := eng.Setup(); err != nil {
		t.Fatalf("Setup() err = %v", err)
	}
	return &testRig{sim: sim, eng: eng, comp: comp, ind: ind, log: log}
}

func snapshot(t *testing.T, e *Engine) []byte {
	t.Helper()
	var out []byte
	if !e.View(func(r Reader) {
		out = make([]byte, r.Len())
		for i := range out {
			out[i] = r.At(uint32(i))
		}
	}) {
		t.Fatalf("View() = false")
	}
	return out
}

func TestTailIndexGrid(t *testing.T) {
	const chunk = 32768
	for k := 0; k < 4; k++ {
		for r := uint32(0); r < chunk; r++ {
			got := TailIndex(k, r, chunk)
			want := uint32(k*chunk) + (chunk - r - 1)
			if got != want {
				t.Fatalf("TailIndex(%d, %d) = %d, want %d", k, r, got, want)
			}
			if got >= 4*chunk {
				t.Fatalf("TailIndex(%d, %d) = %d out of range", k, r, got)
			}
		}
	}
}

func TestTriggerProgramSelection(t *testing.T) {
	tests := []struct {
		mask, dir uint8
		prog      hal.SampleProgram
		pin       uint8
	}{
		{0, 0, hal.ProgramUnconditional, 0},
		{0, 0xff, hal.ProgramUnconditional, 0},
		{0b00000100, 0b00000100, hal.ProgramTriggerHigh, 2},
		{0b00000100, 0b11111011, hal.ProgramTriggerLow, 2},
		{0b10100100, 0b00000100, hal.ProgramTriggerHigh, 2},
		{0b10100000, 0b10000000, hal.ProgramTriggerLow, 5},
		{0b10000000, 0b10000000, hal.ProgramTriggerHigh, 7},
	}
	for _, tt := range tests {
		prog, pin := TriggerSpec{Mask: tt.mask, Direction: tt.dir}.Program()
		if prog != tt.prog || pin != tt.pin {
			t.Fatalf("Program(%08b, %08b) = %v@%d, want %v@%d", tt.mask, tt.dir, prog, pin, tt.prog, tt.pin)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	bad := DefaultConfig()
	bad.ChunkCount = 3
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate(3 chunks) = nil, want error")
	}
	bad = DefaultConfig()
	bad.ChunkSize = 1000
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate(chunk 1000) = nil, want error")
	}
}

func TestEndToEnd(t *testing.T) {
	rig := newRig(t, DefaultConfig())
	e := rig.eng

	if err := e.Arm(1_000_000.0, 1000, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	if got := e.State(); got != ArmedInit {
		t.Fatalf("State() = %v, want %v", got, ArmedInit)
	}
	if e.IsDone() {
		t.Fatalf("IsDone() = true right after arm")
	}
	if got := e.State(); got != Armed {
		t.Fatalf("State() = %v, want %v", got, Armed)
	}

	rig.sim.Step(10)
	if e.IsDone() || e.State() != Capturing {
		t.Fatalf("State() = %v, want %v", e.State(), Capturing)
	}
	if n := rig.sim.Step(5000); n != 990 {
		t.Fatalf("Step() wrote %d, want 990", n)
	}
	if !e.IsDone() {
		t.Fatalf("IsDone() = false after completion")
	}

	wantStates := stateLog{ArmedInit, Armed, Capturing, Idle}
	if diff := cmp.Diff(wantStates, *rig.ind); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}
	wantKinds := []kernel.Kind{kernel.MsgCaptureArm, kernel.MsgCaptureDone}
	if diff := cmp.Diff(wantKinds, rig.comp.get()); diff != "" {
		t.Fatalf("handshakes mismatch (-want +got):\n%s", diff)
	}

	if got := e.WritePointer(); got != 999 {
		t.Fatalf("WritePointer() = %d, want 999", got)
	}
	cursor := e.WritePointer()
	for i := 0; i < 1000; i++ {
		want := uint8(999 - i)
		if got := e.Dump(&cursor); got != want {
			t.Fatalf("Dump() #%d = %d, want %d", i, got, want)
		}
	}

	st := e.Stats()
	if st.Captured != 1000 || st.End != EndComplete || st.Program != hal.ProgramUnconditional {
		t.Fatalf("Stats() = %+v", st)
	}
	if got := rig.sim.Sampler().Loaded(); got != hal.ProgramNone {
		t.Fatalf("Loaded() = %v after completion, want none", got)
	}
}

func TestWritePointerWraps(t *testing.T) {
	for _, n := range []uint32{1, 15, 16, 17, 63, 64, 65, 100, 200} {
		rig := newRig(t, smallConfig())
		e := rig.eng
		if err := e.Arm(1000, n, 0, 0); err != nil {
			t.Fatalf("Arm(%d) err = %v", n, err)
		}
		rig.sim.Step(int(n) + 10)
		if !e.IsDone() {
			t.Fatalf("IsDone() = false after %d samples", n)
		}
		wp := e.WritePointer()
		if wp >= 64 {
			t.Fatalf("WritePointer() = %d, out of range", wp)
		}
		if want := (n - 1) % 64; wp != want {
			t.Fatalf("WritePointer() after %d = %d, want %d", n, wp, want)
		}
		want := min(n, 64)
		if got := e.Stats().Captured; got != want {
			t.Fatalf("Captured after %d = %d, want %d", n, got, want)
		}
		cursor := wp
		for i := uint32(0); i < want; i++ {
			if got, w := e.Dump(&cursor), uint8(n-1-i); got != w {
				t.Fatalf("n=%d Dump() #%d = %d, want %d", n, i, got, w)
			}
		}
	}
}

func TestArmedWaitsForTrigger(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	rig.sim.SetSource(hal.SampleFunc(func(uint64) uint8 { return 0 }))

	if err := e.Arm(1000, 20, 0b00000100, 0b00000100); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	for i := 0; i < 50; i++ {
		rig.sim.Step(7)
		if e.IsDone() {
			t.Fatalf("IsDone() = true before trigger")
		}
		if got := e.State(); got != Armed {
			t.Fatalf("poll %d: State() = %v, want %v", i, got, Armed)
		}
	}

	rig.sim.SetSource(hal.SampleFunc(func(uint64) uint8 { return 0x04 }))
	rig.sim.Step(1)
	for i := 0; i < 5; i++ {
		e.IsDone()
	}
	if got := e.State(); got != Capturing {
		t.Fatalf("State() = %v, want %v", got, Capturing)
	}
	n := 0
	for _, s := range *rig.ind {
		if s == Capturing {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("entered Capturing %d times, want 1", n)
	}
}

func TestTriggerLowSkipsPreroll(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	// Pin 1 is high for the first 10 ticks, then low.
	rig.sim.SetSource(hal.SampleFunc(func(tick uint64) uint8 {
		if tick < 10 {
			return 0x02 | uint8(tick)<<4
		}
		return uint8(tick) << 4
	}))
	if err := e.Arm(1000, 4, 0b00000010, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	rig.sim.Step(30)
	if !e.IsDone() {
		t.Fatalf("IsDone() = false")
	}
	cursor := e.WritePointer()
	var got []byte
	for i := 0; i < 4; i++ {
		got = append(got, e.Dump(&cursor))
	}
	want := []byte{13 << 4, 12 << 4, 11 << 4, 10 << 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Dump() mismatch (-want +got):\n%s", diff)
	}
}

func TestRearmMatchesCleanupSetupArm(t *testing.T) {
	a := newRig(t, smallConfig())
	if err := a.eng.Arm(1000, 40, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	a.sim.Step(5)
	a.eng.IsDone()
	if err := a.eng.Arm(1000, 40, 0, 0); err != nil {
		t.Fatalf("second Arm() err = %v", err)
	}
	a.sim.Step(100)
	if !a.eng.IsDone() {
		t.Fatalf("IsDone() = false")
	}

	b := newRig(t, smallConfig())
	if err := b.eng.Arm(1000, 40, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	b.sim.Step(5)
	b.eng.Cleanup()
	if err := b.eng.Setup(); err != nil {
		t.Fatalf("Setup() err = %v", err)
	}
	if err := b.eng.Arm(1000, 40, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	b.sim.Step(100)
	if !b.eng.IsDone() {
		t.Fatalf("IsDone() = false")
	}

	got, want := snapshot(t, a.eng), snapshot(t, b.eng)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("re-arm buffer mismatch (-want +got):\n%s", diff)
	}
	if got[0] != 5 || got[39] != 44 || got[50] != 0 {
		t.Fatalf("buffer = %v", got)
	}
	if a.eng.WritePointer() != b.eng.WritePointer() {
		t.Fatalf("WritePointer() = %d, want %d", a.eng.WritePointer(), b.eng.WritePointer())
	}
}

func TestSetupFailureLeavesNothing(t *testing.T) {
	sim := hal.NewSimCapture(hal.DefaultSimConfig())
	sim.Hog(10)
	e, err := New(sim, nil, nil, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("New() err = %v", err)
	}
	err = e.Setup()
	if !errors.Is(err, ErrResourceExhausted) || !errors.Is(err, hal.ErrNoChannels) {
		t.Fatalf("Setup() err = %v, want ErrResourceExhausted/ErrNoChannels", err)
	}
	if owner := sim.Memory().Owner(); owner != "" {
		t.Fatalf("Owner() = %q after failed setup", owner)
	}
	if e.Ready() {
		t.Fatalf("Ready() = true after failed setup")
	}

	sim = hal.NewSimCapture(hal.DefaultSimConfig())
	if _, err := sim.Memory().Claim("usb sniffer", 16); err != nil {
		t.Fatalf("Claim() err = %v", err)
	}
	e, _ = New(sim, nil, nil, nil, DefaultConfig())
	err = e.Setup()
	if !errors.Is(err, ErrResourceExhausted) || !errors.Is(err, hal.ErrBufferInUse) {
		t.Fatalf("Setup() err = %v, want ErrResourceExhausted/ErrBufferInUse", err)
	}
	if n := sim.DMA().Count(); n != 0 {
		t.Fatalf("DMA().Count() = %d after failed setup", n)
	}
}

func TestCleanupReleasesEverything(t *testing.T) {
	rig := newRig(t, smallConfig())
	if err := rig.eng.Arm(1000, 10, 0x01, 0x01); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	rig.eng.Cleanup()
	if rig.eng.Ready() {
		t.Fatalf("Ready() = true after Cleanup")
	}
	if got := rig.sim.Sampler().Loaded(); got != hal.ProgramNone {
		t.Fatalf("Loaded() = %v after Cleanup", got)
	}
	if n := rig.sim.DMA().Count(); n != 0 {
		t.Fatalf("DMA().Count() = %d after Cleanup", n)
	}
	if owner := rig.sim.Memory().Owner(); owner != "" {
		t.Fatalf("Owner() = %q after Cleanup", owner)
	}
	// The companion was released from the armed capture.
	want := []kernel.Kind{kernel.MsgCaptureArm, kernel.MsgCaptureDone}
	if diff := cmp.Diff(want, rig.comp.get()); diff != "" {
		t.Fatalf("handshakes mismatch (-want +got):\n%s", diff)
	}
}

func TestCancelUsesCompletionTeardown(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	rig.sim.SetSource(hal.SampleFunc(func(uint64) uint8 { return 0 }))
	if err := e.Arm(1000, 10, 0x01, 0x01); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	rig.sim.Step(100)
	e.Cancel()
	if got := e.State(); got != Idle {
		t.Fatalf("State() = %v after Cancel", got)
	}
	if got := rig.sim.Sampler().Loaded(); got != hal.ProgramNone {
		t.Fatalf("Loaded() = %v after Cancel", got)
	}
	st := e.Stats()
	if st.End != EndCancel || st.Captured != 0 {
		t.Fatalf("Stats() = %+v", st)
	}
	want := []kernel.Kind{kernel.MsgCaptureArm, kernel.MsgCaptureDone}
	if diff := cmp.Diff(want, rig.comp.get()); diff != "" {
		t.Fatalf("handshakes mismatch (-want +got):\n%s", diff)
	}
}

func TestStopKeepsPartialCapture(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	if err := e.Arm(1000, 1000, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	rig.sim.Step(10)
	e.Stop()
	if got := e.WritePointer(); got != 9 {
		t.Fatalf("WritePointer() = %d, want 9", got)
	}
	st := e.Stats()
	if st.End != EndStop || st.Captured != 10 {
		t.Fatalf("Stats() = %+v", st)
	}
	// Stop on an idle engine is a no-op.
	e.Stop()
	if got := e.Stats().End; got != EndStop {
		t.Fatalf("Stats().End = %v", got)
	}
}

func TestStopAfterWrapCountsWholeRing(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	if err := e.Arm(1000, 1000, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	// 100 samples through a 64-byte ring: six full chunks, then 4 into
	// channel 2.
	rig.sim.Step(100)
	if got := rig.sim.DMA().Completed(); got != 6 {
		t.Fatalf("Completed() = %d, want 6", got)
	}
	e.Stop()
	if got := e.WritePointer(); got != 35 {
		t.Fatalf("WritePointer() = %d, want 35", got)
	}
	if got := e.Stats().Captured; got != 64 {
		t.Fatalf("Stats().Captured = %d, want 64", got)
	}
	// The newest sample is the 100th.
	if got := snapshot(t, e)[35]; got != 99 {
		t.Fatalf("ring[35] = %d, want 99", got)
	}
}

func TestCancelCountsTriggeredSamples(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	if err := e.Arm(1000, 50, 0x01, 0x01); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	rig.sim.SetSource(hal.SampleFunc(func(uint64) uint8 { return 1 }))
	rig.sim.Step(40)
	e.Cancel()
	if got := e.Stats().Captured; got != 40 {
		t.Fatalf("Stats().Captured = %d, want 40", got)
	}
}

func TestUnresolvedTailLeavesPointer(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	if err := e.Arm(1000, 1000, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	rig.sim.Step(20)
	before := e.WritePointer()
	for i := 0; i < rig.sim.DMA().Count(); i++ {
		rig.sim.SetBusy(i, false, 0)
	}
	e.Stop()
	if got := e.WritePointer(); got != before {
		t.Fatalf("WritePointer() = %d, want %d", got, before)
	}
	if got := e.State(); got != Idle {
		t.Fatalf("State() = %v, want Idle", got)
	}
	st := e.Stats()
	if st.End != EndStop || st.Captured != 0 {
		t.Fatalf("Stats() = %+v", st)
	}
	want := []string{"capture: tail unresolved: no busy channel"}
	if diff := cmp.Diff(want, rig.log.get()); diff != "" {
		t.Fatalf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestArmSeesSamplesTakenDuringEnable(t *testing.T) {
	simCfg := hal.DefaultSimConfig()
	simCfg.EnableBurst = 3
	rig := newSimRig(t, smallConfig(), simCfg)
	e := rig.eng
	if err := e.Arm(1000, 1000, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	e.IsDone()
	e.IsDone()
	if got := e.State(); got != Capturing {
		t.Fatalf("State() = %v, want Capturing", got)
	}
	e.Stop()
	if got := e.Stats().Captured; got != 3 {
		t.Fatalf("Stats().Captured = %d, want 3", got)
	}
}

func TestWindowedRead(t *testing.T) {
	rig := newRig(t, DefaultConfig())
	e := rig.eng
	if err := e.Arm(1e6, 1000, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	rig.sim.Step(1000)
	if !e.IsDone() {
		t.Fatalf("IsDone() = false")
	}

	dst := make([]byte, 4)
	// Offset 1 addresses the oldest of the last 1000 samples.
	if n := e.ReadWindow(dst, 1, 1000); n != 4 {
		t.Fatalf("ReadWindow() = %d, want 4", n)
	}
	if diff := cmp.Diff([]byte{0, 1, 2, 3}, dst); diff != "" {
		t.Fatalf("ReadWindow() mismatch (-want +got):\n%s", diff)
	}
	e.ReadWindow(dst, 997, 1000)
	want := []byte{byte(996 & 0xff), byte(997 & 0xff), byte(998 & 0xff), byte(999 & 0xff)}
	if diff := cmp.Diff(want, dst); diff != "" {
		t.Fatalf("ReadWindow() mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderRequiresIdle(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	if err := e.Arm(1000, 100, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	if e.View(func(Reader) {}) {
		t.Fatalf("View() = true while armed")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("Dump() while armed did not panic")
		}
	}()
	var c uint32
	e.Dump(&c)
}

func TestArmBeforeSetupPanics(t *testing.T) {
	e, _ := New(hal.NewSimCapture(hal.DefaultSimConfig()), nil, nil, nil, smallConfig())
	defer func() {
		if recover() == nil {
			t.Fatalf("Arm() before Setup did not panic")
		}
	}()
	e.Arm(1000, 10, 0, 0)
}

func TestArmRejectsBadArguments(t *testing.T) {
	rig := newRig(t, smallConfig())
	if err := rig.eng.Arm(1000, 0, 0, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Arm(0 samples) err = %v", err)
	}
	if err := rig.eng.Arm(0, 10, 0, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Arm(0 Hz) err = %v", err)
	}
	if got := rig.eng.State(); got != Idle {
		t.Fatalf("State() = %v", got)
	}
}

type failingGate struct{}

func (failingGate) Handshake(ctx context.Context, _ kernel.Kind, _ uint32) (uint32, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestArmGateTimeout(t *testing.T) {
	sim := hal.NewSimCapture(hal.DefaultSimConfig())
	cfg := smallConfig()
	cfg.GateTimeout = 5 * time.Millisecond
	e, _ := New(sim, failingGate{}, nil, nil, cfg)
	if err := e.Setup(); err != nil {
		t.Fatalf("Setup() err = %v", err)
	}
	err := e.Arm(1000, 10, 0, 0)
	if !errors.Is(err, ErrGateTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Arm() err = %v, want ErrGateTimeout", err)
	}
	if got := e.State(); got != Idle {
		t.Fatalf("State() = %v", got)
	}
	if got := sim.Sampler().Loaded(); got != hal.ProgramNone {
		t.Fatalf("Loaded() = %v after failed arm", got)
	}
}

func TestWait(t *testing.T) {
	rig := newRig(t, smallConfig())
	e := rig.eng
	if err := e.Arm(1000, 10, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	rig.sim.Step(10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("Wait() err = %v", err)
	}

	rig.sim.SetSource(hal.SampleFunc(func(uint64) uint8 { return 0 }))
	if err := e.Arm(1000, 10, 0x01, 0x01); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := e.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() err = %v, want context.Canceled", err)
	}
	if got := e.Stats().End; got != EndCancel {
		t.Fatalf("Stats().End = %v, want %v", got, EndCancel)
	}
}
