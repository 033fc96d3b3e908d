package laview

import (
	"image/color"
	"testing"

	"buspirate/capture"
	"buspirate/hal"
	"buspirate/kernel"
)

func pixel565(fb hal.Framebuffer, x, y int) uint16 {
	buf := fb.Buffer()
	off := y*fb.StrideBytes() + x*2
	return uint16(buf[off]) | uint16(buf[off+1])<<8
}

func is(fb hal.Framebuffer, x, y int, c color.RGBA) bool {
	return pixel565(fb, x, y) == pack565(c)
}

func newCapture(t *testing.T, cfg capture.Config, samples uint32, src hal.SampleFunc) *capture.Engine {
	t.Helper()
	sim := hal.NewSimCapture(hal.DefaultSimConfig())
	sim.SetSource(src)
	eng, err := capture.New(sim, nil, nil, nil, cfg)
	if err != nil {
		t.Fatalf("capture.New() err = %v", err)
	}
	if err := eng.Setup(); err != nil {
		t.Fatalf("Setup() err = %v", err)
	}
	if err := eng.Arm(1e6, samples, 0, 0); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	sim.Step(int(samples))
	if !eng.IsDone() {
		t.Fatalf("IsDone() = false")
	}
	return eng
}

func TestRenderLanes(t *testing.T) {
	cfg := capture.DefaultConfig()
	cfg.ChunkCount, cfg.ChunkSize = 4, 16
	eng := newCapture(t, cfg, 32, func(uint64) uint8 { return 0x01 })

	fb := hal.NewFramebuffer(160, 200)
	v := New(fb, eng, nil)
	if !v.Render() {
		t.Fatalf("Render() = false")
	}
	headerH, _, laneH := v.layout()
	x := int(v.labelWidth()) + 5

	if !is(fb, x, int(headerH)+2, colorWaveHi) {
		t.Fatalf("IO0 not drawn high at (%d, %d): %#04x", x, headerH+2, pixel565(fb, x, int(headerH)+2))
	}
	lane1 := int(headerH + laneH)
	if !is(fb, x, lane1+int(laneH)-4, colorWaveLo) {
		t.Fatalf("IO1 not drawn low")
	}
	// Past the last sample nothing is drawn.
	if x := int(v.labelWidth()) + 40; !is(fb, x, int(headerH)+2, colorBG) {
		t.Fatalf("trace drawn past the capture end")
	}
}

func TestSuspendedWhileCapturing(t *testing.T) {
	cfg := capture.DefaultConfig()
	cfg.ChunkCount, cfg.ChunkSize = 4, 16
	eng := newCapture(t, cfg, 16, func(tick uint64) uint8 { return uint8(tick) })

	v := New(hal.NewFramebuffer(160, 200), eng, nil)
	v.Idle()
	if v.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", v.Frames())
	}
	v.Idle()
	if v.Frames() != 1 {
		t.Fatalf("Idle() redrew a clean frame")
	}

	v.Handle(kernel.Message{Kind: kernel.MsgCaptureArm, Arg: 16})
	if !v.Suspended() {
		t.Fatalf("Suspended() = false after arm")
	}
	v.HandleKey(hal.KeyEvent{Code: hal.KeyUp, Press: true})
	v.Idle()
	if v.Frames() != 1 {
		t.Fatalf("Idle() drew while suspended")
	}

	v.Handle(kernel.Message{Kind: kernel.MsgCaptureDone})
	v.Idle()
	if v.Frames() != 2 {
		t.Fatalf("Frames() = %d after done, want 2", v.Frames())
	}
	if got := v.Handle(kernel.Message{Kind: kernel.MsgPing, Arg: 7}); got != 7 {
		t.Fatalf("Handle(ping) = %d, want 7", got)
	}
}

func TestScrollClamps(t *testing.T) {
	eng := newCapture(t, capture.DefaultConfig(), 10000, func(tick uint64) uint8 { return uint8(tick >> 3) })

	v := New(hal.NewFramebuffer(160, 200), eng, nil)
	visible := uint32(v.waveWidth())

	v.HandleKey(hal.KeyEvent{Code: hal.KeyLeft, Press: true})
	if v.scroll != visible/4 {
		t.Fatalf("scroll = %d, want %d", v.scroll, visible/4)
	}
	v.HandleKey(hal.KeyEvent{Code: hal.KeyHome, Press: true})
	v.Render()
	if want := 10000 - visible; v.scroll != want {
		t.Fatalf("scroll after Home = %d, want %d", v.scroll, want)
	}
	v.HandleKey(hal.KeyEvent{Code: hal.KeyUp, Press: true})
	v.HandleKey(hal.KeyEvent{Code: hal.KeyUp, Press: true})
	v.Render()
	if want := 10000 - 4*visible; v.zoom != 4 || v.scroll != want {
		t.Fatalf("zoom=%d scroll=%d, want 4/%d", v.zoom, v.scroll, want)
	}
	v.HandleKey(hal.KeyEvent{Code: hal.KeyEnd, Press: true})
	if v.scroll != 0 {
		t.Fatalf("scroll after End = %d", v.scroll)
	}
}

func TestRenderRefusedWhileArmed(t *testing.T) {
	cfg := capture.DefaultConfig()
	cfg.ChunkCount, cfg.ChunkSize = 4, 16
	eng := newCapture(t, cfg, 16, func(uint64) uint8 { return 0 })
	if err := eng.Arm(1e6, 16, 0x01, 0x01); err != nil {
		t.Fatalf("Arm() err = %v", err)
	}
	v := New(hal.NewFramebuffer(160, 200), eng, nil)
	if v.Render() {
		t.Fatalf("Render() = true while armed")
	}
}

func TestKeyRequests(t *testing.T) {
	cfg := capture.DefaultConfig()
	cfg.ChunkCount, cfg.ChunkSize = 4, 16
	eng := newCapture(t, cfg, 16, func(uint64) uint8 { return 0 })

	v := New(hal.NewFramebuffer(160, 200), eng, nil)
	if v.TakeArmRequest() || v.TakeCancelRequest() {
		t.Fatalf("requests pending before any key")
	}
	v.HandleKey(hal.KeyEvent{Code: hal.KeyEnter, Press: true})
	v.HandleKey(hal.KeyEvent{Code: hal.KeyEscape, Press: true})
	if !v.TakeArmRequest() {
		t.Fatalf("TakeArmRequest() = false after Enter")
	}
	if v.TakeArmRequest() {
		t.Fatalf("TakeArmRequest() = true twice")
	}
	if !v.TakeCancelRequest() {
		t.Fatalf("TakeCancelRequest() = false after Escape")
	}
}

func TestFollowStatus(t *testing.T) {
	cfg := capture.DefaultConfig()
	cfg.ChunkCount, cfg.ChunkSize = 4, 16
	eng := newCapture(t, cfg, 16, func(uint64) uint8 { return 0 })

	var st kernel.Status
	v := New(hal.NewFramebuffer(160, 200), eng, nil)
	v.FollowStatus(&st)
	v.Idle()
	frames := v.Frames()

	st.Set("capture: armed")
	v.Idle()
	if v.msg != "capture: armed" {
		t.Fatalf("msg = %q, want %q", v.msg, "capture: armed")
	}
	if v.Frames() != frames+1 {
		t.Fatalf("Frames() = %d, want %d", v.Frames(), frames+1)
	}
	v.Idle()
	if v.Frames() != frames+1 {
		t.Fatalf("unchanged status redrew")
	}
}

func TestCanvasPage(t *testing.T) {
	fb := hal.NewFramebuffer(64, 32)
	c := NewCanvas(fb)
	if err := c.Page(colorBG, colorFG, []string{"a long line that has to wrap", "x"}); err != nil {
		t.Fatalf("Page() err = %v", err)
	}
	lit := 0
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			if !is(fb, x, y, colorBG) {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Fatal("Page() drew nothing")
	}
}

func TestFillRectangleClips(t *testing.T) {
	fb := hal.NewFramebuffer(8, 8)
	c := NewCanvas(fb)
	c.FillRectangle(-4, 6, 100, 100, colorCursor)
	if !is(fb, 0, 7, colorCursor) || !is(fb, 7, 6, colorCursor) {
		t.Error("clipped rectangle not drawn")
	}
	if is(fb, 0, 5, colorCursor) {
		t.Error("rectangle drawn above its top edge")
	}
}

func TestFitText(t *testing.T) {
	if got := fitText("héllo", 2); got != "hé" {
		t.Errorf("fitText() = %q, want %q", got, "hé")
	}
	if got := fitText("abc", -1); got != "" {
		t.Errorf("fitText() = %q, want empty", got)
	}
}
