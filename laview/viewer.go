// Package laview draws a finished capture on the LCD.
//
// The viewer runs on the companion core: it implements kernel.Companion,
// stops drawing when the main core arms a capture and redraws once the
// capture is done.
package laview

import (
	"fmt"
	"sync/atomic"

	"buspirate/capture"
	"buspirate/hal"
	"buspirate/kernel"
)

const maxZoom = 64

// Source is where the viewer reads captures from.
type Source interface {
	View(fn func(capture.Reader)) bool
}

// Viewer renders up to eight channel lanes of the newest capture.
type Viewer struct {
	fb  hal.Framebuffer
	d   *Canvas
	ts  textStyle
	src Source
	kb  hal.Keyboard

	// zoom is samples per pixel; scroll is samples back from the newest.
	zoom   int
	scroll uint32

	suspended bool
	dirty     bool
	msg       string
	frames    int

	status    *kernel.Status
	statusSeq uint32

	// Requests raised by keys for the main core.
	armReq    atomic.Bool
	cancelReq atomic.Bool
}

// New returns a viewer drawing into fb. kb may be nil.
func New(fb hal.Framebuffer, src Source, kb hal.Keyboard) *Viewer {
	return &Viewer{
		fb:    fb,
		d:     NewCanvas(fb),
		ts:    newTextStyle(),
		src:   src,
		kb:    kb,
		zoom:  1,
		dirty: true,
		msg:   "ready",
	}
}

// FollowStatus makes the footer track st.
func (v *Viewer) FollowStatus(st *kernel.Status) {
	v.status = st
}

// TakeArmRequest reports and clears a pending Enter press.
func (v *Viewer) TakeArmRequest() bool { return v.armReq.Swap(false) }

// TakeCancelRequest reports and clears a pending Escape press.
func (v *Viewer) TakeCancelRequest() bool { return v.cancelReq.Swap(false) }

// Handle services a gate request from the main core.
func (v *Viewer) Handle(msg kernel.Message) uint32 {
	switch msg.Kind {
	case kernel.MsgCaptureArm:
		v.msg = fmt.Sprintf("armed: %d samples", msg.Arg)
		v.renderStatus()
		v.suspended = true
	case kernel.MsgCaptureDone:
		v.suspended = false
		v.scroll = 0
		v.dirty = true
		v.msg = "done"
	case kernel.MsgPing:
		return msg.Arg
	}
	return 0
}

// Idle handles keys and redraws when needed.
func (v *Viewer) Idle() {
	v.pollKeys()
	v.pollStatus()
	if v.suspended || !v.dirty {
		return
	}
	if v.Render() {
		v.dirty = false
	}
}

// Suspended reports whether a capture is in progress.
func (v *Viewer) Suspended() bool { return v.suspended }

// Frames is the number of full redraws so far.
func (v *Viewer) Frames() int { return v.frames }

func (v *Viewer) pollStatus() {
	if v.status == nil || v.status.Seq() == v.statusSeq {
		return
	}
	v.msg, v.statusSeq = v.status.Get()
	if v.suspended {
		v.renderStatus()
		return
	}
	v.dirty = true
}

func (v *Viewer) pollKeys() {
	if v.kb == nil {
		return
	}
	for {
		select {
		case ev, ok := <-v.kb.Events():
			if !ok {
				v.kb = nil
				return
			}
			if ev.Press {
				v.HandleKey(ev)
			}
		default:
			return
		}
	}
}

// HandleKey scrolls with Left/Right/Home/End and zooms with Up/Down.
// Enter asks for a new capture and Escape for cancelling the running one.
func (v *Viewer) HandleKey(ev hal.KeyEvent) {
	switch ev.Code {
	case hal.KeyEnter:
		v.armReq.Store(true)
		return
	case hal.KeyEscape:
		v.cancelReq.Store(true)
		return
	}

	step := uint32(v.waveWidth()*v.zoom) / 4
	if step == 0 {
		step = 1
	}
	switch ev.Code {
	case hal.KeyLeft:
		v.scroll += step
	case hal.KeyRight:
		if v.scroll > step {
			v.scroll -= step
		} else {
			v.scroll = 0
		}
	case hal.KeyUp:
		if v.zoom < maxZoom {
			v.zoom *= 2
		}
	case hal.KeyDown:
		if v.zoom > 1 {
			v.zoom /= 2
		}
	case hal.KeyHome:
		v.scroll = ^uint32(0)
	case hal.KeyEnd:
		v.scroll = 0
	default:
		return
	}
	v.dirty = true
}

// Render draws the current capture. It returns false if the engine is busy
// or not set up.
func (v *Viewer) Render() bool {
	ok := v.src.View(v.draw)
	if ok {
		v.frames++
		_ = v.d.Display()
	}
	return ok
}

func (v *Viewer) labelWidth() int16 { return 4 * v.ts.width }

func (v *Viewer) waveWidth() int {
	return v.fb.Width() - int(v.labelWidth())
}

func (v *Viewer) layout() (headerH, footerH, laneH int16) {
	h := int16(v.fb.Height())
	headerH = v.ts.height + 2
	footerH = v.ts.height + 2
	laneH = (h - headerH - footerH) / hal.SampleChannels
	return headerH, footerH, laneH
}

// window returns the oldest-first sample range [start, end) on screen.
func (v *Viewer) window(captured uint32) (start, end uint32) {
	visible := uint32(v.waveWidth() * v.zoom)
	maxScroll := uint32(0)
	if captured > visible {
		maxScroll = captured - visible
	}
	if v.scroll > maxScroll {
		v.scroll = maxScroll
	}
	end = captured - v.scroll
	if end > visible {
		start = end - visible
	}
	return start, end
}

func (v *Viewer) draw(r capture.Reader) {
	w := int16(v.fb.Width())
	h := int16(v.fb.Height())
	headerH, footerH, laneH := v.layout()
	v.d.FillRectangle(0, 0, w, h, colorBG)

	st := r.Stats()
	n := r.Captured()
	v.d.FillRectangle(0, 0, w, headerH, colorHeaderBG)
	v.ts.write(v.d, 2, 1, colorFG, "Logic Analyzer")
	info := fmt.Sprintf("%d @ %s", n, fmtHz(st.FreqHz))
	v.ts.write(v.d, w-int16(len(info))*v.ts.width-2, 1, colorDim, info)

	labelW := v.labelWidth()
	waveX := labelW
	start, end := v.window(n)
	first := r.WindowStart(1, n)
	for ch := uint8(0); ch < hal.SampleChannels; ch++ {
		y := headerH + int16(ch)*laneH
		v.d.FillRectangle(0, y+laneH-1, w, 1, colorLaneSep)
		v.ts.write(v.d, 2, y+(laneH-v.ts.height)/2, colorDim, fmt.Sprintf("IO%d", ch))
		if n == 0 {
			continue
		}
		hiY := y + 2
		loY := y + laneH - 4
		var last bool
		for xi := 0; ; xi++ {
			si := start + uint32(xi*v.zoom)
			if si >= end || xi >= v.waveWidth() {
				break
			}
			level := r.Bit(first+si, ch)
			if xi > 0 && level != last {
				v.d.FillRectangle(waveX+int16(xi), hiY, 1, loY-hiY+2, colorEdge)
			}
			last = level
			yy, c := loY, colorWaveLo
			if level {
				yy, c = hiY, colorWaveHi
			}
			v.d.FillRectangle(waveX+int16(xi), yy, 1, 2, c)
		}
	}

	// The oldest sample of a triggered capture is the trigger point.
	if st.Program != hal.ProgramUnconditional && n > 0 && start == 0 {
		v.d.FillRectangle(waveX, headerH, 1, laneH*hal.SampleChannels, colorCursor)
	}

	fy := h - footerH
	v.d.FillRectangle(0, fy, w, footerH, colorHeaderBG)
	line := fmt.Sprintf("zoom:%dx  -%d  trig:%s  %s", v.zoom, v.scroll, st.Trigger, v.msg)
	v.ts.write(v.d, 2, fy+1, colorFG, fitText(line, int(w/v.ts.width)-1))
}

// renderStatus redraws only the footer. It is used while the main core
// waits on the gate, so it must stay short.
func (v *Viewer) renderStatus() {
	w := int16(v.fb.Width())
	_, footerH, _ := v.layout()
	fy := int16(v.fb.Height()) - footerH
	v.d.FillRectangle(0, fy, w, footerH, colorHeaderBG)
	v.ts.write(v.d, 2, fy+1, colorFG, fitText(v.msg, int(w/v.ts.width)-1))
	_ = v.d.Display()
}

func fmtHz(hz float32) string {
	switch {
	case hz >= 1e6:
		return fmt.Sprintf("%gMHz", hz/1e6)
	case hz >= 1e3:
		return fmt.Sprintf("%gkHz", hz/1e3)
	default:
		return fmt.Sprintf("%gHz", hz)
	}
}
