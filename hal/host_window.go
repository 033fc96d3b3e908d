//go:build !tinygo && cgo

package hal

import (
	"context"

	"github.com/hajimehoshi/ebiten/v2"

	"buspirate/internal/buildinfo"
)

// RunWindow shows the LCD framebuffer in a desktop window at twice its size
// and forwards keys to the app. The simulated capture hardware samples in
// real time alongside it. It blocks until the window closes.
func RunWindow(cfg HostConfig, newApp func(HAL) func() error) error {
	h := NewHost(cfg).(*hostHAL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.sim.Run(ctx)

	w, ht := h.fb.width, h.fb.height
	g := &lcdWindow{
		h:     h,
		step:  newApp(h),
		frame: make([]byte, len(h.fb.buf)),
		rgba:  make([]byte, w*ht*4),
	}
	ebiten.SetWindowTitle("Logic Analyzer (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(w*2, ht*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

// lcdWindow is the ebiten game: Update runs one app step, Draw uploads the
// last presented frame.
type lcdWindow struct {
	h     *hostHAL
	step  func() error
	frame []byte
	rgba  []byte
	img   *ebiten.Image
}

func (g *lcdWindow) Update() error {
	g.h.kbd.poll()
	g.h.t.advance()
	if g.step == nil {
		return nil
	}
	return g.step()
}

func (g *lcdWindow) Draw(screen *ebiten.Image) {
	g.h.fb.snapshotRGB565(g.frame)
	for i, j := 0, 0; i+1 < len(g.frame); i, j = i+2, j+4 {
		r, gg, b := unpackRGB565(uint16(g.frame[i]) | uint16(g.frame[i+1])<<8)
		g.rgba[j], g.rgba[j+1], g.rgba[j+2], g.rgba[j+3] = r, gg, b, 0xff
	}
	if g.img == nil {
		g.img = ebiten.NewImage(g.h.fb.width, g.h.fb.height)
	}
	g.img.WritePixels(g.rgba)
	screen.DrawImage(g.img, nil)
}

func (g *lcdWindow) Layout(int, int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
