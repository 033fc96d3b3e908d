package app

import (
	"fmt"
	"image/color"
	"runtime/debug"
	"strings"

	"buspirate/hal"
	"buspirate/laview"
)

var (
	black = color.RGBA{A: 0xff}
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// showPanic logs v with the stack, shows both on the LCD and halts.
func showPanic(h hal.HAL, v any) {
	lines := []string{fmt.Sprintf("Logic analyzer panic: %v", v)}
	for _, line := range strings.Split(string(debug.Stack()), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if l := h.Logger(); l != nil {
		for _, line := range lines {
			l.WriteLineString(line)
		}
	}
	paint(h, white, black, lines)
	select {}
}

// paint fills the LCD with lines, if there is one.
func paint(h hal.HAL, bg, fg color.RGBA, lines []string) {
	d := h.Display()
	if d == nil || d.Framebuffer() == nil {
		return
	}
	_ = laview.NewCanvas(d.Framebuffer()).Page(bg, fg, lines)
}
