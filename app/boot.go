package app

import (
	"buspirate/hal"
	"buspirate/internal/buildinfo"
)

// bootScreen shows a one-line boot step under the banner.
func bootScreen(h hal.HAL, msg string) {
	if l := h.Logger(); l != nil {
		l.WriteLineString("boot: " + msg)
	}
	paint(h, black, white, []string{"Logic analyzer " + buildinfo.Short(), msg})
}
