package app

import (
	"buspirate/capture"
	"buspirate/hal"
	"buspirate/kernel"
)

// indicator lights the LED while a capture is armed or running and mirrors
// the state into the shared status line.
type indicator struct {
	led    hal.LED
	status *kernel.Status
}

func newIndicator(led hal.LED, status *kernel.Status) *indicator {
	return &indicator{led: led, status: status}
}

func (i *indicator) SetState(s capture.State) {
	if i.led != nil {
		if s == capture.Idle {
			i.led.Low()
		} else {
			i.led.High()
		}
	}
	if i.status != nil && s != capture.Idle {
		i.status.Set("capture: " + s.String())
	}
}
