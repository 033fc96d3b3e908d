package capture

import (
	"fmt"
	"math/bits"

	"buspirate/hal"
)

// TriggerSpec selects which channel starts a capture and on which level.
type TriggerSpec struct {
	Mask      uint8
	Direction uint8
}

// Pin returns the lowest set bit of Mask. ok is false when Mask is zero.
func (t TriggerSpec) Pin() (pin uint8, ok bool) {
	if t.Mask == 0 {
		return 0, false
	}
	return uint8(bits.TrailingZeros8(t.Mask)), true
}

// Level returns the Direction bit at the trigger pin.
func (t TriggerSpec) Level() bool {
	pin, ok := t.Pin()
	if !ok {
		return false
	}
	return t.Direction&(1<<pin) != 0
}

// Program selects the waveform program for t. An empty mask samples
// unconditionally; otherwise the lowest masked pin wins and its direction
// bit chooses between the high and low trigger programs.
func (t TriggerSpec) Program() (prog hal.SampleProgram, pin uint8) {
	pin, ok := t.Pin()
	if !ok {
		return hal.ProgramUnconditional, 0
	}
	if t.Direction&(1<<pin) != 0 {
		return hal.ProgramTriggerHigh, pin
	}
	return hal.ProgramTriggerLow, pin
}

func (t TriggerSpec) String() string {
	pin, ok := t.Pin()
	if !ok {
		return "none"
	}
	if t.Level() {
		return fmt.Sprintf("IO%d high", pin)
	}
	return fmt.Sprintf("IO%d low", pin)
}
