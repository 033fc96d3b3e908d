package hooks

import (
	"fmt"

	"buspirate/capture"
	"buspirate/hal"
)

// Trace renders the captured samples as one line per channel, oldest on
// the left, squeezed into at most width columns. '-' is high, '_' is low and
// '|' marks a column that saw both levels.
func Trace(r capture.Reader, width int) []string {
	n := r.Captured()
	if n == 0 || width <= 0 {
		return nil
	}
	cols := min(uint32(width), n)
	start := r.WindowStart(1, n)
	lines := make([]string, 0, hal.SampleChannels)
	row := make([]byte, cols)
	for ch := uint8(0); ch < hal.SampleChannels; ch++ {
		for c := uint32(0); c < cols; c++ {
			var hi, lo bool
			for i := c * n / cols; i < (c+1)*n/cols; i++ {
				if r.Bit(start+i, ch) {
					hi = true
				} else {
					lo = true
				}
			}
			switch {
			case hi && lo:
				row[c] = '|'
			case hi:
				row[c] = '-'
			default:
				row[c] = '_'
			}
		}
		lines = append(lines, fmt.Sprintf("IO%d %s", ch, row))
	}
	return lines
}
