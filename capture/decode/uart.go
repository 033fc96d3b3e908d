package decode

import "fmt"

// UART decodes 8N1 frames on RX.
type UART struct {
	RX   int
	Baud int
}

func (UART) Name() string { return "UART" }

func (u UART) Decode(samples []byte, sampleHz float64) []string {
	if !validPin(u.RX) {
		return []string{"UART: set RX on a pin"}
	}
	if u.Baud <= 0 {
		return []string{"UART: invalid baud"}
	}
	if sampleHz <= 0 {
		return []string{"UART: invalid sample rate"}
	}
	samplesPerBit := sampleHz / float64(u.Baud)
	if samplesPerBit < 2 {
		return []string{fmt.Sprintf("UART: need higher sample rate (samples/bit=%.2f)", samplesPerBit)}
	}
	spb := int(samplesPerBit + 0.5)

	var out []string
	for i := 1; i+spb*10 <= len(samples); i++ {
		// Start bit: idle high falling to low.
		if !bit(samples[i-1], u.RX) || bit(samples[i], u.RX) {
			continue
		}
		start := i
		var b uint8
		for n := 0; n < 8; n++ {
			si := start + spb*(n+1) + spb/2
			if bit(samples[si], u.RX) {
				b |= 1 << uint(n)
			}
		}
		stop := bit(samples[start+spb*9+spb/2], u.RX)
		if stop {
			out = append(out, fmt.Sprintf("UART: 0x%02X '%s'", b, safeASCII(b)))
		} else {
			out = append(out, fmt.Sprintf("UART: 0x%02X framing error", b))
		}
		i = start + spb*9 + spb/2
		if len(out) >= maxLines {
			break
		}
	}
	if len(out) == 0 {
		return []string{"UART: no frames"}
	}
	return out
}
