package decode

import "fmt"

// SPI decodes bytes on MOSI and MISO while CS is low. MOSI or MISO may be
// NoPin.
type SPI struct {
	CLK, MOSI, MISO, CS int
	CPOL, CPHA          bool
}

func (SPI) Name() string { return "SPI" }

func (s SPI) Decode(samples []byte, _ float64) []string {
	if !validPin(s.CLK) {
		return []string{"SPI: set CLK on a pin"}
	}
	if !validPin(s.CS) {
		return []string{"SPI: set CS on a pin"}
	}
	if len(samples) == 0 {
		return []string{"SPI: no data"}
	}

	var out []string
	var mosi, miso uint8
	bitPos := 0
	lastCLK := bit(samples[0], s.CLK)
	for i := 1; i < len(samples); i++ {
		if bit(samples[i], s.CS) {
			bitPos, mosi, miso = 0, 0, 0
			lastCLK = bit(samples[i], s.CLK)
			continue
		}
		clk := bit(samples[i], s.CLK)
		if clk == lastCLK {
			continue
		}
		// Leading edge for CPHA=0, trailing edge for CPHA=1.
		if (lastCLK == s.CPOL) != s.CPHA {
			if validPin(s.MOSI) && bit(samples[i], s.MOSI) {
				mosi |= 1 << uint(7-bitPos)
			}
			if validPin(s.MISO) && bit(samples[i], s.MISO) {
				miso |= 1 << uint(7-bitPos)
			}
			bitPos++
			if bitPos == 8 {
				out = append(out, fmt.Sprintf("SPI: MOSI=0x%02X MISO=0x%02X", mosi, miso))
				bitPos, mosi, miso = 0, 0, 0
				if len(out) >= maxLines {
					break
				}
			}
		}
		lastCLK = clk
	}
	if len(out) == 0 {
		return []string{"SPI: no data"}
	}
	return out
}
