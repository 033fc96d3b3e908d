package decode

import "fmt"

// I2C decodes START/STOP conditions and acknowledged bytes.
type I2C struct {
	SCL, SDA int
}

func (I2C) Name() string { return "I2C" }

func (c I2C) Decode(samples []byte, _ float64) []string {
	if !validPin(c.SCL) {
		return []string{"I2C: set SCL on a pin"}
	}
	if !validPin(c.SDA) {
		return []string{"I2C: set SDA on a pin"}
	}
	if len(samples) == 0 {
		return []string{"I2C: no activity"}
	}

	var out []string
	inFrame := false
	lastSCL := bit(samples[0], c.SCL)
	lastSDA := bit(samples[0], c.SDA)
	var cur uint8
	bitPos := 0

	for i := 1; i < len(samples); i++ {
		scl := bit(samples[i], c.SCL)
		sda := bit(samples[i], c.SDA)

		switch {
		case lastSDA && !sda && scl:
			inFrame = true
			out = append(out, "I2C: START")
			cur, bitPos = 0, 0
		case !lastSDA && sda && scl && inFrame:
			out = append(out, "I2C: STOP")
			inFrame = false
			cur, bitPos = 0, 0
		case inFrame && !lastSCL && scl:
			if bitPos < 8 {
				if sda {
					cur |= 1 << uint(7-bitPos)
				}
				bitPos++
				break
			}
			ack := "NACK"
			if !sda {
				ack = "ACK"
			}
			out = append(out, fmt.Sprintf("I2C: 0x%02X %s", cur, ack))
			cur, bitPos = 0, 0
		}

		lastSCL = scl
		lastSDA = sda
		if len(out) >= maxLines {
			break
		}
	}
	if len(out) == 0 {
		return []string{"I2C: no activity"}
	}
	return out
}
