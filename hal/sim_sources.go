package hal

// CounterSource puts the tick count on the channels: channel i toggles
// every 2^i ticks.
func CounterSource() SampleSource {
	return SampleFunc(func(tick uint64) uint8 { return uint8(tick) })
}

type uartSource struct {
	pin   uint8
	spb   uint64
	frame []bool
}

// NewUARTSource drives an 8N1 stream of msg on pin, repeating forever with
// two idle frames between repeats. Other channels read low. samplesPerBit
// is the number of ticks per bit.
func NewUARTSource(pin uint8, samplesPerBit int, msg []byte) SampleSource {
	if samplesPerBit < 1 {
		samplesPerBit = 1
	}
	var bits []bool
	for i := 0; i < 20; i++ {
		bits = append(bits, true)
	}
	for _, b := range msg {
		bits = append(bits, false)
		for i := 0; i < 8; i++ {
			bits = append(bits, b&(1<<uint(i)) != 0)
		}
		bits = append(bits, true)
	}
	return &uartSource{pin: pin % SampleChannels, spb: uint64(samplesPerBit), frame: bits}
}

func (s *uartSource) Sample(tick uint64) uint8 {
	i := (tick / s.spb) % uint64(len(s.frame))
	if s.frame[i] {
		return 1 << s.pin
	}
	return 0
}

// SimOf returns the simulated capture hardware behind h, if any.
func SimOf(h HAL) (*SimCapture, bool) {
	s, ok := h.Capture().(*SimCapture)
	return s, ok
}
