//go:build tinygo && baremetal && rp2040

package hal

import (
	"errors"
	"machine"
	"strconv"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ili9341"
)

const (
	// Capture memory: four 32 KiB chunks, aligned for ring-wrapped DMA writes.
	rpCaptureBytes = 128 * 1024
	rpCaptureAlign = 32 * 1024
	// IO0..IO7 sit on GP2..GP9.
	rpSampleBase = machine.GP2
)

var errProbeInput = errors.New("gpio: probe pins are inputs")

type tinyGoHAL struct {
	logger uartLogger
	led    pinLED
	gpio   GPIO
	fb     Framebuffer
	t      *tickSource
	cap    *rp2040Capture
}

// New returns the RP2040 HAL.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// LCD: ILI9341 on SPI1 (GP10 SCK, GP11 SDO, GP12 SDI), CS GP13, DC GP14, RST GP15.
// Capture: PIO0 SM0 samples GP2..GP9.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	led := pinLED(machine.LED)
	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	log := uartLogger{uart}

	// Without a panel the viewer still draws, into RAM only.
	var fb Framebuffer
	if lcd, err := newLCDFramebuffer(); err == nil {
		fb = lcd
	} else {
		log.WriteLineString("lcd: " + err.Error())
		fb = NewFramebuffer(320, 240)
	}

	pins := make(pinBank, 0, SampleChannels+1)
	for i := 0; i < SampleChannels; i++ {
		pins = append(pins, probePin(rpSampleBase+machine.Pin(i)))
	}
	pins = append(pins, newLEDPin("LED", led))

	return &tinyGoHAL{
		logger: log,
		led:    led,
		gpio:   pins,
		fb:     fb,
		t:      newTickSource(),
		cap:    newRP2040Capture(rpSampleBase, rpCaptureBytes, rpCaptureAlign),
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) LED() LED         { return h.led }
func (h *tinyGoHAL) GPIO() GPIO       { return h.gpio }
func (h *tinyGoHAL) Display() Display { return h }
func (h *tinyGoHAL) Input() Input     { return h }
func (h *tinyGoHAL) Time() Time       { return h.t }
func (h *tinyGoHAL) Capture() Capture { return h.cap }

func (h *tinyGoHAL) Framebuffer() Framebuffer { return h.fb }

// Keyboard is nil: the board has no keys.
func (h *tinyGoHAL) Keyboard() Keyboard { return nil }

type uartLogger struct {
	uart *machine.UART
}

func (l uartLogger) WriteLineString(s string) { l.WriteLineBytes([]byte(s)) }

func (l uartLogger) WriteLineBytes(b []byte) {
	l.uart.Write(b)
	l.uart.Write([]byte("\r\n"))
}

type pinLED machine.Pin

func (l pinLED) High() { machine.Pin(l).High() }
func (l pinLED) Low()  { machine.Pin(l).Low() }

// probePin reads one of IO0..IO7. The pins belong to the PIO; reading the
// input level does not disturb sampling.
type probePin machine.Pin

func (p probePin) Name() string        { return "IO" + strconv.Itoa(int(machine.Pin(p)-rpSampleBase)) }
func (p probePin) Read() (bool, error) { return machine.Pin(p).Get(), nil }
func (p probePin) Write(bool) error    { return errProbeInput }

// tickSource counts milliseconds on its own goroutine.
type tickSource struct {
	ch chan uint64
}

func newTickSource() *tickSource {
	t := &tickSource{ch: make(chan uint64, 16)}
	go func() {
		var n uint64
		for range time.Tick(time.Millisecond) {
			n++
			select {
			case t.ch <- n:
			default:
			}
		}
	}()
	return t
}

func (t *tickSource) Ticks() <-chan uint64 { return t.ch }

// lcdFramebuffer keeps the frame in memory as little-endian RGB565 and
// pushes it to the panel in bands on Present.
type lcdFramebuffer struct {
	*memFramebuffer
	lcd  *ili9341.Device
	band []byte
}

const lcdBandRows = 8

func newLCDFramebuffer() (*lcdFramebuffer, error) {
	if err := machine.SPI1.Configure(machine.SPIConfig{
		SCK:       machine.GP10,
		SDO:       machine.GP11,
		SDI:       machine.GP12,
		Frequency: 40_000_000,
	}); err != nil {
		return nil, err
	}
	lcd := ili9341.NewSPI(machine.SPI1, machine.GP14, machine.GP13, machine.GP15)
	lcd.Configure(ili9341.Config{})
	if err := lcd.SetRotation(drivers.Rotation90); err != nil {
		return nil, err
	}
	w, h := lcd.Size()
	f := &lcdFramebuffer{lcd: lcd, band: make([]byte, int(w)*2*lcdBandRows)}
	f.memFramebuffer = newMemFramebuffer(int(w), int(h), f.push)
	return f, nil
}

func (f *lcdFramebuffer) push(buf []byte) error {
	stride := f.width * 2
	for y := 0; y < f.height; y += lcdBandRows {
		rows := min(lcdBandRows, f.height-y)
		src := buf[y*stride : (y+rows)*stride]
		dst := f.band[:len(src)]
		for i := 0; i+1 < len(src); i += 2 {
			// The panel expects big-endian pixels.
			dst[i] = src[i+1]
			dst[i+1] = src[i]
		}
		if err := f.lcd.DrawRGBBitmap8(0, int16(y), dst, int16(f.width), int16(rows)); err != nil {
			return err
		}
	}
	return nil
}
