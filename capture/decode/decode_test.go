package decode

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func repeat(v byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func uartFrame(b byte, spb int) []byte {
	out := repeat(0, spb)
	for i := 0; i < 8; i++ {
		out = append(out, repeat((b>>uint(i))&1, spb)...)
	}
	return append(out, repeat(1, spb)...)
}

func TestUART(t *testing.T) {
	samples := repeat(1, 10)
	samples = append(samples, uartFrame('A', 8)...)
	samples = append(samples, uartFrame(0x07, 8)...)
	samples = append(samples, repeat(1, 10)...)

	got := UART{RX: 0, Baud: 1000}.Decode(samples, 8000)
	want := []string{"UART: 0x41 'A'", "UART: 0x07 '.'"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestUARTRejectsLowRate(t *testing.T) {
	got := UART{RX: 0, Baud: 9600}.Decode(repeat(1, 100), 10000)
	if len(got) != 1 || got[0] != "UART: need higher sample rate (samples/bit=1.04)" {
		t.Fatalf("Decode() = %q", got)
	}
}

func TestSPIMode0(t *testing.T) {
	const mosi, miso = 0xA5, 0x3C
	samples := []byte{0x08, 0x08}
	for i := 7; i >= 0; i-- {
		d := byte((mosi>>uint(i))&1)<<1 | byte((miso>>uint(i))&1)<<2
		samples = append(samples, d, d|0x01)
	}
	samples = append(samples, 0x00, 0x08)

	got := SPI{CLK: 0, MOSI: 1, MISO: 2, CS: 3}.Decode(samples, 0)
	want := []string{"SPI: MOSI=0xA5 MISO=0x3C"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestI2CAddressAck(t *testing.T) {
	samples := []byte{0x03, 0x03, 0x01, 0x00}
	const addr = 0x50
	for i := 7; i >= 0; i-- {
		d := byte((addr>>uint(i))&1) << 1
		samples = append(samples, d, d|0x01, d)
	}
	samples = append(samples, 0x00, 0x01, 0x00)
	samples = append(samples, 0x00, 0x01, 0x03)

	got := I2C{SCL: 0, SDA: 1}.Decode(samples, 0)
	want := []string{"I2C: START", "I2C: 0x50 ACK", "I2C: STOP"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	d, err := Parse("spi:clk=4,mode=3")
	if err != nil {
		t.Fatalf("Parse() err = %v", err)
	}
	want := SPI{CLK: 4, MOSI: 1, MISO: 2, CS: 3, CPOL: true, CPHA: true}
	if diff := cmp.Diff(Decoder(want), d); diff != "" {
		t.Fatalf("Parse() mismatch (-want +got):\n%s", diff)
	}
	if d, _ := Parse("uart:baud=9600"); d != (UART{RX: 0, Baud: 9600}) {
		t.Fatalf("Parse(uart) = %#v", d)
	}
	if _, err := Parse("can"); !errors.Is(err, ErrUnknownProtocol) {
		t.Fatalf("Parse(can) err = %v, want ErrUnknownProtocol", err)
	}
	if _, err := Parse("i2c:scl"); err == nil {
		t.Fatalf("Parse(i2c:scl) err = nil")
	}
}
