// Package decode turns captured 8-channel samples into protocol lines.
package decode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// maxLines bounds the output of a single decode.
const maxLines = 128

// NoPin marks an unused optional signal.
const NoPin = -1

var ErrUnknownProtocol = errors.New("decode: unknown protocol")

// Decoder decodes samples taken at sampleHz, oldest first.
type Decoder interface {
	Name() string
	Decode(samples []byte, sampleHz float64) []string
}

// Parse builds a decoder from "proto:key=value,...", e.g.
// "uart:rx=0,baud=115200", "spi:clk=0,mosi=1,miso=2,cs=3,mode=0" or
// "i2c:scl=0,sda=1". Unset pins keep their defaults.
func Parse(s string) (Decoder, error) {
	proto, args, _ := strings.Cut(strings.TrimSpace(s), ":")
	kv := map[string]int{}
	if args != "" {
		for _, f := range strings.Split(args, ",") {
			k, v, ok := strings.Cut(f, "=")
			if !ok {
				return nil, fmt.Errorf("decode: bad argument %q", f)
			}
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("decode: %s: %w", k, err)
			}
			kv[strings.ToLower(strings.TrimSpace(k))] = n
		}
	}
	get := func(k string, def int) int {
		if v, ok := kv[k]; ok {
			return v
		}
		return def
	}

	var d Decoder
	switch strings.ToLower(proto) {
	case "uart":
		d = UART{RX: get("rx", 0), Baud: get("baud", 115200)}
	case "spi":
		mode := get("mode", 0)
		d = SPI{
			CLK:  get("clk", 0),
			MOSI: get("mosi", 1),
			MISO: get("miso", 2),
			CS:   get("cs", 3),
			CPOL: mode&2 != 0,
			CPHA: mode&1 != 0,
		}
	case "i2c":
		d = I2C{SCL: get("scl", 0), SDA: get("sda", 1)}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, proto)
	}
	return d, nil
}

func validPin(p int) bool {
	return p >= 0 && p < 8
}

func bit(v byte, pin int) bool {
	return v&(1<<uint(pin)) != 0
}

func safeASCII(b byte) string {
	if b >= 0x20 && b <= 0x7e {
		return string([]byte{b})
	}
	return "."
}
