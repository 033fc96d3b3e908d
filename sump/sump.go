// Package sump describes the SUMP logic analyzer wire protocol spoken by
// common PC clients (sigrok "ols", PulseView, the Java OLS client).
//
// Only the codec lives here: opcodes, long-command decoding, the settings
// they imply and the metadata descriptor. Byte values are fixed by the
// client ecosystem.
package sump

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Short (single byte) commands.
const (
	CmdReset    = 0x00
	CmdRun      = 0x01
	CmdID       = 0x02
	CmdMetadata = 0x04
	CmdXON      = 0x11
	CmdXOFF     = 0x13
)

// Long (five byte) commands. Trigger commands repeat every 4 opcodes for
// stages 1-3.
const (
	CmdTriggerMask   = 0xc0
	CmdTriggerValues = 0xc1
	CmdTriggerConfig = 0xc2
	CmdDivider       = 0x80
	CmdReadDelay     = 0x81
	CmdFlags         = 0x82
)

// ID is the reply to CmdID.
const ID = "1ALS"

// Clock is the reference clock the divider counts against.
const Clock = 100_000_000

var ErrShortCommand = errors.New("sump: short command")

// Command is one decoded command. Arg is zero for short commands.
type Command struct {
	Op  byte
	Arg uint32
}

// IsLong reports whether op carries a 32-bit argument.
func IsLong(op byte) bool {
	return op&0x80 != 0
}

// Parse decodes one command from the front of b and returns it with the
// number of bytes consumed. It returns ErrShortCommand if b does not yet
// hold a whole command.
func Parse(b []byte) (Command, int, error) {
	if len(b) == 0 {
		return Command{}, 0, ErrShortCommand
	}
	op := b[0]
	if !IsLong(op) {
		return Command{Op: op}, 1, nil
	}
	if len(b) < 5 {
		return Command{}, 0, ErrShortCommand
	}
	return Command{Op: op, Arg: binary.LittleEndian.Uint32(b[1:5])}, 5, nil
}

// Encode returns the wire form of c.
func (c Command) Encode() []byte {
	if !IsLong(c.Op) {
		return []byte{c.Op}
	}
	b := []byte{c.Op, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(b[1:], c.Arg)
	return b
}

func (c Command) String() string {
	if IsLong(c.Op) {
		return fmt.Sprintf("0x%02x(0x%08x)", c.Op, c.Arg)
	}
	return fmt.Sprintf("0x%02x", c.Op)
}

// Settings accumulates the configuration sent ahead of CmdRun.
type Settings struct {
	Divider      uint32
	ReadCount    uint16
	DelayCount   uint16
	TriggerMask  uint32
	TriggerValue uint32
	TriggerConf  uint32
	Flags        uint32
}

// Apply folds c into s. It reports whether c was a configuration command.
// Trigger stages other than 0 are accepted and ignored.
func (s *Settings) Apply(c Command) bool {
	switch c.Op {
	case CmdDivider:
		s.Divider = c.Arg & 0x00ffffff
	case CmdReadDelay:
		s.ReadCount = uint16(c.Arg)
		s.DelayCount = uint16(c.Arg >> 16)
	case CmdFlags:
		s.Flags = c.Arg
	case CmdTriggerMask:
		s.TriggerMask = c.Arg
	case CmdTriggerValues:
		s.TriggerValue = c.Arg
	case CmdTriggerConfig:
		s.TriggerConf = c.Arg
	default:
		return IsLong(c.Op) && c.Op >= CmdTriggerMask && c.Op <= 0xcf
	}
	return true
}

// SampleHz is the requested sample rate.
func (s Settings) SampleHz() float32 {
	return float32(Clock) / float32(s.Divider+1)
}

// Samples is the requested read count; the wire value counts groups of 4.
func (s Settings) Samples() uint32 {
	return (uint32(s.ReadCount) + 1) * 4
}

// ArmParams maps the settings onto an engine arm: channel 0..7 trigger
// bits come from the stage 0 mask and values.
func (s Settings) ArmParams() (freqHz float32, samples uint32, mask, dir uint8) {
	return s.SampleHz(), s.Samples(), uint8(s.TriggerMask), uint8(s.TriggerValue)
}
