package sump

import (
	"encoding/binary"

	"github.com/coreos/go-semver/semver"
)

// Metadata tokens.
const (
	MetaEnd             = 0x00
	MetaDeviceName      = 0x01
	MetaFirmwareVersion = 0x02
	MetaSampleMemory    = 0x21
	MetaDynamicMemory   = 0x22
	MetaMaxSampleRate   = 0x23
	MetaProtocolLong    = 0x24
	MetaProbes          = 0x40
	MetaProtocolVersion = 0x41
)

// Metadata is the descriptor returned for CmdMetadata.
type Metadata struct {
	DeviceName   string
	Firmware     semver.Version
	SampleMemory uint32
	MaxRate      uint32
	Probes       uint8
	Protocol     uint8
}

// Encode returns the descriptor bytes: strings are NUL terminated, 32-bit
// values big endian, and the list ends with MetaEnd.
func (m Metadata) Encode() []byte {
	b := make([]byte, 0, 64)
	b = append(b, MetaDeviceName)
	b = append(b, m.DeviceName...)
	b = append(b, 0)
	b = append(b, MetaFirmwareVersion)
	b = append(b, "v"+m.Firmware.String()...)
	b = append(b, 0)
	b = append(b, MetaSampleMemory)
	b = binary.BigEndian.AppendUint32(b, m.SampleMemory)
	b = append(b, MetaMaxSampleRate)
	b = binary.BigEndian.AppendUint32(b, m.MaxRate)
	b = append(b, MetaProbes, m.Probes)
	b = append(b, MetaProtocolVersion, m.Protocol)
	return append(b, MetaEnd)
}
