package sump

import (
	"io"

	"github.com/coreos/go-semver/semver"

	"buspirate/capture"
	"buspirate/hal"
)

// DeviceName is reported in the metadata descriptor.
const DeviceName = "BP LA"

// NewMetadata describes an engine with configuration cfg.
func NewMetadata(cfg capture.Config, fw semver.Version, maxRate uint32) Metadata {
	return Metadata{
		DeviceName:   DeviceName,
		Firmware:     fw,
		SampleMemory: uint32(cfg.BufferLen()),
		MaxRate:      maxRate,
		Probes:       hal.SampleChannels,
		Protocol:     2,
	}
}

// WriteSamples sends the capture the way SUMP clients expect it: one byte
// per sample, newest first.
func WriteSamples(w io.Writer, r capture.Reader) (int, error) {
	n := r.Captured()
	out := make([]byte, n)
	cursor := r.WritePointer()
	for i := range out {
		out[i], cursor = r.DumpNext(cursor)
	}
	return w.Write(out)
}
