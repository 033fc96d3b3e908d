package capture

import (
	"errors"
	"fmt"
	"time"

	"buspirate/internal/ring"
)

// Config sizes the capture buffer.
//
// The buffer is ChunkCount chunks of ChunkSize bytes, one DMA channel per
// chunk. Both must be powers of two so the whole buffer wraps by masking and
// each channel can wrap its writes inside its own chunk.
type Config struct {
	ChunkCount int
	ChunkSize  int
	// GateTimeout bounds each cross-core handshake.
	GateTimeout time.Duration
}

// DefaultConfig is four 32 KiB chunks.
func DefaultConfig() Config {
	return Config{
		ChunkCount:  4,
		ChunkSize:   32768,
		GateTimeout: 250 * time.Millisecond,
	}
}

// BufferLen returns the capture buffer length in samples.
func (c Config) BufferLen() int {
	return c.ChunkCount * c.ChunkSize
}

func (c Config) Validate() error {
	if !ring.IsPow2(c.ChunkCount) {
		return fmt.Errorf("capture: chunk count %d is not a power of two", c.ChunkCount)
	}
	if !ring.IsPow2(c.ChunkSize) {
		return fmt.Errorf("capture: chunk size %d is not a power of two", c.ChunkSize)
	}
	if c.GateTimeout <= 0 {
		return errors.New("capture: gate timeout must be positive")
	}
	return nil
}
