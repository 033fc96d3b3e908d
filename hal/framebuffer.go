package hal

import "sync"

// memFramebuffer is an RGB565 framebuffer in RAM. Present runs an optional
// flush hook (panel transfer, window upload).
type memFramebuffer struct {
	mu      sync.Mutex
	width   int
	height  int
	stride  int
	buf     []byte
	present func([]byte) error
}

// NewFramebuffer returns an RGB565 framebuffer in RAM whose Present is a
// no-op.
func NewFramebuffer(width, height int) Framebuffer {
	return newMemFramebuffer(width, height, nil)
}

func newMemFramebuffer(width, height int, present func([]byte) error) *memFramebuffer {
	stride := width * 2
	return &memFramebuffer{
		width:   width,
		height:  height,
		stride:  stride,
		buf:     make([]byte, stride*height),
		present: present,
	}
}

func (f *memFramebuffer) Width() int          { return f.width }
func (f *memFramebuffer) Height() int         { return f.height }
func (f *memFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *memFramebuffer) StrideBytes() int    { return f.stride }
func (f *memFramebuffer) Buffer() []byte      { return f.buf }

func (f *memFramebuffer) Present() error {
	if f.present == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present(f.buf)
}

func (f *memFramebuffer) ClearRGB(r, g, b uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pixel := packRGB565(r, g, b)
	lo := byte(pixel)
	hi := byte(pixel >> 8)
	for i := 0; i < len(f.buf); i += 2 {
		f.buf[i] = lo
		f.buf[i+1] = hi
	}
}

func (f *memFramebuffer) snapshotRGB565(dst []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(dst, f.buf)
}

// PixelRGB returns the pixel at (x, y) of an RGB565 framebuffer.
func PixelRGB(fb Framebuffer, x, y int) (r, g, b uint8) {
	buf := fb.Buffer()
	off := y*fb.StrideBytes() + x*2
	if x < 0 || y < 0 || x >= fb.Width() || y >= fb.Height() || off+1 >= len(buf) {
		return 0, 0, 0
	}
	return unpackRGB565(uint16(buf[off]) | uint16(buf[off+1])<<8)
}

func packRGB565(r, g, b uint8) uint16 {
	return uint16(r&0xf8)<<8 | uint16(g&0xfc)<<3 | uint16(b>>3)
}

// unpackRGB565 widens each field by repeating its top bits, so full scale
// maps back to 0xff.
func unpackRGB565(p uint16) (r, g, b uint8) {
	r5, g6, b5 := uint8(p>>11), uint8(p>>5)&0x3f, uint8(p)&0x1f
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}
