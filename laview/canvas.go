package laview

import (
	"image/color"
	"strings"
	"unicode/utf8"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"buspirate/hal"
)

var (
	colorBG       = color.RGBA{A: 0xff}
	colorFG       = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	colorDim      = color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
	colorHeaderBG = color.RGBA{R: 0x18, G: 0x18, B: 0x18, A: 0xff}
	colorLaneSep  = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}

	colorWaveHi = color.RGBA{R: 0x4a, G: 0xdf, B: 0x6a, A: 0xff}
	colorWaveLo = color.RGBA{R: 0x24, G: 0x60, B: 0x2c, A: 0xff}
	colorEdge   = colorDim
	colorCursor = color.RGBA{R: 0xff, G: 0xdd, B: 0x66, A: 0xff}
)

// Canvas draws into an RGB565 framebuffer. Frames in any other format are
// left untouched.
type Canvas struct {
	fb hal.Framebuffer
	ts textStyle
}

var _ drivers.Displayer = (*Canvas)(nil)

func NewCanvas(fb hal.Framebuffer) *Canvas {
	return &Canvas{fb: fb, ts: newTextStyle()}
}

func (c *Canvas) Size() (x, y int16) {
	return int16(c.fb.Width()), int16(c.fb.Height())
}

func (c *Canvas) SetPixel(x, y int16, col color.RGBA) {
	c.FillRectangle(x, y, 1, 1, col)
}

// Display presents the framebuffer.
func (c *Canvas) Display() error {
	return c.fb.Present()
}

func (c *Canvas) FillRectangle(x, y, width, height int16, col color.RGBA) error {
	if c.fb.Format() != hal.PixelFormatRGB565 {
		return nil
	}
	w, h := c.fb.Width(), c.fb.Height()
	x0, x1 := clamp(int(x), w), clamp(int(x)+int(width), w)
	y0, y1 := clamp(int(y), h), clamp(int(y)+int(height), h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}
	buf := c.fb.Buffer()
	stride := c.fb.StrideBytes()
	if len(buf) < (y1-1)*stride+x1*2 {
		return nil
	}
	p := pack565(col)
	for py := y0; py < y1; py++ {
		row := buf[py*stride+x0*2 : py*stride+x1*2]
		for i := 0; i < len(row); i += 2 {
			row[i], row[i+1] = byte(p), byte(p>>8)
		}
	}
	return nil
}

// Page clears the screen to bg and writes lines from the top in fg,
// wrapping at the right edge, until the screen is full. It presents the
// result.
func (c *Canvas) Page(bg, fg color.RGBA, lines []string) error {
	w, h := c.Size()
	c.FillRectangle(0, 0, w, h, bg)
	cols := max(int(w/c.ts.width), 1)
	y := int16(0)
	for _, line := range lines {
		for line != "" && y+c.ts.height <= h {
			head, rest := splitRunes(line, cols)
			c.ts.write(c, 0, y, fg, head)
			y += c.ts.height
			line = strings.TrimLeft(rest, " ")
		}
	}
	return c.Display()
}

func pack565(c color.RGBA) uint16 {
	return uint16(c.R&0xf8)<<8 | uint16(c.G&0xfc)<<3 | uint16(c.B>>3)
}

func clamp(v, hi int) int {
	return min(max(v, 0), hi)
}

type textStyle struct {
	font   tinyfont.Fonter
	width  int16
	height int16
	offset int16
}

func newTextStyle() textStyle {
	font := &proggy.TinySZ8pt7b
	_, w := tinyfont.LineWidth(font, "0")
	h := int16(font.GetYAdvance())
	return textStyle{font: font, width: max(int16(w), 1), height: h, offset: h - 3}
}

func (s textStyle) write(d drivers.Displayer, x, y int16, c color.RGBA, str string) {
	tinyfont.WriteLine(d, s.font, x, y+s.offset, str, c)
}

// splitRunes cuts s after n runes.
func splitRunes(s string, n int) (head, rest string) {
	i := 0
	for k := 0; k < n && i < len(s); k++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}

func fitText(s string, n int) string {
	head, _ := splitRunes(s, max(n, 0))
	return head
}
