// Package ogimage draws 1200x630 Open Graph preview cards as SVG or PNG.
package ogimage

import (
	"bytes"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/png"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	Width  = 1200
	Height = 630

	// MaxInput caps every text field, in runes.
	MaxInput = 200

	lineChars = 28
	maxLines  = 3
)

// Card is the text drawn on a preview image.
type Card struct {
	Title    string
	Subtitle string
	SiteName string
}

// Normalize trims and truncates all fields.
func (c Card) Normalize() Card {
	return Card{
		Title:    clip(c.Title, MaxInput),
		Subtitle: clip(c.Subtitle, MaxInput),
		SiteName: clip(c.SiteName, MaxInput),
	}
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Wrap breaks s into at most maxLines lines of roughly width runes. Words
// longer than width are split. Overflow is marked with an ellipsis.
func Wrap(s string, width, max int) []string {
	var lines []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, string(cur))
			cur = cur[:0]
		}
	}
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > width {
			flush()
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		if len(cur) > 0 && len(cur)+1+len(w) > width {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	flush()
	if len(lines) > max {
		lines = lines[:max]
		last := []rune(lines[max-1])
		if len(last) >= width {
			last = last[:width-1]
		}
		lines[max-1] = strings.TrimRight(string(last), " ") + "…"
	}
	return lines
}

// SVG renders c as an SVG document.
func SVG(c Card) []byte {
	c = c.Normalize()
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, Width, Height, Width, Height)
	b.WriteString(`<defs><linearGradient id="bg" x1="0" y1="0" x2="1" y2="1">` +
		`<stop offset="0%" stop-color="#0f172a"/><stop offset="100%" stop-color="#1e3a8a"/></linearGradient></defs>`)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="url(#bg)"/>`, Width, Height)
	fmt.Fprintf(&b, `<rect x="80" y="80" width="120" height="8" rx="4" fill="#38bdf8"/>`)

	y := 220
	for _, line := range Wrap(c.Title, lineChars, maxLines) {
		fmt.Fprintf(&b, `<text x="80" y="%d" font-family="Inter, Helvetica, Arial, sans-serif" font-size="68" font-weight="700" fill="#f8fafc">%s</text>`, y, html.EscapeString(line))
		y += 84
	}
	if c.Subtitle != "" {
		for _, line := range Wrap(c.Subtitle, 48, 2) {
			fmt.Fprintf(&b, `<text x="80" y="%d" font-family="Inter, Helvetica, Arial, sans-serif" font-size="34" fill="#cbd5e1">%s</text>`, y+10, html.EscapeString(line))
			y += 46
		}
	}
	if c.SiteName != "" {
		fmt.Fprintf(&b, `<text x="80" y="%d" font-family="Inter, Helvetica, Arial, sans-serif" font-size="30" font-weight="600" fill="#38bdf8">%s</text>`, Height-70, html.EscapeString(c.SiteName))
	}
	b.WriteString(`</svg>`)
	return b.Bytes()
}

// scale is the upscaling factor applied to the bitmap font.
const scale = 4

// PNG renders c as a PNG. Text is drawn with a bitmap font on a canvas a
// quarter of the final size and scaled up.
func PNG(c Card) ([]byte, error) {
	c = c.Normalize()
	small := image.NewRGBA(image.Rect(0, 0, Width/scale, Height/scale))
	top := color.RGBA{0x0f, 0x17, 0x2a, 0xff}
	bottom := color.RGBA{0x1e, 0x3a, 0x8a, 0xff}
	h := small.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := color.RGBA{
			R: lerp(top.R, bottom.R, y, h),
			G: lerp(top.G, bottom.G, y, h),
			B: lerp(top.B, bottom.B, y, h),
			A: 0xff,
		}
		draw.Draw(small, image.Rect(0, y, small.Bounds().Dx(), y+1), &image.Uniform{row}, image.Point{}, draw.Src)
	}
	draw.Draw(small, image.Rect(20, 20, 50, 22), &image.Uniform{color.RGBA{0x38, 0xbd, 0xf8, 0xff}}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	// 7px glyphs leave room for ~38 chars across the 300px canvas.
	y := 50
	for _, line := range Wrap(c.Title, 38, maxLines) {
		drawText(small, face, 20, y, line, color.RGBA{0xf8, 0xfa, 0xfc, 0xff})
		y += 16
	}
	if c.Subtitle != "" {
		for _, line := range Wrap(c.Subtitle, 38, 2) {
			drawText(small, face, 20, y+4, line, color.RGBA{0xcb, 0xd5, 0xe1, 0xff})
			y += 14
		}
	}
	if c.SiteName != "" {
		drawText(small, face, 20, small.Bounds().Dy()-16, clip(c.SiteName, 38), color.RGBA{0x38, 0xbd, 0xf8, 0xff})
	}

	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawText(dst draw.Image, face font.Face, x, y int, s string, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func lerp(a, b uint8, i, n int) uint8 {
	return uint8(int(a) + (int(b)-int(a))*i/n)
}
