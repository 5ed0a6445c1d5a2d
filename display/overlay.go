package display

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay text placement: line i has its baseline at (OverlayX, OverlayY0 + i*OverlayStep).
const (
	OverlayX    = 10
	OverlayY0   = 30
	OverlayStep = 30
)

var shadow = color.RGBA{A: 0xff}

// Compose draws lines onto img in white with a one-pixel black shadow.
// Lines falling outside the image are clipped.
func Compose(img *image.RGBA, lines []string) {
	d := &font.Drawer{
		Dst:  img,
		Face: basicfont.Face7x13,
	}

	for i, line := range lines {
		y := OverlayY0 + i*OverlayStep

		d.Src = image.NewUniform(shadow)
		d.Dot = fixed.P(OverlayX+1, y+1)
		d.DrawString(line)

		d.Src = image.White
		d.Dot = fixed.P(OverlayX, y)
		d.DrawString(line)
	}
}
