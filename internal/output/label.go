package output

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	labelPadding  = 4
	labelFontSize = 13 // basicfont.Face7x13 height
)

var (
	labelText       = color.RGBA{255, 255, 255, 255}
	labelBackground = color.RGBA{0, 0, 0, 160}
)

// DrawLabel stamps text in the top-left corner of img on a translucent box.
// The box is clipped to the image.
func DrawLabel(img *image.RGBA, text string) {
	if text == "" {
		return
	}

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelText),
		Face: face,
	}

	widthPx := d.MeasureString(text).Ceil()
	origin := img.Bounds().Min
	box := image.Rect(0, 0, widthPx+labelPadding*2, labelFontSize+labelPadding*2).
		Add(origin).
		Intersect(img.Bounds())

	draw.Draw(img, box, image.NewUniform(labelBackground), image.Point{}, draw.Over)

	d.Dot = fixed.Point26_6{
		X: fixed.I(origin.X + labelPadding),
		Y: fixed.I(origin.Y + labelPadding + face.Ascent),
	}
	d.DrawString(text)
}
