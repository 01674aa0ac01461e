package frame

import (
	"image"
	"image/color"
)

// ToRGBA converts the buffer into an opaque RGBA image for encoders and outputs
func (b *Buffer) ToRGBA() *image.RGBA {
	if b == nil {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	n := b.Width * b.Height

	for i := 0; i < n; i++ {
		d := img.Pix[i*4 : i*4+4]
		switch b.Channels {
		case 1:
			v := b.Pix[i]
			d[0], d[1], d[2] = v, v, v
		default:
			s := b.Pix[i*b.Channels:]
			d[0], d[1], d[2] = s[Red], s[Green], s[Blue]
		}
		d[3] = 0xff
	}
	return img
}

// ToImage returns *image.Gray for single-channel buffers and *image.RGBA otherwise
func (b *Buffer) ToImage() image.Image {
	if b != nil && b.Channels == 1 {
		g := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
		copy(g.Pix, b.Pix)
		return g
	}
	return b.ToRGBA()
}

// FromImage copies img into a BGR buffer, or a single-channel buffer when img is *image.Gray
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if g, ok := img.(*image.Gray); ok {
		buf := New(w, h, 1)
		for y := 0; y < h; y++ {
			row := g.Pix[(y)*g.Stride : y*g.Stride+w]
			copy(buf.Pix[y*w:], row)
		}
		return buf
	}

	buf := New(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			o := buf.Offset(x, y, 0)
			buf.Pix[o+Blue] = c.B
			buf.Pix[o+Green] = c.G
			buf.Pix[o+Red] = c.R
		}
	}
	return buf
}
