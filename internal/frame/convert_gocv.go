//go:build gocv

package frame

import (
	"gocv.io/x/gocv"
)

// toMat wraps a valid 3-channel buffer in an 8-bit BGR Mat
func toMat(buf *Buffer) (gocv.Mat, error) {
	return gocv.NewMatFromBytes(buf.Height, buf.Width, gocv.MatTypeCV8UC3, buf.Pix)
}

func fromMat(m gocv.Mat) *Buffer {
	return &Buffer{Width: m.Cols(), Height: m.Rows(), Channels: m.Channels(), Pix: m.ToBytes()}
}

func grayscale(buf *Buffer) *Buffer {
	if buf.Empty() {
		return New(buf.Width, buf.Height, 1)
	}
	src, err := toMat(buf)
	if err != nil {
		return grayscaleBGR(buf)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	return fromMat(gray)
}

func split(buf *Buffer) []*Buffer {
	if buf.Empty() {
		return splitPlanes(buf)
	}
	src, err := toMat(buf)
	if err != nil {
		return splitPlanes(buf)
	}
	defer src.Close()

	mats := gocv.Split(src)
	planes := make([]*Buffer, len(mats))
	for i, m := range mats {
		planes[i] = fromMat(m)
		m.Close()
	}
	return planes
}
