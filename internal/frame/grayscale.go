package frame

// BT.601 luma weights in 14-bit fixed point, the same constants OpenCV uses
// for its BGR2GRAY conversion so gray histograms line up with its output.
const (
	grayShift = 14
	grayR     = 4899
	grayG     = 9617
	grayB     = 1868
	grayRound = 1 << (grayShift - 1)
)

// Grayscale converts a BGR buffer into a new single-channel buffer.
// Single-channel input is returned as a copy; an invalid buffer gives nil.
func Grayscale(buf *Buffer) *Buffer {
	if buf.Validate() != nil {
		return nil
	}
	if buf.Channels == 1 {
		return buf.Clone()
	}
	return grayscale(buf)
}

// grayscaleBGR is the fixed-point conversion used when OpenCV is not linked
func grayscaleBGR(buf *Buffer) *Buffer {
	n := buf.Width * buf.Height
	dst := &Buffer{Width: buf.Width, Height: buf.Height, Channels: 1, Pix: make([]byte, n)}
	for i := 0; i < n; i++ {
		s := buf.Pix[i*buf.Channels:]
		y := int(s[Red])*grayR + int(s[Green])*grayG + int(s[Blue])*grayB + grayRound
		dst.Pix[i] = byte(y >> grayShift)
	}
	return dst
}
