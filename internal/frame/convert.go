//go:build !gocv

package frame

func grayscale(buf *Buffer) *Buffer { return grayscaleBGR(buf) }

func split(buf *Buffer) []*Buffer { return splitPlanes(buf) }
