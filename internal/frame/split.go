package frame

// Split separates buf into one single-channel plane per channel, in channel
// order. A single-channel buffer yields one plane holding a copy of its data.
// An invalid buffer gives nil.
func Split(buf *Buffer) []*Buffer {
	if buf.Validate() != nil {
		return nil
	}
	if buf.Channels == 1 {
		return []*Buffer{buf.Clone()}
	}
	return split(buf)
}

func splitPlanes(buf *Buffer) []*Buffer {
	n := buf.Width * buf.Height
	planes := make([]*Buffer, buf.Channels)
	for c := range planes {
		planes[c] = &Buffer{Width: buf.Width, Height: buf.Height, Channels: 1, Pix: make([]byte, n)}
	}

	for i := 0; i < n; i++ {
		base := i * buf.Channels
		for c, p := range planes {
			p.Pix[i] = buf.Pix[base+c]
		}
	}

	return planes
}
