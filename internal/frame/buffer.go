// Package frame holds the raw pixel buffers passed between capture,
// histogram and output stages.
//
// Multi-channel buffers use OpenCV's BGR channel order: channel 0 is blue
// (or gray for single-channel buffers), 1 is green and 2 is red.
package frame

import (
	"errors"
	"fmt"
)

// Channel indices for 3-channel buffers
const (
	Blue  = 0
	Green = 1
	Red   = 2
)

// ErrInvalidBuffer is returned when a buffer's dimensions do not match its samples
var ErrInvalidBuffer = errors.New("invalid pixel buffer")

// Buffer is a row-major image with one byte per channel per pixel
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// New allocates a zeroed buffer
func New(width, height, channels int) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}
}

// FromBytes wraps pix without copying after validating its length
func FromBytes(width, height, channels int, pix []byte) (*Buffer, error) {
	b := &Buffer{Width: width, Height: height, Channels: channels, Pix: pix}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks channel count and sample length
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.Channels != 1 && b.Channels != 3 {
		return fmt.Errorf("%w: %d channels (want 1 or 3)", ErrInvalidBuffer, b.Channels)
	}
	if b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	if want := b.Width * b.Height * b.Channels; len(b.Pix) != want {
		return fmt.Errorf("%w: %d samples for %dx%dx%d (want %d)",
			ErrInvalidBuffer, len(b.Pix), b.Width, b.Height, b.Channels, want)
	}
	return nil
}

// Empty reports whether the buffer holds no pixels
func (b *Buffer) Empty() bool {
	return b == nil || b.Width == 0 || b.Height == 0 || len(b.Pix) == 0
}

// Clone returns a deep copy
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Channels: b.Channels, Pix: pix}
}

// Offset returns the index of channel c of pixel (x, y)
func (b *Buffer) Offset(x, y, c int) int {
	return (y*b.Width+x)*b.Channels + c
}

// Fill sets every pixel to the given per-channel samples
func (b *Buffer) Fill(samples ...byte) {
	if len(samples) != b.Channels {
		return
	}
	for i := 0; i < len(b.Pix); i += b.Channels {
		copy(b.Pix[i:i+b.Channels], samples)
	}
}

// String implements fmt.Stringer
func (b *Buffer) String() string {
	if b == nil {
		return "frame(nil)"
	}
	return fmt.Sprintf("frame(%dx%dx%d)", b.Width, b.Height, b.Channels)
}
