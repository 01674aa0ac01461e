//go:build gocv

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *Buffer {
	buf := New(w, h, 3)
	for i := range buf.Pix {
		buf.Pix[i] = byte(i * 37 % 256)
	}
	return buf
}

func TestOpenCVGrayscaleMatchesFixedPoint(t *testing.T) {
	buf := gradient(17, 9)

	got := Grayscale(buf)
	require.NotNil(t, got)
	assert.Equal(t, grayscaleBGR(buf), got)
}

func TestOpenCVSplitMatchesPlanes(t *testing.T) {
	buf := gradient(5, 3)

	got := Split(buf)
	require.Len(t, got, 3)
	assert.Equal(t, splitPlanes(buf), got)
}
