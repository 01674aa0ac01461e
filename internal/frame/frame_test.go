package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, New(4, 3, 3).Validate())
	assert.NoError(t, New(0, 0, 1).Validate())

	_, err := FromBytes(2, 2, 3, make([]byte, 11))
	assert.ErrorIs(t, err, ErrInvalidBuffer)

	_, err = FromBytes(2, 2, 4, make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidBuffer)

	var nilBuf *Buffer
	assert.ErrorIs(t, nilBuf.Validate(), ErrInvalidBuffer)
}

func TestEmpty(t *testing.T) {
	var nilBuf *Buffer
	assert.True(t, nilBuf.Empty())
	assert.True(t, New(0, 10, 3).Empty())
	assert.False(t, New(1, 1, 1).Empty())
}

func TestInvalidBufferIsRejected(t *testing.T) {
	short := &Buffer{Width: 4, Height: 2, Channels: 3, Pix: make([]byte, 5)}

	assert.Nil(t, Split(short))
	assert.Nil(t, Grayscale(short))
	assert.Nil(t, Split(nil))
	assert.Nil(t, Grayscale(nil))
}

func TestSplitSingleChannel(t *testing.T) {
	buf, err := FromBytes(2, 2, 1, []byte{0, 128, 128, 255})
	require.NoError(t, err)

	planes := Split(buf)
	require.Len(t, planes, 1)
	assert.Equal(t, buf, planes[0])

	// the plane is a copy, not an alias
	planes[0].Pix[0] = 9
	assert.Equal(t, byte(0), buf.Pix[0])
}

func TestSplitThreeChannels(t *testing.T) {
	buf := New(3, 2, 3)
	for i := 0; i < 6; i++ {
		buf.Pix[i*3+Blue] = byte(i)
		buf.Pix[i*3+Green] = byte(10 + i)
		buf.Pix[i*3+Red] = byte(20 + i)
	}

	planes := Split(buf)
	require.Len(t, planes, 3)
	for c, p := range planes {
		assert.Equal(t, 1, p.Channels)
		assert.Len(t, p.Pix, buf.Width*buf.Height)
		for i := 0; i < 6; i++ {
			assert.Equal(t, byte(c*10+i), p.Pix[i])
		}
	}
}

func TestSplitDoesNotMutateInput(t *testing.T) {
	buf := New(2, 2, 3)
	buf.Fill(1, 2, 3)
	before := buf.Clone()

	Split(buf)
	assert.Equal(t, before, buf)
}

func TestGrayscale(t *testing.T) {
	buf := New(4, 1, 3)
	copy(buf.Pix, []byte{
		0, 0, 0, // black
		255, 255, 255, // white
		0, 0, 255, // pure red (BGR)
		255, 0, 0, // pure blue
	})

	gray := Grayscale(buf)
	require.NoError(t, gray.Validate())
	assert.Equal(t, 1, gray.Channels)
	assert.Equal(t, []byte{0, 255, 76, 29}, gray.Pix)
}

func TestGrayscaleUniformColourStaysEqual(t *testing.T) {
	buf := New(10, 10, 3)
	buf.Fill(177, 177, 177)

	for _, v := range Grayscale(buf).Pix {
		assert.Equal(t, byte(177), v)
	}
}

func TestGrayscaleSingleChannelIsCopy(t *testing.T) {
	buf, _ := FromBytes(1, 2, 1, []byte{5, 6})
	gray := Grayscale(buf)
	assert.Equal(t, buf, gray)
	gray.Pix[0] = 0
	assert.Equal(t, byte(5), buf.Pix[0])
}

func TestToRGBASwapsChannelOrder(t *testing.T) {
	buf := New(1, 1, 3)
	buf.Fill(10, 20, 30)

	img := buf.ToRGBA()
	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, img.RGBAAt(0, 0))
}

func TestImageRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	src.SetRGBA(1, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	buf := FromImage(src)
	require.NoError(t, buf.Validate())
	assert.Equal(t, []byte{3, 2, 1, 50, 100, 200}, buf.Pix)
	assert.Equal(t, src.Pix, buf.ToRGBA().Pix)

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	copy(gray.Pix, []byte{1, 2, 3, 4})
	g := FromImage(gray)
	assert.Equal(t, 1, g.Channels)
	assert.IsType(t, &image.Gray{}, g.ToImage())
}
