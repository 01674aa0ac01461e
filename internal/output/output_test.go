package output

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryanchriswhite/histocam/internal/config"
	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestMJPEGLifecycle(t *testing.T) {
	out := NewMJPEGOutput(Config{Name: "frame"})
	assert.Equal(t, "frame", out.Name())
	assert.False(t, out.IsRunning())

	err := out.WriteFrame(solid(4, 4, color.RGBA{A: 255}))
	assert.Error(t, err, "writing before Start should fail")

	require.NoError(t, out.Start())
	assert.Error(t, out.Start(), "double start")
	assert.True(t, out.IsRunning())

	require.NoError(t, out.WriteFrame(solid(8, 6, color.RGBA{R: 200, A: 255})))
	st := out.Stats()
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, 8, st.Width)
	assert.Equal(t, 6, st.Height)
	assert.True(t, st.Running)

	decoded, err := jpeg.Decode(bytes.NewReader(out.CurrentJPEG()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), decoded.Bounds())

	require.NoError(t, out.Stop())
	require.NoError(t, out.Stop())
	assert.False(t, out.IsRunning())
}

func TestMJPEGInvalidQualityUsesDefault(t *testing.T) {
	out := NewMJPEGOutput(Config{Name: "x", Quality: 0})
	assert.Equal(t, defaultQuality, out.config.Quality)
}

func TestMJPEGHandlerStreamsFrames(t *testing.T) {
	out := NewMJPEGOutput(Config{Name: "frame", Quality: 80})
	require.NoError(t, out.Start())

	srv := httptest.NewServer(out.Handler())
	defer srv.Close()

	// keep writing until the client is connected and has read a part
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				out.WriteFrame(solid(16, 8, color.RGBA{G: 255, A: 255}))
			}
		}
	}()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)
	require.Equal(t, "frame", params["boundary"])

	mr := multipart.NewReader(resp.Body, params["boundary"])
	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))

	img, err := jpeg.Decode(part)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())

	assert.Eventually(t, func() bool {
		return out.Stats().Clients == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, out.Stop())
}

func TestDrawLabel(t *testing.T) {
	img := solid(120, 40, color.RGBA{A: 255})
	DrawLabel(img, "GRAY 10fps")

	// white glyph pixels appear inside the label box only
	var lit int
	for y := 0; y < 40; y++ {
		for x := 0; x < 120; x++ {
			if img.RGBAAt(x, y).R > 200 {
				lit++
				assert.Less(t, y, labelFontSize+labelPadding*2)
			}
		}
	}
	assert.Positive(t, lit)
}

func TestDrawLabelClipsToSmallImage(t *testing.T) {
	img := solid(5, 5, color.RGBA{A: 255})
	assert.NotPanics(t, func() {
		DrawLabel(img, "a label much wider than the image")
	})
	DrawLabel(img, "")
}

func newTestDisplay(t *testing.T, cfg config.OutputConfig) *Display {
	t.Helper()
	d := NewDisplay(cfg)
	require.NoError(t, d.Start())
	t.Cleanup(func() { d.Stop() })
	return d
}

func bgrFrame(w, h int) *frame.Buffer {
	buf := frame.New(w, h, 3)
	buf.Fill(255, 0, 0) // blue
	return buf
}

func TestDisplayRoutesSlots(t *testing.T) {
	d := newTestDisplay(t, config.OutputConfig{JPEGQuality: 90})

	d.Display(pipeline.SlotFrame, bgrFrame(32, 24))
	chart := frame.New(150, 150, 3)
	d.Display(pipeline.SlotHistogram, chart)

	frameOut, err := d.Output(pipeline.SlotFrame)
	require.NoError(t, err)
	histOut, err := d.Output(pipeline.SlotHistogram)
	require.NoError(t, err)

	got := frameOut.CurrentFrame()
	require.NotNil(t, got)
	assert.Equal(t, image.Rect(0, 0, 32, 24), got.Bounds())
	assert.Equal(t, color.RGBA{R: 0, G: 0, B: 255, A: 255}, got.RGBAAt(5, 5))

	require.NotNil(t, histOut.CurrentFrame())
	assert.Equal(t, image.Rect(0, 0, 150, 150), histOut.CurrentFrame().Bounds())

	stats := d.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "frame", stats[0].Name)
	assert.Equal(t, "histogram", stats[1].Name)

	_, err = d.Output("bogus")
	assert.Error(t, err)
}

func TestDisplayResizesFrameOnly(t *testing.T) {
	d := newTestDisplay(t, config.OutputConfig{Width: 16, JPEGQuality: 90})

	d.Display(pipeline.SlotFrame, bgrFrame(64, 32))
	d.Display(pipeline.SlotHistogram, frame.New(150, 150, 3))

	frameOut, _ := d.Output(pipeline.SlotFrame)
	histOut, _ := d.Output(pipeline.SlotHistogram)

	assert.Equal(t, image.Rect(0, 0, 16, 8), frameOut.CurrentFrame().Bounds(), "aspect ratio kept")
	assert.Equal(t, image.Rect(0, 0, 150, 150), histOut.CurrentFrame().Bounds())
}

func TestDisplayLabelOnCopy(t *testing.T) {
	d := newTestDisplay(t, config.OutputConfig{Label: true, JPEGQuality: 90})
	d.SetLabeler(func(slot pipeline.Slot, img *frame.Buffer) string {
		assert.Equal(t, pipeline.SlotFrame, slot)
		return "COLOUR"
	})

	src := frame.New(120, 40, 3)
	d.Display(pipeline.SlotFrame, src)

	for _, v := range src.Pix {
		require.Zero(t, v, "source buffer must stay untouched")
	}

	frameOut, _ := d.Output(pipeline.SlotFrame)
	var lit bool
	img := frameOut.CurrentFrame()
	for y := 0; y < 20 && !lit; y++ {
		for x := 0; x < 60; x++ {
			if img.RGBAAt(x, y).R > 200 {
				lit = true
				break
			}
		}
	}
	assert.True(t, lit)
}

func TestDisplayIgnoresEmptyAndStopped(t *testing.T) {
	d := NewDisplay(config.OutputConfig{})
	d.Display(pipeline.SlotFrame, bgrFrame(4, 4))

	frameOut, _ := d.Output(pipeline.SlotFrame)
	assert.Nil(t, frameOut.CurrentFrame(), "outputs not started")

	require.NoError(t, d.Start())
	defer d.Stop()
	d.Display(pipeline.SlotFrame, &frame.Buffer{})
	d.Display(pipeline.SlotFrame, nil)
	assert.Nil(t, frameOut.CurrentFrame())
}
