package pipeline

import (
	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/histogram"
)

// Slot names a display viewport
type Slot string

const (
	SlotFrame     Slot = "frame"
	SlotHistogram Slot = "histogram"
)

// DisplaySink receives the images produced on every tick. Display must not
// retain img beyond the call unless it copies it; implementations may be
// called from a goroutine other than the capture loop.
type DisplaySink interface {
	Display(slot Slot, img *frame.Buffer)
}

// SinkFunc adapts a function to DisplaySink
type SinkFunc func(slot Slot, img *frame.Buffer)

// Display calls f
func (f SinkFunc) Display(slot Slot, img *frame.Buffer) {
	f(slot, img)
}

// Result is everything one tick produces from a frame
type Result struct {
	Frame      *frame.Buffer // as displayed: grayscale when enabled
	Chart      *frame.Buffer
	Histograms []histogram.Histogram
	Grayscale  bool
}

// Process runs the per-frame stages: optional grayscale conversion, channel
// split, histogram build, normalization and rendering. buf is not modified.
// A buffer that fails Validate gives nil.
func Process(buf *frame.Buffer, grayscale bool, chartWidth, chartHeight int) *Result {
	if buf.Validate() != nil {
		return nil
	}

	display := buf
	if grayscale {
		display = frame.Grayscale(buf)
	}

	hs := histogram.BuildAll(frame.Split(display))

	return &Result{
		Frame:      display,
		Chart:      histogram.Chart(hs, chartWidth, chartHeight),
		Histograms: hs,
		Grayscale:  grayscale,
	}
}
