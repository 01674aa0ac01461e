package output

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/histocam/internal/config"
	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/logger"
	"github.com/bryanchriswhite/histocam/internal/pipeline"
	"github.com/disintegration/imaging"
)

var _ pipeline.DisplaySink = (*Display)(nil)

// Slots lists the viewports in display order
var Slots = []pipeline.Slot{pipeline.SlotFrame, pipeline.SlotHistogram}

// Display implements pipeline.DisplaySink with one MJPEG output per slot.
// The live frame can be resized to a fixed viewport size and stamped with a
// status label; the histogram chart is streamed as rendered.
type Display struct {
	width, height int
	label         bool

	outputs map[pipeline.Slot]*MJPEGOutput

	mu      sync.RWMutex
	labeler Labeler
}

// Labeler returns the label text for an image about to be shown in slot
type Labeler func(slot pipeline.Slot, img *frame.Buffer) string

// NewDisplay creates the per-slot outputs. They are not started.
func NewDisplay(cfg config.OutputConfig) *Display {
	d := &Display{
		width:   cfg.Width,
		height:  cfg.Height,
		label:   cfg.Label,
		outputs: make(map[pipeline.Slot]*MJPEGOutput, len(Slots)),
	}
	for _, slot := range Slots {
		d.outputs[slot] = NewMJPEGOutput(Config{Name: string(slot), Quality: cfg.JPEGQuality})
	}
	return d
}

// SetLabeler sets the function producing the status label for a slot.
// Labels are only drawn when enabled in the output config.
func (d *Display) SetLabeler(fn Labeler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.labeler = fn
}

// Start starts every output
func (d *Display) Start() error {
	for _, slot := range Slots {
		if err := d.outputs[slot].Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every output, disconnecting stream clients
func (d *Display) Stop() error {
	for _, slot := range Slots {
		if err := d.outputs[slot].Stop(); err != nil {
			return err
		}
	}
	return nil
}

// Output returns the output backing slot
func (d *Display) Output(slot pipeline.Slot) (*MJPEGOutput, error) {
	out, ok := d.outputs[slot]
	if !ok {
		return nil, fmt.Errorf("unknown display slot: %q", slot)
	}
	return out, nil
}

// Stats returns the stats of every output in slot order
func (d *Display) Stats() []Stats {
	stats := make([]Stats, 0, len(Slots))
	for _, slot := range Slots {
		stats = append(stats, d.outputs[slot].Stats())
	}
	return stats
}

// Display converts img for its slot and writes it to the slot's output.
// img itself is never modified.
func (d *Display) Display(slot pipeline.Slot, img *frame.Buffer) {
	out, ok := d.outputs[slot]
	if !ok || img == nil || img.Empty() || !out.IsRunning() {
		return
	}

	rgba := img.ToRGBA()
	if slot == pipeline.SlotFrame {
		rgba = d.resize(rgba)
		if d.label {
			d.mu.RLock()
			labeler := d.labeler
			d.mu.RUnlock()
			if labeler != nil {
				DrawLabel(rgba, labeler(slot, img))
			}
		}
	}

	if err := out.WriteFrame(rgba); err != nil {
		logger.WithComponent("output").Debug().Err(err).Str("slot", string(slot)).Msg("Failed to write frame")
	}
}

// resize scales to the configured viewport. A zero dimension keeps the
// aspect ratio; both zero leaves the image unchanged.
func (d *Display) resize(src *image.RGBA) *image.RGBA {
	if d.width == 0 && d.height == 0 {
		return src
	}
	b := src.Bounds()
	if d.width == b.Dx() && d.height == b.Dy() {
		return src
	}

	resized := imaging.Resize(src, d.width, d.height, imaging.Linear)

	// frames are opaque, so NRGBA and RGBA pixels coincide
	return &image.RGBA{
		Pix:    resized.Pix,
		Stride: resized.Stride,
		Rect:   resized.Rect,
	}
}
