//go:build gst

package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/logger"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

func init() {
	Register("gstreamer", func(opts Options) (FrameSource, error) {
		return NewGStreamerSource(opts), nil
	})
}

// GStreamerSource captures in-process through a go-gst pipeline ending in an
// appsink. Samples are pulled synchronously from Read, so no cgo callbacks
// are registered.
type GStreamerSource struct {
	opts Options

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	running  bool
}

// NewGStreamerSource creates an unopened source for the device in opts
func NewGStreamerSource(opts Options) *GStreamerSource {
	return &GStreamerSource{opts: opts.withDefaults()}
}

// Name returns the source name
func (s *GStreamerSource) Name() string {
	return "gstreamer (" + s.opts.Device + ")"
}

// pipelineString is the gst-launch pipeline with an appsink in place of fdsink
func (s *GStreamerSource) pipelineString() string {
	src := "autovideosrc"
	if s.opts.Device != "" {
		src = "v4l2src device=" + s.opts.Device
	}
	caps := fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d", s.opts.Width, s.opts.Height)
	if s.opts.Framerate > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", s.opts.Framerate)
	}
	return fmt.Sprintf(
		"%s ! videoconvert ! videoscale ! %s ! "+
			"appsink name=sink emit-signals=false max-buffers=2 drop=true sync=false",
		src, caps,
	)
}

// Open builds the pipeline and sets it playing
func (s *GStreamerSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	log := logger.WithComponent("gstreamer")

	// safe to call multiple times
	gst.Init(nil)

	pipelineStr := s.pipelineString()
	log.Debug().Str("pipeline", pipelineStr).Msg("Creating GStreamer pipeline")

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return fmt.Errorf("%w: failed to create pipeline: %v", ErrDeviceUnavailable, err)
	}

	sinkElement, err := pipeline.GetElementByName("sink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("failed to get appsink: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("%w: failed to start pipeline: %v", ErrDeviceUnavailable, err)
	}

	s.pipeline = pipeline
	s.appsink = app.SinkFromElement(sinkElement)
	s.running = true

	log.Info().Str("device", s.opts.Device).Msg("GStreamer pipeline started")
	return nil
}

// IsOpen reports whether the pipeline is playing
func (s *GStreamerSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Read pulls one sample, waiting at most the read timeout
func (s *GStreamerSource) Read() (*frame.Buffer, error) {
	s.mu.Lock()
	appsink := s.appsink
	running := s.running
	s.mu.Unlock()

	if !running || appsink == nil {
		return nil, ErrSourceClosed
	}

	sample := appsink.TryPullSample(s.opts.ReadTimeout)
	if sample == nil {
		if appsink.IsEOS() {
			return nil, fmt.Errorf("%w: end of stream", ErrSourceClosed)
		}
		return nil, ErrNoFrame
	}

	return s.sampleToBuffer(sample)
}

// sampleToBuffer copies the mapped sample into a frame, dropping row padding
func (s *GStreamerSource) sampleToBuffer(sample *gst.Sample) (*frame.Buffer, error) {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, ErrNoFrame
	}

	w, h := s.opts.Width, s.opts.Height
	if caps := sample.GetCaps(); caps != nil {
		if structure := caps.GetStructureAt(0); structure != nil {
			if v, err := structure.GetValue("width"); err == nil {
				if iv, ok := v.(int); ok {
					w = iv
				}
			}
			if v, err := structure.GetValue("height"); err == nil {
				if iv, ok := v.(int); ok {
					h = iv
				}
			}
		}
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return nil, ErrNoFrame
	}
	defer buffer.Unmap()

	data := mapInfo.Bytes()
	stride := rowStride(w)
	if len(data) < stride*h {
		return nil, fmt.Errorf("short sample: %d bytes for %dx%d", len(data), w, h)
	}

	buf := frame.New(w, h, 3)
	rowBytes := w * 3
	for y := 0; y < h; y++ {
		copy(buf.Pix[y*rowBytes:(y+1)*rowBytes], data[y*stride:])
	}
	return buf, nil
}

// Close stops and releases the pipeline
func (s *GStreamerSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	s.appsink = nil
	if s.pipeline != nil {
		s.pipeline.SetState(gst.StateNull)
		s.pipeline = nil
	}

	logger.WithComponent("gstreamer").Info().Msg("GStreamer pipeline stopped")
	return nil
}
