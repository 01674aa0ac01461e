//go:build gocv

package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/logger"
	"gocv.io/x/gocv"
)

func init() {
	Register("opencv", func(opts Options) (FrameSource, error) {
		return NewOpenCVSource(opts), nil
	})
}

// OpenCVSource reads from an OpenCV VideoCapture. Device is a camera index
// ("0"), a device node or a file/URL understood by OpenCV.
type OpenCVSource struct {
	opts Options

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat // reused between reads
}

// NewOpenCVSource creates an unopened source
func NewOpenCVSource(opts Options) *OpenCVSource {
	return &OpenCVSource{opts: opts.withDefaults()}
}

// Name returns the source name
func (s *OpenCVSource) Name() string {
	return "opencv (" + s.device() + ")"
}

func (s *OpenCVSource) device() string {
	if s.opts.Device == "" {
		return "0"
	}
	return s.opts.Device
}

// Open opens the capture and requests the configured size
func (s *OpenCVSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture != nil {
		return nil
	}

	cam, err := gocv.OpenVideoCapture(s.device())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if !cam.IsOpened() {
		cam.Close()
		return fmt.Errorf("%w: %s did not open", ErrDeviceUnavailable, s.device())
	}

	cam.Set(gocv.VideoCaptureFrameWidth, float64(s.opts.Width))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(s.opts.Height))
	if s.opts.Framerate > 0 {
		cam.Set(gocv.VideoCaptureFPS, float64(s.opts.Framerate))
	}

	s.capture = cam
	s.mat = gocv.NewMat()

	logger.WithComponent("opencv").Info().Str("device", s.device()).Msg("OpenCV capture opened")
	return nil
}

// IsOpen reports whether the capture is open
func (s *OpenCVSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil && s.capture.IsOpened()
}

// Read grabs and decodes the next frame
func (s *OpenCVSource) Read() (*frame.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, ErrSourceClosed
	}
	if ok := s.capture.Read(&s.mat); !ok {
		return nil, fmt.Errorf("%w: read failed", ErrNoFrame)
	}
	if s.mat.Empty() {
		return nil, ErrNoFrame
	}

	channels := s.mat.Channels()
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("unsupported frame with %d channels", channels)
	}
	return frame.FromBytes(s.mat.Cols(), s.mat.Rows(), channels, s.mat.ToBytes())
}

// Close releases the capture
func (s *OpenCVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.mat.Close()
	s.capture = nil

	logger.WithComponent("opencv").Info().Msg("OpenCV capture closed")
	return err
}
