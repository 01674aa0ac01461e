package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/histocam/internal/logger"
)

var _ Output = (*MJPEGOutput)(nil)

// MJPEGOutput streams frames as Motion JPEG over HTTP, so a plain <img> tag
// in the browser shows the live viewport.
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	// Current frame buffer
	frameMu      sync.RWMutex
	currentFrame *image.RGBA
	currentJPEG  []byte
	lastUpdate   time.Time

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality < 1 || config.Quality > 100 {
		config.Quality = defaultQuality
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output.
// The HTTP handler is registered separately via Handler().
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output %s already running", m.config.Name)
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("output").Info().
		Str("output", m.config.Name).
		Int("quality", m.config.Quality).
		Msg("MJPEG output started")
	return nil
}

// Stop cleanly shuts down the output and disconnects all clients
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("output").Info().
		Str("output", m.config.Name).
		Uint64("frames", m.frameCount).
		Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes frame and sends it to all connected clients
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output %s not running", m.config.Name)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.currentFrame = frame
	m.currentJPEG = jpegData
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	// Broadcast to all clients
	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// Name returns the output name
func (m *MJPEGOutput) Name() string {
	return m.config.Name
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// CurrentFrame returns the most recently written frame, or nil
func (m *MJPEGOutput) CurrentFrame() *image.RGBA {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.currentFrame
}

// CurrentJPEG returns the encoded form of the most recent frame, or nil
func (m *MJPEGOutput) CurrentJPEG() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.currentJPEG
}

// Stats returns frame and client counters
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running := m.running
	frameCount := m.frameCount
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	var width, height int
	if m.currentFrame != nil {
		width, height = m.currentFrame.Bounds().Dx(), m.currentFrame.Bounds().Dy()
	}
	m.frameMu.RUnlock()

	m.clientsMu.RLock()
	clientCount := len(m.clients)
	m.clientsMu.RUnlock()

	var fps float64
	if running && !startTime.IsZero() {
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			fps = float64(frameCount) / elapsed
		}
	}

	return Stats{
		Name:       m.config.Name,
		Running:    running,
		Frames:     frameCount,
		Clients:    clientCount,
		FPS:        fps,
		Width:      width,
		Height:     height,
		LastUpdate: lastUpdate,
	}
}

// Handler returns an http.HandlerFunc serving the multipart MJPEG stream
func (m *MJPEGOutput) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithComponent("output")

		if !m.IsRunning() {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log.Info().Str("output", m.config.Name).Int("clients", clientCount).Msg("MJPEG client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Str("output", m.config.Name).Int("clients", clientCount).Msg("MJPEG client disconnected")
		}()

		for {
			var jpegData []byte
			select {
			case <-r.Context().Done():
				return
			case data, ok := <-frameChan:
				if !ok {
					return
				}
				jpegData = data
			}

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
				return
			}
			if _, err := w.Write(jpegData); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}
