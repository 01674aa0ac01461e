package output

import (
	"image"
	"time"
)

// Output defines the interface for frame output mechanisms.
// Each display slot (live frame, histogram chart) gets its own Output.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	Name    string
	Quality int // JPEG quality, 1-100
}

const defaultQuality = 90

// Stats is a snapshot of an output's throughput
type Stats struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	Frames     uint64    `json:"frames"`
	Clients    int       `json:"clients"`
	FPS        float64   `json:"fps"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	LastUpdate time.Time `json:"last_update"`
}
