// Package capture abstracts the video device the pipeline reads frames from.
package capture

import (
	"context"
	"errors"

	"github.com/bryanchriswhite/histocam/internal/frame"
)

var (
	// ErrDeviceUnavailable is returned by Open when the device cannot be opened
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrSourceClosed is returned by Read on a source that is not open
	ErrSourceClosed = errors.New("capture source closed")

	// ErrNoFrame is returned by Read when the device produced no frame in time
	ErrNoFrame = errors.New("no frame available")

	// ErrUnknownBackend is returned by New for an unregistered backend name
	ErrUnknownBackend = errors.New("unknown capture backend")
)

// FrameSource defines the interface for video capture backends
type FrameSource interface {
	// Open acquires the device. Failures wrap ErrDeviceUnavailable.
	Open(ctx context.Context) error

	// IsOpen reports whether the device is currently held
	IsOpen() bool

	// Read returns the next frame. A nil or empty buffer must be treated as
	// no frame; a disconnected device returns an error rather than ending
	// the caller's session.
	Read() (*frame.Buffer, error)

	// Close releases the device. Safe to call on a closed source.
	Close() error

	// Name returns a human-readable name for this source
	Name() string
}
