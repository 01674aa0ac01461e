package capture

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/histocam/internal/frame"
)

func init() {
	Register("testpattern", func(opts Options) (FrameSource, error) {
		return NewTestPattern(opts), nil
	})
}

// SMPTE colour bars, BGR
var barColors = [7][3]byte{
	{192, 192, 192}, // Gray
	{0, 192, 192},   // Yellow
	{192, 192, 0},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{0, 0, 192},     // Red
	{192, 0, 0},     // Blue
}

// TestPattern is a synthetic source producing colour bars with a gray
// gradient band that scrolls one row per frame.
type TestPattern struct {
	width, height int

	mu     sync.Mutex
	open   bool
	frames int
}

// NewTestPattern creates an unopened test pattern source. A zero size gets
// the default 640x480.
func NewTestPattern(opts Options) *TestPattern {
	opts = opts.withDefaults()
	return &TestPattern{width: opts.Width, height: opts.Height}
}

// Name returns the source name
func (p *TestPattern) Name() string {
	return "testpattern"
}

// Open always succeeds
func (p *TestPattern) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	p.frames = 0
	return nil
}

// IsOpen reports whether Open was called without a following Close
func (p *TestPattern) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Read renders the next frame
func (p *TestPattern) Read() (*frame.Buffer, error) {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil, ErrSourceClosed
	}
	n := p.frames
	p.frames++
	p.mu.Unlock()

	buf := frame.New(p.width, p.height, 3)
	FillColorBars(buf)

	bandHeight := max(p.height/8, 1)
	top := n % p.height
	for y := top; y < top+bandHeight && y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			v := byte(x * 255 / max(p.width-1, 1))
			o := buf.Offset(x, y, 0)
			buf.Pix[o], buf.Pix[o+1], buf.Pix[o+2] = v, v, v
		}
	}
	return buf, nil
}

// Close marks the source closed
func (p *TestPattern) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}

// FillColorBars fills a 3-channel buffer with seven vertical SMPTE bars
func FillColorBars(buf *frame.Buffer) {
	barWidth := max(buf.Width/7, 1)
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			barIdx := min(x/barWidth, 6)
			copy(buf.Pix[buf.Offset(x, y, 0):], barColors[barIdx][:])
		}
	}
}
