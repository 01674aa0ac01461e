package histogram

import (
	"math"

	"github.com/bryanchriswhite/histocam/internal/frame"
)

// LineThickness is the stroke width of every trace
const LineThickness = 2

// Color is a BGR triple, matching the chart buffer's channel order
type Color [3]byte

var (
	ColorBlue  = Color{255, 0, 0}
	ColorGreen = Color{0, 255, 0}
	ColorRed   = Color{0, 0, 255}
)

// ChannelColors maps a channel index to its trace colour
var ChannelColors = [3]Color{ColorBlue, ColorGreen, ColorRed}

// ColorFor returns the trace colour for a channel index
func ColorFor(channel int) Color {
	return ChannelColors[clamp(channel, 0, len(ChannelColors)-1)]
}

// Trace is one normalized histogram and the colour it is drawn in
type Trace struct {
	Hist  Normalized
	Color Color
}

// Render draws the traces as polylines on a black canvas of the given size.
//
// Segment i of every trace is drawn before segment i+1 of any trace, and within
// a segment index traces are drawn in slice order, so later traces win overlaps.
func Render(traces []Trace, width, height int) *frame.Buffer {
	canvas := frame.New(width, height, 3)
	if canvas.Empty() || len(traces) == 0 {
		return canvas
	}

	binWidth := max(int(math.Round(float64(width)/Bins)), 1)

	for i := 1; i < Bins; i++ {
		for _, tr := range traces {
			drawLine(canvas,
				binWidth*(i-1), height-tr.Hist.Values[i-1],
				binWidth*i, height-tr.Hist.Values[i],
				tr.Color, LineThickness)
		}
	}
	return canvas
}

// Chart normalizes hs to the canvas height and renders them in channel colours
func Chart(hs []Histogram, width, height int) *frame.Buffer {
	traces := make([]Trace, len(hs))
	for i, h := range hs {
		traces[i] = Trace{Hist: Normalize(h, height), Color: ColorFor(h.Channel)}
	}
	return Render(traces, width, height)
}

// drawLine rasterizes an 8-connected Bresenham line, stamping a square brush
// of the given thickness at every step. Pixels outside the canvas are clipped.
func drawLine(canvas *frame.Buffer, x0, y0, x1, y1 int, c Color, thickness int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	for {
		stamp(canvas, x0, y0, c, thickness)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func stamp(canvas *frame.Buffer, x, y int, c Color, thickness int) {
	from := -(thickness / 2)
	to := from + max(thickness, 1)
	for oy := from; oy < to; oy++ {
		for ox := from; ox < to; ox++ {
			setPixel(canvas, x+ox, y+oy, c)
		}
	}
}

func setPixel(canvas *frame.Buffer, x, y int, c Color) {
	if x < 0 || y < 0 || x >= canvas.Width || y >= canvas.Height {
		return
	}
	copy(canvas.Pix[canvas.Offset(x, y, 0):], c[:])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
