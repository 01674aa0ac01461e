package histogram

import (
	"testing"

	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// colours returns the set of distinct BGR pixels on the canvas
func colours(canvas *frame.Buffer) map[Color]int {
	seen := map[Color]int{}
	for i := 0; i < len(canvas.Pix); i += 3 {
		seen[Color{canvas.Pix[i], canvas.Pix[i+1], canvas.Pix[i+2]}]++
	}
	return seen
}

func ramp(channel int) Normalized {
	n := Normalized{Channel: channel, Max: 150}
	for i := range n.Values {
		n.Values[i] = (i * 150) / (Bins - 1)
	}
	return n
}

func TestRenderEmptyIsBlack(t *testing.T) {
	canvas := Render(nil, 150, 150)
	require.NoError(t, canvas.Validate())
	assert.Equal(t, map[Color]int{{}: 150 * 150}, colours(canvas))
}

func TestRenderSingleTraceUsesOneColour(t *testing.T) {
	canvas := Render([]Trace{{Hist: ramp(0), Color: ColorBlue}}, 150, 150)

	seen := colours(canvas)
	assert.Len(t, seen, 2)
	assert.Contains(t, seen, Color{})
	assert.Greater(t, seen[ColorBlue], 0)
}

func TestRenderOverlapLastTraceWins(t *testing.T) {
	traces := []Trace{
		{Hist: ramp(0), Color: ColorBlue},
		{Hist: ramp(1), Color: ColorGreen},
		{Hist: ramp(2), Color: ColorRed},
	}
	canvas := Render(traces, 150, 150)

	seen := colours(canvas)
	assert.NotContains(t, seen, ColorBlue)
	assert.NotContains(t, seen, ColorGreen)
	assert.Greater(t, seen[ColorRed], 0)
}

func TestRenderDistinctTracesAllVisible(t *testing.T) {
	var low, mid, high Normalized
	for i := range low.Values {
		low.Values[i] = 10
		mid.Values[i] = 70
		high.Values[i] = 130
	}
	canvas := Render([]Trace{
		{Hist: low, Color: ColorBlue},
		{Hist: mid, Color: ColorGreen},
		{Hist: high, Color: ColorRed},
	}, 150, 150)

	seen := colours(canvas)
	assert.Len(t, seen, 4)
	// thickness 2 horizontal lines across the full width
	for _, c := range ChannelColors {
		assert.Equal(t, 150*LineThickness, seen[c], "colour %v", c)
	}

	// a flat line at height v sits on rows h-v-1 and h-v
	o := canvas.Offset(0, 150-130, 0)
	assert.Equal(t, ColorRed[:], canvas.Pix[o:o+3])
}

func TestRenderIsDeterministic(t *testing.T) {
	traces := []Trace{{Hist: ramp(0), Color: ColorBlue}, {Hist: ramp(1), Color: ColorGreen}}
	assert.Equal(t, Render(traces, 150, 150).Pix, Render(traces, 150, 150).Pix)
}

func TestRenderWideCanvasUsesWiderBins(t *testing.T) {
	var n Normalized
	n.Values[1] = 100
	canvas := Render([]Trace{{Hist: n, Color: ColorGreen}}, 512, 200)

	// binWidth = 2: the spike at bin 1 peaks at x=2
	o := canvas.Offset(2, 200-100, 0)
	assert.Equal(t, ColorGreen[:], canvas.Pix[o:o+3])
}

func TestChartColoursByChannel(t *testing.T) {
	gray, _ := frame.FromBytes(2, 2, 1, []byte{0, 128, 128, 255})
	canvas := Chart(BuildAll(frame.Split(gray)), 150, 150)

	seen := colours(canvas)
	assert.Len(t, seen, 2)
	assert.Greater(t, seen[ColorBlue], 0)
}
