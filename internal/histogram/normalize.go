package histogram

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Normalized holds bin heights rescaled into [0, targetMax]
type Normalized struct {
	Channel int
	Max     int
	Values  [Bins]int
}

// Normalize min-max rescales h into [0, targetMax]. A flat histogram
// (including an empty one) maps every bin to 0.
func Normalize(h Histogram, targetMax int) Normalized {
	targetMax = max(targetMax, 0)
	n := Normalized{Channel: h.Channel, Max: targetMax}

	lo, hi := h.MinMax()
	if hi <= lo {
		return n
	}

	scale := float64(targetMax) / float64(hi-lo)
	for i, b := range h.Bins {
		v := int(math.Round(float64(b-lo) * scale))
		n.Values[i] = clamp(v, 0, targetMax)
	}
	return n
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
