// Package histogram builds, normalizes and draws per-channel intensity histograms.
package histogram

import (
	"github.com/bryanchriswhite/histocam/internal/frame"
)

// Bins is the number of intensity levels
const Bins = 256

// Histogram counts samples per intensity level for one channel plane
type Histogram struct {
	Channel int
	Bins    [Bins]int
}

// Build counts every sample of a single-channel plane.
// An empty plane yields all-zero bins.
func Build(plane *frame.Buffer) Histogram {
	var h Histogram
	if plane == nil {
		return h
	}
	for _, v := range plane.Pix {
		h.Bins[v]++
	}
	return h
}

// BuildAll builds one histogram per plane, tagging each with its index
func BuildAll(planes []*frame.Buffer) []Histogram {
	hs := make([]Histogram, len(planes))
	for i, p := range planes {
		hs[i] = Build(p)
		hs[i].Channel = i
	}
	return hs
}

// Total is the sum of all bins
func (h *Histogram) Total() int {
	total := 0
	for _, b := range h.Bins {
		total += b
	}
	return total
}

// MinMax returns the smallest and largest bin counts
func (h *Histogram) MinMax() (lo, hi int) {
	lo, hi = h.Bins[0], h.Bins[0]
	for _, b := range h.Bins[1:] {
		if b < lo {
			lo = b
		}
		if b > hi {
			hi = b
		}
	}
	return lo, hi
}

// Mode returns the most populated intensity level (lowest level on ties)
func (h *Histogram) Mode() int {
	mode := 0
	for i, b := range h.Bins {
		if b > h.Bins[mode] {
			mode = i
		}
	}
	return mode
}

// Mean returns the average intensity, or 0 for an empty histogram
func (h *Histogram) Mean() float64 {
	total, sum := 0, 0
	for i, b := range h.Bins {
		total += b
		sum += i * b
	}
	if total == 0 {
		return 0
	}
	return float64(sum) / float64(total)
}
