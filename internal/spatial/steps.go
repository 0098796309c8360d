package spatial

import (
	"math"
	"math/rand/v2"

	"github.com/eleven-am/trackie/internal/vision"
)

const (
	MetersPerStep = 0.7
	depthEpsilon  = 1e-6
)

// The depth-to-meters bands are an uncalibrated heuristic over relative
// inverse depth. They are not a physical measurement.
type depthBand struct {
	above  float32
	lo, hi float64
}

var depthBands = []depthBand{
	{above: 250, lo: 0.3, hi: 1.0},
	{above: 150, lo: 1.0, hi: 2.5},
	{above: 75, lo: 2.5, hi: 5.0},
	{above: 25, lo: 5.0, hi: 10.0},
	{above: float32(math.Inf(-1)), lo: 10.0, hi: 15.0},
}

// RangeSampler picks a distance in meters inside [lo, hi].
type RangeSampler interface {
	Sample(lo, hi float64) float64
}

type MidpointSampler struct{}

func (MidpointSampler) Sample(lo, hi float64) float64 {
	return (lo + hi) / 2
}

type UniformSampler struct {
	Rand *rand.Rand
}

func (u UniformSampler) Sample(lo, hi float64) float64 {
	if u.Rand != nil {
		return lo + u.Rand.Float64()*(hi-lo)
	}
	return lo + rand.Float64()*(hi-lo)
}

// MetersRange returns the band a depth value falls into.
func MetersRange(depth float32) (float64, float64) {
	for _, b := range depthBands {
		if depth > b.above {
			return b.lo, b.hi
		}
	}
	last := depthBands[len(depthBands)-1]
	return last.lo, last.hi
}

// EstimateSteps samples the depth map at the box's center (clamped to the
// map) and converts the band distance into walking steps, at least one.
// It reports false when the sampled depth is at or below epsilon.
func EstimateSteps(depth *vision.DepthMap, box vision.Box, sampler RangeSampler) (int, bool) {
	if !depth.Valid() {
		return 0, false
	}
	if sampler == nil {
		sampler = MidpointSampler{}
	}

	x := clamp(int(box.CenterX()), 0, depth.Width-1)
	y := clamp(int(box.CenterY()), 0, depth.Height-1)

	value := depth.At(x, y)
	if value <= depthEpsilon || math.IsNaN(float64(value)) {
		return 0, false
	}

	lo, hi := MetersRange(value)
	meters := sampler.Sample(lo, hi)
	steps := int(math.Round(meters / MetersPerStep))
	return max(1, steps), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
