package render

import "math"

// Supersampling stops early once the per-pixel velocity variance drops
// under VarianceFloor, but never before MinSamples have accumulated.
const (
	MinSamples    = 3
	VarianceFloor = 1e-3
)

// Accumulator tracks an online mean and variance of per-pixel samples
// using Welford's recurrence, so the sample loop can stop as soon as the
// pixel settles instead of always burning the full budget.
type Accumulator struct {
	n    int
	mean float64
	m2   float64
}

// Add folds one sample into the running statistics.
func (a *Accumulator) Add(v float64) {
	a.n++
	d := v - a.mean
	a.mean += d / float64(a.n)
	a.m2 += d * (v - a.mean)
}

// Count returns the number of samples seen.
func (a *Accumulator) Count() int { return a.n }

// Mean returns the running mean, zero before any sample.
func (a *Accumulator) Mean() float64 { return a.mean }

// Variance returns the running population variance.
func (a *Accumulator) Variance() float64 {
	if a.n < 2 {
		return math.Inf(1)
	}
	return a.m2 / float64(a.n)
}

// Settled reports whether sampling can stop before the budget runs out.
func (a *Accumulator) Settled() bool {
	return a.n >= MinSamples && a.Variance() < VarianceFloor
}

// Jitter returns a deterministic sub-pixel offset in [-0.5, 0.5) for
// sample s of pixel (x, y). Sample 0 is always the pixel center so a
// budget of one degenerates to plain point sampling.
func Jitter(x, y, s int) (jx, jy float64) {
	if s == 0 {
		return 0, 0
	}
	h := uint64(x)*0x9e3779b97f4a7c15 ^ uint64(y)*0xc2b2ae3d27d4eb4f ^ uint64(s)*0x165667b19e3779f9
	h ^= h >> 31
	h *= 0xd6e8feb86659fd93
	h ^= h >> 27
	jx = float64(h&0xffffffff)/float64(1<<32) - 0.5
	jy = float64(h>>32)/float64(1<<32) - 0.5
	return jx, jy
}
