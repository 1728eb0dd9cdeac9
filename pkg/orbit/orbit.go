// Package orbit finds and materializes reference orbits for perturbation
// rendering. A reference orbit is one full-precision iterate series near
// the viewport center that anchors low-precision per-pixel deltas.
package orbit

import (
	"context"
	"math"
	"math/rand"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/fixed"
)

// DefaultSamples is the number of random screen points probed per search.
const DefaultSamples = 200

// Sentinel fills iterate slots past an early bailout of the reference
// sample. Consumers treat any iterate at or beyond it as unusable.
var Sentinel = complex(1e30, 1e30)

// Orbit is a materialized reference orbit: the winning sample point, its
// iterate series Z[0..cap] projected to machine floats, and its escape
// velocity. An orbit lives for one frame and is read-only once built.
type Orbit struct {
	Sample   fixed.Complex
	Iters    []complex128
	Velocity float64
	Interior bool
}

// Params describes one orbit search over a viewport.
type Params struct {
	Center  fixed.Complex
	Zoom    float64 // log2 of linear scale
	Kind    escape.Kind
	JuliaC  complex128
	MaxIter int
	Samples int     // 0 means DefaultSamples
	Aspect  float64 // viewport height/width; 0 means square
	Seed    int64
}

// samplePoint places a uniform sample in the viewport without ever forming
// the (possibly underflowing) span in a float: the fractional part of the
// zoom scales a safe float offset, the integer part is a mantissa shift.
func samplePoint(p Params, u, v float64) (fixed.Complex, error) {
	exp := p.Center.Exp()
	zi := int(math.Floor(p.Zoom))
	zf := p.Zoom - float64(zi)

	aspect := p.Aspect
	if aspect == 0 {
		aspect = 1
	}

	// base span of 4 plane units across the viewport width at zoom 0
	offR := (u - 0.5) * 4 * math.Exp2(-zf)
	offI := (v - 0.5) * 4 * aspect * math.Exp2(-zf)

	re, err := fixed.FromFloat(offR, exp)
	if err != nil {
		return fixed.Complex{}, err
	}
	im, err := fixed.FromFloat(offI, exp)
	if err != nil {
		return fixed.Complex{}, err
	}
	off := fixed.NewComplex(re, im)
	if zi > 0 {
		off = fixed.Complex{Re: off.Re.DivPow2(uint(zi)), Im: off.Im.DivPow2(uint(zi))}
	} else if zi < 0 {
		off = fixed.Complex{Re: off.Re.MulPow2(uint(-zi)), Im: off.Im.MulPow2(uint(-zi))}
	}
	return p.Center.Add(off), nil
}

// Search samples random points in the viewport, evaluates each at full
// precision and keeps the strictly highest escape velocity seen (the first
// found wins ties). The moment a sample reaches the iteration cap the
// search stops early: an interior point is an ideal, never-escaping
// reference. The winner's full iterate series is then rebuilt to the cap.
func Search(ctx context.Context, p Params) (*Orbit, error) {
	samples := p.Samples
	if samples <= 0 {
		samples = DefaultSamples
	}
	rng := rand.New(rand.NewSource(p.Seed))

	var best fixed.Complex
	bestVel := math.Inf(-1)
	bestInterior := false
	found := false

	for i := 0; i < samples; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		pt, err := samplePoint(p, rng.Float64(), rng.Float64())
		if err != nil {
			return nil, err
		}
		z0, c := forPixelFixed(p, pt)
		res := escape.VelocityFixed(z0, c, p.MaxIter)
		if res.Velocity > bestVel {
			bestVel = res.Velocity
			best = pt
			bestInterior = res.Interior
			found = true
		}
		if res.Interior {
			break
		}
	}
	if !found {
		// zero samples requested; fall back to the center itself
		best = p.Center
		z0, c := forPixelFixed(p, best)
		res := escape.VelocityFixed(z0, c, p.MaxIter)
		bestVel, bestInterior = res.Velocity, res.Interior
	}

	o := &Orbit{
		Sample:   best,
		Velocity: bestVel,
		Interior: bestInterior,
		Iters:    materialize(p, best),
	}
	return o, nil
}

// forPixelFixed mirrors escape.ForPixel in the fixed tier.
func forPixelFixed(p Params, pt fixed.Complex) (z0, c fixed.Complex) {
	exp := pt.Exp()
	if p.Kind == escape.Julia {
		jc, err := fixed.FromComplex128(p.JuliaC, exp)
		if err != nil {
			// Julia parameter is user input validated upstream; a non-finite
			// value here is a bug, not a runtime condition.
			panic(err)
		}
		return pt, jc
	}
	zero, _ := fixed.FromComplex128(0, exp)
	return zero, pt
}

// materialize rebuilds the sample's iterate series up to the cap. If the
// sample escapes early, the remaining slots are filled with the sentinel
// rather than left uninitialized.
func materialize(p Params, sample fixed.Complex) []complex128 {
	z0, c := forPixelFixed(p, sample)
	limit := fixed.New(escape.BailoutSquared, sample.Exp())

	iters := make([]complex128, p.MaxIter+1)
	z := z0
	iters[0] = z.Complex128()
	for i := 1; i <= p.MaxIter; i++ {
		z = z.Square().Add(c)
		iters[i] = z.Complex128()
		if z.AbsSquared().Cmp(limit) > 0 {
			for j := i + 1; j <= p.MaxIter; j++ {
				iters[j] = Sentinel
			}
			break
		}
	}
	return iters
}
