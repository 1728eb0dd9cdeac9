package escape

import "math"

// MaxLocalExp bounds the binary exponent of the per-pixel scale factor
// handed to an evaluator. Anything beyond it is pushed into the
// perturbation-only multiplier.
const MaxLocalExp = 80

// SplitScale decomposes scale into local * mul where the binary exponent
// of local is clamped to [-MaxLocalExp, MaxLocalExp] and mul is the pure
// power of two carrying the remainder. mul must only ever be applied
// inside the delta recurrence.
func SplitScale(scale float64) (local, mul float64) {
	frac, e := math.Frexp(scale)
	if frac == 0 {
		return 0, 1
	}
	ce := e
	if ce > MaxLocalExp {
		ce = MaxLocalExp
	} else if ce < -MaxLocalExp {
		ce = -MaxLocalExp
	}
	return math.Ldexp(frac, ce), math.Ldexp(1, e-ce)
}

// VelocityPerturbed iterates the perturbation delta against a reference
// orbit: delta[n+1] = (2*Z[n] + delta[n])*delta[n] + deltaC, reconstructing
// w[n] = Z[n] + delta[n] and testing |w[n]|² against the bailout. ref must
// hold the reference iterates Z[0..cap]; delta0 is the pixel's offset from
// the reference sample and deltaC its parameter offset (zero for Julia).
//
// Precision degrades as |delta| approaches |Z[n]| (visible as banding);
// no re-referencing is attempted.
func VelocityPerturbed(ref []complex128, delta0, deltaC complex128, maxIter int) Result {
	return VelocityPerturbedScaled(ref, delta0, deltaC, 1, maxIter)
}

// VelocityPerturbedScaled is VelocityPerturbed in a rescaled delta basis:
// the true delta is mul*delta and the true deltaC is mul*deltaC. The
// multiplier appears only inside the recurrence, keeping the per-pixel
// values handed in within a safe exponent range.
func VelocityPerturbedScaled(ref []complex128, delta0, deltaC complex128, mul float64, maxIter int) Result {
	n := maxIter
	if len(ref)-1 < n {
		n = len(ref) - 1
	}
	delta := delta0
	cmul := complex(mul, 0)
	for i := 1; i <= n; i++ {
		delta = (2*ref[i-1]+cmul*delta)*delta + deltaC
		w := ref[i] + cmul*delta
		m := real(w)*real(w) + imag(w)*imag(w)
		if m > BailoutSquared {
			return Result{Velocity: smooth(i-1, m), Iterations: i}
		}
	}
	return Result{Velocity: float64(maxIter), Interior: true, Iterations: n}
}
