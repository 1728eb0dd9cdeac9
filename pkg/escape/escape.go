// Package escape evaluates escape velocities for the z = z*z + c family.
// It carries three evaluation paths: direct machine floats, full-precision
// fixed-point (used to build reference orbits), and perturbation deltas
// against a reference orbit for deep zooms.
package escape

import (
	"math"

	"mandelzoom/pkg/fixed"
)

// Bailout is the escape radius. 128 rather than 2 so the smoothing term
// has headroom without overflow risk.
const (
	Bailout        = 128.0
	BailoutSquared = Bailout * Bailout
)

// Kind selects which variable is fixed and which varies per pixel.
type Kind int

const (
	// Mandelbrot fixes z0 = 0 and varies c per pixel.
	Mandelbrot Kind = iota
	// Julia fixes c and varies z0 per pixel.
	Julia
)

func (k Kind) String() string {
	if k == Julia {
		return "julia"
	}
	return "mandelbrot"
}

// Result is the outcome of evaluating one point.
type Result struct {
	// Velocity is the smoothed escape iteration count, or exactly the
	// iteration cap when the point never escaped.
	Velocity float64
	// Interior is set when the cap was reached without escaping.
	Interior bool
	// Iterations is the number of iterations performed.
	Iterations int
}

// smooth turns an integer escape iteration and the squared modulus at
// escape into a continuous velocity: i + 1 - log2(log(sqrt(m))).
func smooth(i int, m float64) float64 {
	return float64(i) + 1 - math.Log2(math.Log(math.Sqrt(m)))
}

// Velocity iterates z = z*z + c in machine floats, testing the squared
// modulus against the bailout after every update. Escape at the very first
// update reports iteration 0.
func Velocity(z0, c complex128, maxIter int) Result {
	zr, zi := real(z0), imag(z0)
	cr, ci := real(c), imag(c)
	for i := 0; i < maxIter; i++ {
		zr, zi = zr*zr-zi*zi+cr, 2*zr*zi+ci
		m := zr*zr + zi*zi
		if m > BailoutSquared {
			return Result{Velocity: smooth(i, m), Iterations: i + 1}
		}
	}
	return Result{Velocity: float64(maxIter), Interior: true, Iterations: maxIter}
}

// VelocityFixed is Velocity over the fixed-point tier. Both z0 and c must
// live in the same tier. Used by the orbit search, where per-pixel cost
// does not matter but precision does.
func VelocityFixed(z0, c fixed.Complex, maxIter int) Result {
	limit := fixed.New(BailoutSquared, c.Exp())
	z := z0
	for i := 0; i < maxIter; i++ {
		z = z.Square().Add(c)
		m := z.AbsSquared()
		if m.Cmp(limit) > 0 {
			return Result{Velocity: smooth(i, m.Float()), Iterations: i + 1}
		}
	}
	return Result{Velocity: float64(maxIter), Interior: true, Iterations: maxIter}
}

// ForPixel picks z0 and c for a pixel coordinate according to the kind.
func ForPixel(kind Kind, pixel, juliaC complex128) (z0, c complex128) {
	if kind == Julia {
		return pixel, juliaC
	}
	return 0, pixel
}
