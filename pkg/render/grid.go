package render

import (
	"math"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/fixed"
	"mandelzoom/pkg/viewport"
)

// Grid maps pixel coordinates of one frame onto the complex plane. All
// per-pixel values it hands out live in a rescaled basis whose binary
// exponent is clamped near zero; the true plane value is the basis value
// times Mul, a pure power of two that evaluators apply only inside the
// delta recurrence. That keeps pixel deltas representable long after the
// raw pixel scale has left double range.
type Grid struct {
	Width, Height int

	// Unit is the plane distance between pixel centers in the rescaled
	// basis; Mul is the power-of-two remainder, so Unit*Mul is the true
	// pixel scale.
	Unit float64
	Mul  float64

	mulExp int
	center fixed.Complex
}

// NewGrid builds the mapping for one viewport snapshot and surface size.
func NewGrid(snap viewport.Snapshot, width, height int) Grid {
	mant, shift := snap.PixelScale(width)
	frac, e := math.Frexp(mant)
	te := e - shift
	ce := te
	if ce > escape.MaxLocalExp {
		ce = escape.MaxLocalExp
	} else if ce < -escape.MaxLocalExp {
		ce = -escape.MaxLocalExp
	}
	return Grid{
		Width:  width,
		Height: height,
		Unit:   math.Ldexp(frac, ce),
		Mul:    math.Ldexp(1, te-ce),
		mulExp: te - ce,
		center: snap.Center,
	}
}

// Center128 returns the viewport center as machine floats. Only the
// direct (shallow-zoom) path may use it.
func (g Grid) Center128() complex128 {
	return g.center.Complex128()
}

// Offset returns pixel (x+jx, y+jy)'s plane offset from the center in
// the rescaled basis. Screen y grows downward, so does the imaginary
// axis.
func (g Grid) Offset(x, y int, jx, jy float64) complex128 {
	dx := float64(x) + jx - float64(g.Width)/2
	dy := float64(y) + jy - float64(g.Height)/2
	return complex(dx*g.Unit, dy*g.Unit)
}

// PlaneAt returns the true plane position of a pixel. Shallow zoom only:
// the result is formed in plain doubles.
func (g Grid) PlaneAt(x, y int, jx, jy float64) complex128 {
	return g.Center128() + g.Offset(x, y, jx, jy)*complex(g.Mul, 0)
}

// Rebase returns (center - sample) in the rescaled basis, computed on
// the fixed-point side so no intermediate underflows. Adding a pixel
// Offset to it yields that pixel's delta from the reference sample.
func (g Grid) Rebase(sample fixed.Complex) complex128 {
	d := g.center.Sub(sample.Project(g.center.Exp()))
	return fixed.Complex{
		Re: shiftReal(d.Re, -g.mulExp),
		Im: shiftReal(d.Im, -g.mulExp),
	}.Complex128()
}

func shiftReal(r fixed.Real, by int) fixed.Real {
	if by >= 0 {
		return r.MulPow2(uint(by))
	}
	return r.DivPow2(uint(-by))
}
