package render

import (
	"math"
	"testing"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/fixed"
	"mandelzoom/pkg/viewport"
)

func snapAt(t *testing.T, center complex128, zoom float64) viewport.Snapshot {
	t.Helper()
	tier := viewport.TierForZoom(zoom)
	c, err := fixed.FromComplex128(center, tier.Exp)
	if err != nil {
		t.Fatal(err)
	}
	return viewport.Snapshot{Center: c, Zoom: zoom, Tier: tier}
}

func TestGridShallow(t *testing.T) {
	g := NewGrid(snapAt(t, complex(-0.5, 0), 2), 800, 600)
	if g.Mul != 1 {
		t.Fatalf("shallow zoom multiplier = %v, want 1", g.Mul)
	}
	// 4 plane units * 2^-2 across 800 pixels
	if want := 0.00125; math.Abs(g.Unit-want) > 1e-18 {
		t.Fatalf("unit = %v, want %v", g.Unit, want)
	}
	if got := g.PlaneAt(400, 300, 0, 0); got != complex(-0.5, 0) {
		t.Fatalf("center pixel maps to %v", got)
	}
	// screen y down == imaginary axis down
	top := g.PlaneAt(400, 0, 0, 0)
	if imag(top) >= 0 {
		t.Fatalf("top of frame should sit below the center on the imaginary axis: %v", top)
	}
	left := g.PlaneAt(0, 300, 0, 0)
	if want := -0.5 - 0.5; math.Abs(real(left)-want) > 1e-15 {
		t.Fatalf("left edge = %v, want real %v", left, want)
	}
}

func TestGridDeepScaleSplit(t *testing.T) {
	g := NewGrid(snapAt(t, complex(-0.5, 0), 200), 800, 600)

	frac, e := math.Frexp(g.Unit)
	if frac == 0 || e < -escape.MaxLocalExp || e > escape.MaxLocalExp {
		t.Fatalf("local unit exponent %d outside clamp", e)
	}
	if g.Mul <= 0 || g.Mul >= 1 {
		t.Fatalf("deep zoom multiplier = %v, want a small power of two", g.Mul)
	}
	mfrac, _ := math.Frexp(g.Mul)
	if mfrac != 0.5 {
		t.Fatalf("multiplier %v is not a pure power of two", g.Mul)
	}
	// recomposed scale matches the snapshot's pixel scale exactly: both
	// sides are power-of-two scalings of the same mantissa
	if want := math.Ldexp(4.0/800, -200); g.Unit*g.Mul != want {
		t.Fatalf("unit*mul = %v, want %v", g.Unit*g.Mul, want)
	}
}

func TestGridRebase(t *testing.T) {
	snap := snapAt(t, complex(-0.5, 0.25), 40)
	g := NewGrid(snap, 800, 600)
	if g.Mul != 1 {
		t.Fatalf("zoom 40 should still split with mul 1, got %v", g.Mul)
	}

	if got := g.Rebase(snap.Center); got != 0 {
		t.Fatalf("rebasing the center against itself = %v, want 0", got)
	}

	off, err := fixed.FromComplex128(complex(math.Ldexp(1, -45), -math.Ldexp(1, -47)), snap.Tier.Exp)
	if err != nil {
		t.Fatal(err)
	}
	sample := snap.Center.Add(off)
	got := g.Rebase(sample)
	want := complex(-math.Ldexp(1, -45), math.Ldexp(1, -47))
	if got != want {
		t.Fatalf("rebase = %v, want %v", got, want)
	}
}
