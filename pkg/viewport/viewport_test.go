package viewport

import (
	"errors"
	"math"
	"testing"

	"mandelzoom/pkg/fixed"
)

func TestTierForZoom(t *testing.T) {
	if tier := TierForZoom(0); tier.Scaled {
		t.Error("zoom 0 should be the double tier")
	}
	if tier := TierForZoom(31.9); tier.Scaled {
		t.Error("zoom below the threshold should stay double")
	}
	deep := TierForZoom(200)
	if !deep.Scaled {
		t.Fatal("deep zoom must be scaled")
	}
	if deep.Exp < 200 {
		t.Errorf("scaled exponent %d leaves no guard bits at zoom 200", deep.Exp)
	}
	// exponent never shrinks as zoom grows
	prev := uint(0)
	for z := 32.0; z < 500; z += 7 {
		e := TierForZoom(z).Exp
		if e < prev {
			t.Fatalf("tier exponent shrank from %d to %d at zoom %v", prev, e, z)
		}
		prev = e
	}
}

func TestZoomAroundKeepsPivotFixed(t *testing.T) {
	c := New(800, 600)
	c.Jump(mustCenter(t, complex(-0.6, 0.2)), 3)

	// plane coordinate under the pivot before the zoom
	pivotX, pivotY := 200.0, 450.0
	before := planeAt(c, pivotX, pivotY)

	c.ZoomAround(pivotX, pivotY, 1.5)
	after := planeAt(c, pivotX, pivotY)

	if d := cabs(after - before); d > 1e-12 {
		t.Errorf("pivot plane point moved by %v during zoom", d)
	}
	if c.Zoom() != 4.5 {
		t.Errorf("zoom = %v, want 4.5", c.Zoom())
	}
}

// planeAt mirrors the renderer's pixel mapping for test purposes.
func planeAt(c *Controller, px, py float64) complex128 {
	snap := c.Snapshot()
	unit, shift := snap.PixelScale(800)
	u := unit * math.Exp2(-float64(shift))
	center := snap.Center.Complex128()
	return center + complex((px-400)*u, (py-300)*u)
}

func cabs(z complex128) float64 {
	return math.Hypot(real(z), imag(z))
}

func mustCenter(t *testing.T, z complex128) fixed.Complex {
	t.Helper()
	c, err := fixed.FromComplex128(z, DoubleExp)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestPanPixels(t *testing.T) {
	c := New(400, 400)
	before := c.Snapshot().Center.Complex128()
	c.PanPixels(100, 0)
	after := c.Snapshot().Center.Complex128()

	// 100 pixels at zoom 0 over a 400px-wide span of 4 units is 1 unit
	if d := real(after) - real(before); math.Abs(d-1) > 1e-12 {
		t.Errorf("pan moved center by %v, want 1", d)
	}
}

func TestTierSwitchReprojectsCenter(t *testing.T) {
	c := New(800, 600)
	c.Jump(mustCenter(t, complex(-0.74364388703715, 0.13182590420533)), 30)
	if c.Tier().Scaled {
		t.Fatal("zoom 30 should still be double tier")
	}
	want := c.Snapshot().Center.Complex128()

	c.ZoomAround(400, 300, 5) // crosses the threshold
	if !c.Tier().Scaled {
		t.Fatal("zoom 35 should be scaled tier")
	}
	if c.Snapshot().Center.Exp() != c.Tier().Exp {
		t.Error("center not reprojected into the new tier")
	}
	got := c.Snapshot().Center.Complex128()
	if cabs(got-complex(real(want), imag(want))) > 1e-9 {
		t.Errorf("tier switch moved the center: %v vs %v", got, want)
	}
}

func TestInertiaDecaysAndHalts(t *testing.T) {
	c := New(400, 400)
	c.Release(12, -8, 0.1, 200, 200)
	if !c.Inertial() {
		t.Fatal("release did not start inertia")
	}
	steps := 0
	for c.Step() {
		steps++
		if steps > 1000 {
			t.Fatal("inertia never halted")
		}
	}
	if c.Inertial() {
		t.Error("controller still inertial after halt")
	}
	if steps == 0 {
		t.Error("inertia halted immediately despite a strong release")
	}
}

func TestJumpClearsInertia(t *testing.T) {
	c := New(400, 400)
	c.Release(50, 0, 0, 200, 200)
	c.Jump(mustCenter(t, complex(0.25, 0)), 10)
	if c.Inertial() {
		t.Error("jump must bypass inertia")
	}
	if c.Zoom() != 10 {
		t.Errorf("zoom = %v", c.Zoom())
	}
}

func TestEncodeDecodeDoubleTier(t *testing.T) {
	c := New(400, 400)
	c.Jump(mustCenter(t, complex(-0.5625, 0.640625)), 5)
	s := c.EncodeCenter()
	z, tier, err := DecodeCenter(s)
	if err != nil {
		t.Fatal(err)
	}
	if tier.Scaled {
		t.Errorf("%q decoded as scaled tier", s)
	}
	if got := z.Complex128(); got != complex(-0.5625, 0.640625) {
		t.Errorf("decoded %v", got)
	}
}

func TestEncodeDecodeScaledTier(t *testing.T) {
	c := New(400, 400)
	c.Jump(mustCenter(t, complex(-0.74364388703715, 0.13182590420533)), 100)
	if !c.Tier().Scaled {
		t.Fatal("zoom 100 should be scaled")
	}
	s := c.EncodeCenter()
	z, tier, err := DecodeCenter(s)
	if err != nil {
		t.Fatal(err)
	}
	if !tier.Scaled || tier.Exp != c.Tier().Exp {
		t.Errorf("decoded tier %v, want %v", tier, c.Tier())
	}
	if z.Re.Cmp(c.Snapshot().Center.Re) != 0 || z.Im.Cmp(c.Snapshot().Center.Im) != 0 {
		t.Error("scaled round trip lost the center")
	}
}

func TestDecodeCenterRejects(t *testing.T) {
	if _, _, err := DecodeCenter("1e20,2e21"); !errors.Is(err, fixed.ErrExponentMismatch) {
		t.Errorf("mismatched exponents: err = %v", err)
	}
	for _, s := range []string{"", "0.5", "a,b", "0.1,0.2,0.3"} {
		if _, _, err := DecodeCenter(s); err == nil {
			t.Errorf("DecodeCenter(%q) accepted garbage", s)
		}
	}
}
