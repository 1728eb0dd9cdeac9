package palette

import "testing"

func TestInteriorIsBlack(t *testing.T) {
	p := Lookup("classic")
	if got := p.At(500, 500); got != Interior {
		t.Errorf("cap velocity colored %v, want interior", got)
	}
	if got := p.At(501.5, 500); got != Interior {
		t.Errorf("beyond-cap velocity colored %v, want interior", got)
	}
}

func TestLookupFallsBack(t *testing.T) {
	if Lookup("no-such-palette") != Default {
		t.Error("unknown id did not fall back to the default palette")
	}
	if Lookup("ember").ID() != "ember" {
		t.Error("ember palette not registered")
	}
}

func TestGradientIsOpaqueAndVaried(t *testing.T) {
	p := Lookup("classic")
	seen := map[[3]uint8]bool{}
	for v := 0.0; v < 64; v += 1.5 {
		c := p.At(v, 1000)
		if c.A != 0xff {
			t.Fatalf("velocity %v: alpha %d", v, c.A)
		}
		seen[[3]uint8{c.R, c.G, c.B}] = true
	}
	if len(seen) < 10 {
		t.Errorf("gradient produced only %d distinct colors over a period", len(seen))
	}
}
