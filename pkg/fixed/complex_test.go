package fixed

import (
	"errors"
	"math"
	"testing"
)

func mustComplex(t *testing.T, z complex128, exp uint) Complex {
	t.Helper()
	c, err := FromComplex128(z, exp)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestComplexSquare(t *testing.T) {
	cases := []struct {
		z    complex128
		want complex128
	}{
		{complex(1, 1), complex(0, 2)},
		{complex(-0.5, 0.25), complex(0.1875, -0.25)},
		{complex(2, 0), complex(4, 0)},
	}
	for _, tc := range cases {
		got := mustComplex(t, tc.z, 53).Square().Complex128()
		if math.Abs(real(got)-real(tc.want)) > 1e-12 || math.Abs(imag(got)-imag(tc.want)) > 1e-12 {
			t.Errorf("(%v)² = %v, want %v", tc.z, got, tc.want)
		}
	}
}

func TestComplexAbsSquared(t *testing.T) {
	c := mustComplex(t, complex(3, 4), 40)
	if got := c.AbsSquared().Float(); math.Abs(got-25) > 1e-9 {
		t.Errorf("|3+4i|² = %v", got)
	}
}

func TestComplexAgainstFloatIteration(t *testing.T) {
	// one mandelbrot step in fixed arithmetic must track complex128
	c0 := complex(-0.75, 0.1)
	z := complex(0, 0)
	fc := mustComplex(t, c0, 64)
	fz := mustComplex(t, z, 64)
	for i := 0; i < 20; i++ {
		z = z*z + c0
		fz = fz.Square().Add(fc)
		got := fz.Complex128()
		if math.Abs(real(got)-real(z)) > 1e-6 || math.Abs(imag(got)-imag(z)) > 1e-6 {
			t.Fatalf("iteration %d diverged: fixed %v vs float %v", i, got, z)
		}
	}
}

func TestComplexSerializationRoundTrip(t *testing.T) {
	c := mustComplex(t, complex(-1.234567, 0.7654321), 80)
	parsed, err := ParseComplex(c.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Re.Cmp(c.Re) != 0 || parsed.Im.Cmp(c.Im) != 0 {
		t.Errorf("round trip mismatch: %s vs %s", parsed, c)
	}
	if parsed.Exp() != 80 {
		t.Errorf("exp = %d, want 80", parsed.Exp())
	}
}

func TestParseComplexRejectsMismatchedExponents(t *testing.T) {
	_, err := ParseComplex("123e20,456e21")
	if !errors.Is(err, ErrExponentMismatch) {
		t.Errorf("err = %v, want ErrExponentMismatch", err)
	}
}

func TestParseComplexRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "1e2", "1e2,3e4,5e6", "abce2,1e2", "12e,3e4", "1e2,3ex"} {
		if _, err := ParseComplex(s); err == nil {
			t.Errorf("ParseComplex(%q) accepted garbage", s)
		}
	}
}

func TestComplexProject(t *testing.T) {
	c := mustComplex(t, complex(0.1, -0.2), 30)
	up := c.Project(120)
	if up.Exp() != 120 {
		t.Fatalf("exp = %d", up.Exp())
	}
	back := up.Project(30)
	if back.Re.Cmp(c.Re) != 0 || back.Im.Cmp(c.Im) != 0 {
		t.Error("grow-then-shrink projection lost bits")
	}
}

func TestFromComplex128NonFinite(t *testing.T) {
	if _, err := FromComplex128(complex(math.Inf(1), 0), 20); !errors.Is(err, ErrNonFinite) {
		t.Errorf("err = %v, want ErrNonFinite", err)
	}
	if _, err := FromComplex128(complex(0, math.NaN()), 20); !errors.Is(err, ErrNonFinite) {
		t.Errorf("err = %v, want ErrNonFinite", err)
	}
}
