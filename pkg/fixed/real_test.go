package fixed

import (
	"errors"
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	values := []float64{0, 1, -1, 0.5, -0.375, 3.141592653589793, -2.75, 1e-3, 123456.789}
	for _, exp := range []uint{8, 20, 53} {
		tol := math.Ldexp(1, -int(exp))
		for _, v := range values {
			r, err := FromFloat(v, exp)
			if err != nil {
				t.Fatalf("FromFloat(%v, %d): %v", v, exp, err)
			}
			got := r.Float()
			if math.Abs(got-v) > tol {
				t.Errorf("exp %d: round trip of %v gave %v, off by more than %v", exp, v, got, tol)
			}
		}
	}
}

func TestRoundTripExact(t *testing.T) {
	// exp 53 carries every bit of a double in [1,2); these must come back exactly
	for _, v := range []float64{1.5, -0.25, 1024, 7.0 / 8.0} {
		r, err := FromFloat(v, 53)
		if err != nil {
			t.Fatal(err)
		}
		if got := r.Float(); got != v {
			t.Errorf("exact round trip of %v gave %v", v, got)
		}
	}
}

func TestNonFinite(t *testing.T) {
	for _, v := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		if _, err := FromFloat(v, 20); !errors.Is(err, ErrNonFinite) {
			t.Errorf("FromFloat(%v) err = %v, want ErrNonFinite", v, err)
		}
	}
}

func TestSubnormal(t *testing.T) {
	v := math.SmallestNonzeroFloat64
	r, err := FromFloat(v, 1100)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Float(); got != v {
		t.Errorf("subnormal round trip gave %v, want %v", got, v)
	}
}

func TestAddSub(t *testing.T) {
	a, _ := FromFloat(1.25, 20)
	b, _ := FromFloat(0.75, 20)
	if got := a.Add(b).Float(); got != 2.0 {
		t.Errorf("1.25+0.75 = %v", got)
	}
	if got := a.Sub(b).Float(); got != 0.5 {
		t.Errorf("1.25-0.75 = %v", got)
	}
}

func TestScaleMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("adding mismatched scales did not panic")
		}
	}()
	a, _ := FromFloat(1, 20)
	b, _ := FromFloat(1, 21)
	a.Add(b)
}

func TestMulTruncates(t *testing.T) {
	// at exp 4 the value 0.0625 is one ulp; 0.0625*0.0625 shifts out entirely
	a, _ := FromFloat(0.0625, 4)
	if got := a.Mul(a).Float(); got != 0 {
		t.Errorf("fixed-point square of one ulp = %v, want truncation to 0", got)
	}
	b, _ := FromFloat(1.5, 4)
	if got := b.Mul(b).Float(); got != 2.25 {
		t.Errorf("1.5*1.5 = %v, want 2.25", got)
	}
}

func TestShiftOps(t *testing.T) {
	a, _ := FromFloat(3, 20)
	if got := a.MulPow2(3).Float(); got != 24 {
		t.Errorf("3<<3 = %v", got)
	}
	if got := a.DivPow2(1).Float(); got != 1.5 {
		t.Errorf("3>>1 = %v", got)
	}
	if got := a.MulInt(7).Float(); got != 21 {
		t.Errorf("3*7 = %v", got)
	}
}

func TestProject(t *testing.T) {
	a, _ := FromFloat(1.0/3.0, 30)
	up := a.Project(90)
	if up.Exp() != 90 {
		t.Fatalf("projected exp = %d", up.Exp())
	}
	// growing the exponent is lossless
	if got := up.Project(30).Cmp(a); got != 0 {
		t.Error("up/down projection did not restore the value")
	}
	if math.Abs(up.Float()-a.Float()) > 1e-9 {
		t.Errorf("projection changed value: %v vs %v", up.Float(), a.Float())
	}
}

func TestNegAndSign(t *testing.T) {
	a, _ := FromFloat(2.5, 16)
	if a.Sign() != 1 || a.Neg().Sign() != -1 {
		t.Error("sign bookkeeping broken")
	}
	if got := a.Neg().Float(); got != -2.5 {
		t.Errorf("neg = %v", got)
	}
}

func TestZeroValue(t *testing.T) {
	var r Real
	if r.Float() != 0 || r.Sign() != 0 {
		t.Error("zero value Real is not zero")
	}
}
