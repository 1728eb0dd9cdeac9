package orbit

import (
	"context"
	"testing"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/fixed"
)

func centerAt(t *testing.T, z complex128, exp uint) fixed.Complex {
	t.Helper()
	c, err := fixed.FromComplex128(z, exp)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSearchBudgetMonotonic(t *testing.T) {
	// a bigger sample budget with the same seed and draw order can only
	// improve (or keep) the best velocity
	base := Params{
		Center:  centerAt(t, complex(-0.6, 0.4), 64),
		Zoom:    4,
		Kind:    escape.Mandelbrot,
		MaxIter: 150,
		Seed:    42,
	}
	prev := -1.0
	for _, n := range []int{5, 20, 60, 120} {
		p := base
		p.Samples = n
		o, err := Search(context.Background(), p)
		if err != nil {
			t.Fatal(err)
		}
		if o.Velocity < prev {
			t.Fatalf("budget %d lowered best velocity: %v < %v", n, o.Velocity, prev)
		}
		prev = o.Velocity
	}
}

func TestSearchStopsEarlyOnInterior(t *testing.T) {
	// a viewport deep inside the main cardioid reaches the cap immediately
	p := Params{
		Center:  centerAt(t, complex(-0.2, 0), 64),
		Zoom:    8,
		Kind:    escape.Mandelbrot,
		MaxIter: 100,
		Samples: 200,
		Seed:    1,
	}
	o, err := Search(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !o.Interior {
		t.Fatal("expected an interior reference in the cardioid")
	}
	if o.Velocity != float64(p.MaxIter) {
		t.Errorf("interior velocity = %v, want the cap", o.Velocity)
	}
}

func TestMaterializeSentinelFill(t *testing.T) {
	// an escaping reference must fill slots past its bailout with the
	// sentinel, never leave them zero
	p := Params{
		Center:  centerAt(t, complex(2.5, 1.5), 64), // far outside, escapes fast
		Zoom:    10,
		Kind:    escape.Mandelbrot,
		MaxIter: 50,
		Samples: 3,
		Seed:    7,
	}
	o, err := Search(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if o.Interior {
		t.Fatal("point far outside the set reported interior")
	}
	if len(o.Iters) != p.MaxIter+1 {
		t.Fatalf("series length %d, want cap+1", len(o.Iters))
	}
	if o.Iters[len(o.Iters)-1] != Sentinel {
		t.Error("trailing iterates not sentinel-filled")
	}
}

func TestOrbitSeriesMatchesDirectIteration(t *testing.T) {
	p := Params{
		Center:  centerAt(t, complex(-1, 0), 64),
		Zoom:    30,
		Kind:    escape.Mandelbrot,
		MaxIter: 40,
		Samples: 10,
		Seed:    3,
	}
	o, err := Search(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	c := o.Sample.Complex128()
	z := complex(0, 0)
	for i := 1; i < len(o.Iters); i++ {
		z = z*z + c
		if o.Iters[i] == Sentinel {
			break
		}
		d := o.Iters[i] - z
		if real(d)*real(d)+imag(d)*imag(d) > 1e-12 {
			t.Fatalf("iterate %d drifted: %v vs %v", i, o.Iters[i], z)
		}
	}
}

func TestWorkerLookupAndFallback(t *testing.T) {
	p := Params{
		Center:  centerAt(t, complex(-0.6, 0.4), 64),
		Zoom:    4,
		Kind:    escape.Mandelbrot,
		MaxIter: 60,
		Samples: 20,
		Seed:    9,
	}

	w := NewWorker()
	prov := &Provider{Worker: w}
	o1, err := prov.Lookup(context.Background(), 1, p)
	if err != nil {
		t.Fatal(err)
	}

	// closed worker must fall back to synchronous search, not fail the render
	w.Close()
	o2, err := prov.Lookup(context.Background(), 2, p)
	if err != nil {
		t.Fatal(err)
	}

	if o1.Velocity != o2.Velocity {
		t.Errorf("worker and synchronous search disagree: %v vs %v", o1.Velocity, o2.Velocity)
	}
}
