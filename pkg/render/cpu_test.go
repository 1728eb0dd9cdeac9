package render

import (
	"bytes"
	"context"
	"image/color"
	"testing"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/palette"
)

func testRequest(t *testing.T, center complex128, zoom float64, gen uint64) *Request {
	t.Helper()
	return &Request{
		Viewport:     snapAt(t, center, zoom),
		Width:        64,
		Height:       48,
		MaxIter:      200,
		PaletteID:    palette.Default.ID(),
		SampleBudget: 1,
		Kind:         escape.Mandelbrot,
		Generation:   gen,
	}
}

func TestCPUDirectRender(t *testing.T) {
	cpu := NewCPU(&orbit.Provider{})
	req := testRequest(t, complex(-0.5, 0), 0, 7)

	res, err := cpu.Render(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Backend != "cpu" || res.Generation != 7 {
		t.Fatalf("result metadata: backend %s generation %d", res.Backend, res.Generation)
	}
	if res.Work == 0 {
		t.Fatal("work estimate is zero")
	}
	for i := 3; i < len(res.Pix.Pix); i += 4 {
		if res.Pix.Pix[i] != 255 {
			t.Fatal("frame has transparent pixels")
		}
	}

	// the center pixel lands exactly on -0.5, inside the cardioid
	if got := res.Pix.RGBAAt(32, 24); got != (color.RGBA{A: 255}) {
		t.Fatalf("interior pixel = %v, want black", got)
	}

	// spot-check a pixel against a hand-rolled evaluation
	grid := NewGrid(req.Viewport, req.Width, req.Height)
	z0, c := escape.ForPixel(req.Kind, grid.PlaneAt(3, 5, 0, 0), 0)
	want := palette.Lookup(req.PaletteID).At(escape.Velocity(z0, c, req.MaxIter).Velocity, req.MaxIter)
	if got := res.Pix.RGBAAt(3, 5); got != want {
		t.Fatalf("pixel (3,5) = %v, want %v", got, want)
	}
}

func TestCPURenderDeterministic(t *testing.T) {
	cpu := NewCPU(&orbit.Provider{})
	req := testRequest(t, complex(-0.6, 0.4), 4, 11)
	req.SampleBudget = 6

	a, err := cpu.Render(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := cpu.Render(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Pix.Pix, b.Pix.Pix) {
		t.Fatal("same request produced different frames")
	}
}

func TestCPURenderCancelled(t *testing.T) {
	cpu := NewCPU(&orbit.Provider{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := cpu.Render(ctx, testRequest(t, complex(-0.5, 0), 0, 1))
	if err == nil {
		t.Fatal("cancelled render returned no error")
	}
	if res != nil {
		t.Fatal("cancelled render must not merge a partial frame")
	}
}

func TestCPUPerturbedInteriorFrame(t *testing.T) {
	cpu := NewCPU(&orbit.Provider{})
	req := testRequest(t, complex(-0.5, 0), 40, 3)
	if !req.Viewport.Tier.Scaled {
		t.Fatal("zoom 40 should be in a scaled tier")
	}

	res, err := cpu.Render(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	// the whole frame sits 2^-40 deep inside the cardioid
	black := color.RGBA{A: 255}
	for y := 0; y < req.Height; y += 7 {
		for x := 0; x < req.Width; x += 7 {
			if got := res.Pix.RGBAAt(x, y); got != black {
				t.Fatalf("pixel (%d,%d) = %v, want interior black", x, y, got)
			}
		}
	}
}
