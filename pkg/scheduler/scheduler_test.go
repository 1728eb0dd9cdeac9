package scheduler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/fixed"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/palette"
	"mandelzoom/pkg/render"
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

func testConfig() Config {
	return Config{
		Width:       32,
		Height:      24,
		PaletteID:   palette.Default.ID(),
		Kind:        escape.Mandelbrot,
		Interactive: Quality{MaxIter: 50, SampleBudget: 1},
		Settled:     Quality{MaxIter: 150, SampleBudget: 2},
		SettleDelay: 5 * time.Millisecond,
	}
}

func TestUpdateKeepsOnlyNewestEvent(t *testing.T) {
	s := &Scheduler{pending: make(chan viewport.Snapshot, 1)}
	for i := 0; i < 50; i++ {
		s.Update(snapAt(t, complex(-0.5, 0), float64(i)*0.1))
	}
	if got := s.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
	snap := <-s.pending
	if snap.Zoom != 4.9 {
		t.Fatalf("queued zoom = %v, want the newest event", snap.Zoom)
	}
}

func TestSettledFrameMatchesLastEvent(t *testing.T) {
	cpu := render.NewCPU(&orbit.Provider{})
	chain, err := render.NewChain(cpu)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	s := New(chain, cfg)
	defer s.Close()

	var lastSnap viewport.Snapshot
	for i := 0; i < 50; i++ {
		lastSnap = snapAt(t, complex(-0.6, 0.2), float64(i)*0.05)
		s.Update(lastSnap)
	}

	want, err := cpu.Render(context.Background(), &render.Request{
		Viewport:     lastSnap,
		Width:        cfg.Width,
		Height:       cfg.Height,
		MaxIter:      cfg.Settled.MaxIter,
		PaletteID:    cfg.PaletteID,
		SampleBudget: cfg.Settled.SampleBudget,
		Kind:         cfg.Kind,
	})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case f := <-s.Frames():
			if f.Settled && bytes.Equal(f.Img.Pix, want.Pix.Pix) {
				return
			}
		case <-deadline:
			t.Fatal("no settled frame for the final viewport")
		}
	}
}

type failingBackend struct{}

func (failingBackend) Name() string { return "gpu32" }
func (failingBackend) Probe() bool  { return true }
func (failingBackend) Render(context.Context, *render.Request) (*render.Result, error) {
	return nil, errors.New("device lost")
}

func TestRenderFailureDemotesBackend(t *testing.T) {
	chain, err := render.NewChain(failingBackend{}, render.NewCPU(&orbit.Provider{}))
	if err != nil {
		t.Fatal(err)
	}
	s := New(chain, testConfig())
	defer s.Close()

	s.Update(snapAt(t, complex(-0.5, 0), 1))

	deadline := time.After(10 * time.Second)
	for {
		select {
		case f := <-s.Frames():
			if f.Backend == "cpu" {
				if chain.Bound().Name() != "cpu" {
					t.Fatal("chain still bound to the failing backend")
				}
				return
			}
			t.Fatalf("frame from unexpected backend %s", f.Backend)
		case <-deadline:
			t.Fatal("no frame after demotion")
		}
	}
}
