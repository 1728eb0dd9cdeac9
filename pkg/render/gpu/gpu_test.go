package gpu

import (
	"testing"

	"mandelzoom/pkg/render"
)

func TestAccumulateSettlesConstantFrame(t *testing.T) {
	velocities := []float32{1.5, 2.5, 100}
	acc := make([]render.Accumulator, len(velocities))

	for pass := 1; pass < render.MinSamples; pass++ {
		if accumulate(acc, velocities) {
			t.Fatalf("settled after %d passes, before the sample minimum", pass)
		}
	}
	if !accumulate(acc, velocities) {
		t.Fatal("constant frame not settled at the sample minimum")
	}
	for i, v := range velocities {
		if got := acc[i].Mean(); got != float64(v) {
			t.Errorf("pixel %d mean = %v, want %v", i, got, v)
		}
	}
}

func TestAccumulateKeepsSamplingNoisyPixel(t *testing.T) {
	acc := make([]render.Accumulator, 2)
	for pass := 0; pass < 10; pass++ {
		noisy := float32(10 * (pass % 2)) // variance far above the floor
		if accumulate(acc, []float32{4, noisy}) {
			t.Fatalf("noisy pixel reported settled on pass %d", pass+1)
		}
	}
	if !acc[0].Settled() {
		t.Error("quiet pixel should have settled on its own")
	}
}

func TestTierIterationCaps(t *testing.T) {
	dev := &Device{}
	a := New32(dev, nil)
	b := New64(dev, nil)

	if b.iterCap <= a.iterCap {
		t.Fatalf("gpu64 cap %d not above gpu32 cap %d", b.iterCap, a.iterCap)
	}
	if got := a.clampIter(100); got != 100 {
		t.Errorf("cap under ceiling clamped to %d", got)
	}
	if got := a.clampIter(a.iterCap + 1); got != a.iterCap {
		t.Errorf("cap above ceiling = %d, want %d", got, a.iterCap)
	}
}
