package scheduler

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"mandelzoom/pkg/render"
	"mandelzoom/pkg/viewport"
)

// Reprojection guards: beyond these the warped frame carries no useful
// pixels and the preview is skipped.
const (
	maxReprojectZoomDelta = 4.0
	maxReprojectPanSpans  = 4.0
)

// Reproject warps the last presented frame onto a new viewport with an
// affine transform, giving an immediate preview while the real render
// is in flight. Returns nil when the viewports are too far apart for
// the warp to be worth presenting.
func Reproject(last *image.RGBA, from, to viewport.Snapshot) *image.RGBA {
	if last == nil {
		return nil
	}
	dz := to.Zoom - from.Zoom
	if math.Abs(dz) > maxReprojectZoomDelta {
		return nil
	}

	b := last.Bounds()
	w, h := b.Dx(), b.Dy()

	// pixel offset of the old center inside the new frame, computed on
	// the fixed-point side so deep-zoom centers survive the subtraction
	grid := render.NewGrid(to, w, h)
	off := grid.Rebase(from.Center)
	offX := -real(off) / grid.Unit
	offY := -imag(off) / grid.Unit
	if math.Abs(offX) > float64(w)*maxReprojectPanSpans ||
		math.Abs(offY) > float64(h)*maxReprojectPanSpans {
		return nil
	}

	// old pixels are 2^dz times larger than new ones
	k := math.Exp2(dz)
	m := f64.Aff3{
		k, 0, float64(w)/2 - k*float64(w)/2 + offX,
		0, k, float64(h)/2 - k*float64(h)/2 + offY,
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Transform(dst, m, last, b, draw.Src, nil)
	return dst
}
