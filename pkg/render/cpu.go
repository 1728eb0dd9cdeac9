package render

import (
	"context"
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/palette"
)

// CPU is the software backend: the frame is cut into row bands, one unit
// of concurrent work per available processor, and sub-buffers are merged
// by row offset only once every band has finished. It is the floor of
// the backend chain and always probes true.
type CPU struct {
	Orbits  *orbit.Provider
	Workers int
}

// NewCPU returns a software backend sized to the available processors.
func NewCPU(orbits *orbit.Provider) *CPU {
	return &CPU{Orbits: orbits, Workers: runtime.GOMAXPROCS(0)}
}

func (c *CPU) Name() string { return "cpu" }

func (c *CPU) Probe() bool { return true }

// OrbitParams derives the reference-orbit search parameters for a
// request. Backends that perturb share this so the background worker's
// precomputed orbit matches the one the render asks for.
func OrbitParams(req *Request) orbit.Params {
	return orbit.Params{
		Center:  req.Viewport.Center,
		Zoom:    req.Viewport.Zoom,
		Kind:    req.Kind,
		JuliaC:  req.JuliaC,
		MaxIter: req.MaxIter,
		Aspect:  float64(req.Height) / float64(req.Width),
		Seed:    int64(req.Generation),
	}
}

type band struct {
	y0, y1 int
	pix    []uint8
}

// Render computes one frame. Cancellation is hard: a cancelled context
// stops every band and nothing is merged.
func (c *CPU) Render(ctx context.Context, req *Request) (*Result, error) {
	grid := NewGrid(req.Viewport, req.Width, req.Height)
	pal := palette.Lookup(req.PaletteID)

	perturb := req.Viewport.Tier.Scaled
	var ref []complex128
	var base complex128
	if perturb {
		orb, err := c.Orbits.Lookup(ctx, req.Generation, OrbitParams(req))
		if err != nil {
			return nil, err
		}
		ref = orb.Iters
		base = grid.Rebase(orb.Sample)
	}

	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > req.Height {
		workers = req.Height
	}
	bands := make([]band, workers)
	for i := range bands {
		y0 := i * req.Height / workers
		y1 := (i + 1) * req.Height / workers
		bands[i] = band{y0: y0, y1: y1, pix: make([]uint8, (y1-y0)*req.Width*4)}
	}

	var work atomic.Uint64
	var wg sync.WaitGroup
	for i := range bands {
		wg.Add(1)
		go func(b *band) {
			defer wg.Done()
			c.renderBand(ctx, req, grid, pal, ref, base, b, &work)
		}(&bands[i])
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	for _, b := range bands {
		copy(img.Pix[b.y0*img.Stride:], b.pix)
	}
	return &Result{
		Backend:    c.Name(),
		Pix:        img,
		Work:       work.Load(),
		Generation: req.Generation,
	}, nil
}

func (c *CPU) renderBand(ctx context.Context, req *Request, grid Grid, pal *palette.Palette, ref []complex128, base complex128, b *band, work *atomic.Uint64) {
	budget := req.SampleBudget
	if budget < 1 {
		budget = 1
	}
	perturb := ref != nil

	var bandWork uint64
	for y := b.y0; y < b.y1; y++ {
		if ctx.Err() != nil {
			return
		}
		row := (y - b.y0) * req.Width * 4
		for x := 0; x < req.Width; x++ {
			var acc Accumulator
			for s := 0; s < budget; s++ {
				jx, jy := Jitter(x, y, s)
				var res escape.Result
				if perturb {
					delta := base + grid.Offset(x, y, jx, jy)
					if req.Kind == escape.Julia {
						res = escape.VelocityPerturbedScaled(ref, delta, 0, grid.Mul, req.MaxIter)
					} else {
						res = escape.VelocityPerturbedScaled(ref, 0, delta, grid.Mul, req.MaxIter)
					}
				} else {
					z0, cc := escape.ForPixel(req.Kind, grid.PlaneAt(x, y, jx, jy), req.JuliaC)
					res = escape.Velocity(z0, cc, req.MaxIter)
				}
				bandWork += uint64(res.Iterations)
				acc.Add(res.Velocity)
				if acc.Settled() {
					break
				}
			}
			col := pal.At(acc.Mean(), req.MaxIter)
			o := row + x*4
			b.pix[o+0] = col.R
			b.pix[o+1] = col.G
			b.pix[o+2] = col.B
			b.pix[o+3] = col.A
		}
	}
	work.Add(bandWork)
}
