package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"

	"mandelzoom/pkg/config"
	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/render"
	"mandelzoom/pkg/render/gpu"
	"mandelzoom/pkg/viewport"
)

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	center := flag.String("center", "-0.5,0", "plane center, either re,im or the scaled mantissa form")
	zoom := flag.Float64("zoom", 0, "zoom level (log2 of linear magnification)")
	width := flag.Int("width", 0, "frame width, 0 uses the configured default")
	height := flag.Int("height", 0, "frame height, 0 uses the configured default")
	iter := flag.Int("iter", 0, "iteration cap, 0 uses the configured default")
	samples := flag.Int("samples", 0, "supersampling budget, 0 uses the configured default")
	paletteID := flag.String("palette", "", "palette id, empty uses the configured default")
	kindName := flag.String("kind", "", "mandelbrot or julia, empty uses the configured default")
	julia := flag.String("julia", "", "julia parameter re,im")
	backend := flag.String("backend", "", "force a backend by name instead of the most capable")
	out := flag.String("o", "frame.png", "output file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	req, err := buildRequest(cfg, *center, *zoom, *width, *height, *iter, *samples, *paletteID, *kindName, *julia)
	if err != nil {
		log.Fatal(err)
	}

	orbits := &orbit.Provider{Worker: orbit.NewWorker()}
	dev := &gpu.Device{}
	defer dev.Close()

	chain, err := render.NewChain(
		gpu.New64(dev, orbits),
		gpu.New32(dev, orbits),
		render.NewCPU(orbits),
	)
	if err != nil {
		log.Fatal(err)
	}
	if *backend != "" {
		if err := chain.Bind(*backend); err != nil {
			log.Fatal(err)
		}
	}

	var res *render.Result
	for {
		res, err = chain.Bound().Render(context.Background(), req)
		if err == nil {
			break
		}
		log.Printf("[render] %s render failed: %v", chain.Bound().Name(), err)
		if !chain.Demote() {
			log.Fatal(err)
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, res.Pix); err != nil {
		log.Fatal(err)
	}

	log.Printf("[render] %s: %dx%d at zoom %g via %s, %d units of work",
		*out, req.Width, req.Height, *zoom, res.Backend, res.Work)
}

func buildRequest(cfg *config.Config, center string, zoom float64, width, height, iter, samples int, paletteID, kindName, julia string) (*render.Request, error) {
	req := &render.Request{
		Width:        cfg.Render.Width,
		Height:       cfg.Render.Height,
		MaxIter:      cfg.Render.MaxIter,
		SampleBudget: cfg.Render.Samples,
		PaletteID:    cfg.Render.Palette,
	}

	kind, err := cfg.Render.EscapeKind()
	if err != nil {
		return nil, err
	}
	req.Kind = kind
	if req.JuliaC, err = cfg.Render.JuliaC(); err != nil {
		return nil, err
	}

	z, _, err := viewport.DecodeCenter(center)
	if err != nil {
		return nil, err
	}
	tier := viewport.TierForZoom(zoom)
	req.Viewport = viewport.Snapshot{
		Center: z.Project(tier.Exp),
		Zoom:   zoom,
		Tier:   tier,
	}

	if width > 0 {
		req.Width = width
	}
	if height > 0 {
		req.Height = height
	}
	if iter > 0 {
		req.MaxIter = iter
	}
	if samples > 0 {
		req.SampleBudget = samples
	}
	if paletteID != "" {
		req.PaletteID = paletteID
	}
	switch kindName {
	case "":
	case "mandelbrot":
		req.Kind = escape.Mandelbrot
	case "julia":
		req.Kind = escape.Julia
	default:
		return nil, fmt.Errorf("unknown kind %q", kindName)
	}
	if julia != "" {
		var re, im float64
		if _, err := fmt.Sscanf(julia, "%f,%f", &re, &im); err != nil {
			return nil, fmt.Errorf("julia parameter %q: %w", julia, err)
		}
		req.JuliaC = complex(re, im)
	}

	return req, nil
}
