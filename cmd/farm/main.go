package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/valve"

	"mandelzoom/pkg/config"
	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/farm"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/render"
	"mandelzoom/pkg/render/gpu"
)

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	role := flag.String("role", "", "store, request, generate")

	jobName := flag.String("job", "zoom", "job name, used as the frame directory")
	center := flag.String("center", "-0.5,0", "zoom target center")
	zoomFrom := flag.Float64("zoom-from", 0, "zoom level of the first frame")
	zoomTo := flag.Float64("zoom-to", 30, "zoom level of the last frame")
	frames := flag.Int("frames", 300, "number of frames in the job")
	flag.Parse()

	if *role == "" {
		log.Fatal("role not specified")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	v := valve.New()
	var server farm.Starter

	switch *role {
	case "sto", "store":
		server, err = farm.NewStore(v, cfg)
	case "req", "request":
		server, err = newRequester(v, cfg, *jobName, *center, *zoomFrom, *zoomTo, *frames)
	case "gen", "generate":
		server, err = newGenerator(v, cfg)
	default:
		log.Fatal("unknown role: ", *role)
	}
	if err != nil {
		log.Fatal(err)
	}

	server.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[farm] waiting for signal to exit")

	select {
	case <-sigChan:
		log.Println("[farm] received termination request")
	case <-v.Stop():
		log.Println("[farm] process completed")
	}

	log.Println("[farm] waiting for processes to finish ...")
	v.Shutdown(10 * time.Second)
	log.Println("[farm] processes complete")
}

func newRequester(v *valve.Valve, cfg *config.Config, name, center string, zoomFrom, zoomTo float64, frames int) (farm.Starter, error) {
	kind, err := cfg.Render.EscapeKind()
	if err != nil {
		return nil, err
	}
	juliaC, err := cfg.Render.JuliaC()
	if err != nil {
		return nil, err
	}
	job := &farm.Job{
		Name:     name,
		Center:   center,
		ZoomFrom: zoomFrom,
		ZoomTo:   zoomTo,
		Frames:   frames,
		Width:    cfg.Render.Width,
		Height:   cfg.Render.Height,
		MaxIter:  cfg.Render.MaxIter,
		Palette:  cfg.Render.Palette,
		Samples:  cfg.Render.Samples,
		Julia:    kind == escape.Julia,
		JuliaC:   juliaC,
	}
	return farm.NewRequester(v, cfg, job)
}

func newGenerator(v *valve.Valve, cfg *config.Config) (farm.Starter, error) {
	orbits := &orbit.Provider{Worker: orbit.NewWorker()}
	dev := &gpu.Device{}

	chain, err := render.NewChain(
		gpu.New64(dev, orbits),
		gpu.New32(dev, orbits),
		render.NewCPU(orbits),
	)
	if err != nil {
		return nil, err
	}
	log.Println("[farm] rendering with backend:", chain.Bound().Name())
	return farm.NewGenerator(v, cfg, chain)
}
