package main

import (
	"flag"
	"log"

	"mandelzoom/pkg/config"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/render"
	"mandelzoom/pkg/render/gpu"
	"mandelzoom/pkg/web"
)

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
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
	log.Println("[serve] rendering with backend:", chain.Bound().Name())

	s := web.NewServer(cfg, chain)
	if err := s.Run(); err != nil {
		log.Fatal(err)
	}
}
