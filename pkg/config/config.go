// Package config loads runtime configuration: a TOML file for render
// settings layered under environment variables (optionally from a .env
// file) for infrastructure endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"mandelzoom/pkg/escape"
)

// Render holds the per-frame defaults shared by the commands.
type Render struct {
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	MaxIter int    `toml:"max_iter"`
	Samples int    `toml:"samples"`
	Palette string `toml:"palette"`
	Kind    string `toml:"kind"`
	Julia   string `toml:"julia"` // "re,im", Julia kind only
}

// Farm holds the NSQ endpoints and storage path for the render farm.
type Farm struct {
	Nsqd        string `toml:"nsqd"`
	Lookupd     string `toml:"lookupd"`
	FramePath   string `toml:"frame_path"`
	MaxInFlight int    `toml:"max_in_flight"`
}

// Web holds the explorer web server settings.
type Web struct {
	Host string `toml:"host"`
	Port string `toml:"port"`
}

// Config is the process configuration.
type Config struct {
	Render Render `toml:"render"`
	Farm   Farm   `toml:"farm"`
	Web    Web    `toml:"web"`
}

func defaults() *Config {
	return &Config{
		Render: Render{
			Width:   960,
			Height:  720,
			MaxIter: 1000,
			Samples: 4,
			Palette: "classic",
			Kind:    "mandelbrot",
		},
		Farm: Farm{
			Nsqd:        "127.0.0.1:4150",
			Lookupd:     "127.0.0.1:4161",
			FramePath:   "frames",
			MaxInFlight: 1,
		},
		Web: Web{
			Host: "localhost",
			Port: "8080",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file when path
// is non-empty, then environment variables. A .env file in the working
// directory is honored the same way the rest of the tooling does it.
func Load(path string) (*Config, error) {
	godotenv.Load()

	cfg := defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	overlay(&cfg.Farm.Nsqd, "MZOOM_NSQD")
	overlay(&cfg.Farm.Lookupd, "MZOOM_NSQLOOKUP")
	overlay(&cfg.Farm.FramePath, "MZOOM_FRAME_PATH")
	overlay(&cfg.Web.Host, "MZOOM_HOSTNAME")
	overlay(&cfg.Web.Port, "MZOOM_PORT")
	if v := os.Getenv("MZOOM_MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: MZOOM_MAX_IN_FLIGHT: %w", err)
		}
		cfg.Farm.MaxInFlight = n
	}

	if _, err := cfg.Render.EscapeKind(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// EscapeKind maps the configured kind name onto the evaluator kind.
func (r Render) EscapeKind() (escape.Kind, error) {
	switch r.Kind {
	case "", "mandelbrot":
		return escape.Mandelbrot, nil
	case "julia":
		return escape.Julia, nil
	default:
		return 0, fmt.Errorf("config: unknown kind %q", r.Kind)
	}
}

// JuliaC parses the configured Julia parameter.
func (r Render) JuliaC() (complex128, error) {
	if r.Julia == "" {
		return 0, nil
	}
	var re, im float64
	if _, err := fmt.Sscanf(r.Julia, "%f,%f", &re, &im); err != nil {
		return 0, fmt.Errorf("config: julia parameter %q: %w", r.Julia, err)
	}
	return complex(re, im), nil
}
