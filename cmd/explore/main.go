package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"mandelzoom/pkg/config"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/render"
	"mandelzoom/pkg/render/gpu"
	"mandelzoom/pkg/scheduler"
	"mandelzoom/pkg/viewport"
)

// zoomStep is the zoom delta per mouse wheel notch.
const zoomStep = 0.25

type explorer struct {
	ctrl  *viewport.Controller
	sched *scheduler.Scheduler

	frame   *ebiten.Image
	backend string
	settled bool

	dragging     bool
	lastX, lastY int
	velX, velY   float64

	width, height int
}

func (e *explorer) Update() error {
	dirty := false

	if _, dy := ebiten.Wheel(); dy != 0 {
		cx, cy := ebiten.CursorPosition()
		e.ctrl.ZoomAround(float64(cx), float64(cy), dy*zoomStep)
		dirty = true
	}

	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		cx, cy := ebiten.CursorPosition()
		if e.dragging {
			dx, dy := cx-e.lastX, cy-e.lastY
			if dx != 0 || dy != 0 {
				// content follows the cursor, so the center moves the
				// other way
				e.ctrl.PanPixels(float64(-dx), float64(-dy))
				dirty = true
			}
			e.velX = 0.7*e.velX + 0.3*float64(dx)
			e.velY = 0.7*e.velY + 0.3*float64(dy)
		} else {
			e.dragging = true
			e.velX, e.velY = 0, 0
		}
		e.lastX, e.lastY = cx, cy
	} else if e.dragging {
		e.dragging = false
		cx, cy := ebiten.CursorPosition()
		e.ctrl.Release(e.velX, e.velY, 0, float64(cx), float64(cy))
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyHome) {
		e.ctrl.Jump(viewport.New(e.width, e.height).Snapshot().Center, 0)
		dirty = true
	}

	if stepInertia(e.ctrl) {
		dirty = true
	}

	if dirty {
		e.sched.Update(e.ctrl.Snapshot())
	}

	select {
	case f := <-e.sched.Frames():
		e.frame = ebiten.NewImageFromImage(f.Img)
		e.backend = f.Backend
		e.settled = f.Settled
	default:
	}

	return nil
}

// stepInertia advances a live release animation and reports whether the
// view moved. The halting Step still pans its final sub-epsilon
// distance, so it counts as movement too.
func stepInertia(c *viewport.Controller) bool {
	if !c.Inertial() {
		return false
	}
	c.Step()
	return true
}

func (e *explorer) Draw(screen *ebiten.Image) {
	if e.frame != nil {
		screen.DrawImage(e.frame, nil)
	}
	state := "interactive"
	if e.settled {
		state = "settled"
	}
	ebitenutil.DebugPrint(screen, fmt.Sprintf("center %s\nzoom %.2f  tier %s\n%s (%s)",
		e.ctrl.EncodeCenter(), e.ctrl.Zoom(), e.ctrl.Tier(), e.backend, state))
}

func (e *explorer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return e.width, e.height
}

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	center := flag.String("center", "", "start at this center instead of the home view")
	zoom := flag.Float64("zoom", 0, "start at this zoom level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	kind, err := cfg.Render.EscapeKind()
	if err != nil {
		log.Fatal(err)
	}
	juliaC, err := cfg.Render.JuliaC()
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
	log.Println("[explore] rendering with backend:", chain.Bound().Name())

	interactiveIter := cfg.Render.MaxIter / 4
	if interactiveIter < 64 {
		interactiveIter = 64
	}
	sched := scheduler.New(chain, scheduler.Config{
		Width:       cfg.Render.Width,
		Height:      cfg.Render.Height,
		PaletteID:   cfg.Render.Palette,
		Kind:        kind,
		JuliaC:      juliaC,
		Interactive: scheduler.Quality{MaxIter: interactiveIter, SampleBudget: 1},
		Settled:     scheduler.Quality{MaxIter: cfg.Render.MaxIter, SampleBudget: cfg.Render.Samples},
	})
	defer sched.Close()

	ctrl := viewport.New(cfg.Render.Width, cfg.Render.Height)
	if *center != "" {
		z, _, err := viewport.DecodeCenter(*center)
		if err != nil {
			log.Fatal(err)
		}
		ctrl.Jump(z, *zoom)
	}

	e := &explorer{
		ctrl:   ctrl,
		sched:  sched,
		width:  cfg.Render.Width,
		height: cfg.Render.Height,
	}
	sched.Update(ctrl.Snapshot())

	ebiten.SetWindowSize(cfg.Render.Width, cfg.Render.Height)
	ebiten.SetWindowTitle("mandelzoom")
	if err := ebiten.RunGame(e); err != nil {
		log.Fatal(err)
	}
}
