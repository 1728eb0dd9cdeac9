// Package farm distributes zoom-animation rendering over NSQ. A job is
// expanded into per-frame messages by the requester role, rendered by
// generator roles, and written to disk by the store role. Roles shut
// down through a shared valve so in-flight frames finish cleanly.
package farm

import (
	"fmt"
	"path"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/render"
	"mandelzoom/pkg/viewport"
)

// NSQ wiring. Topics carry JSON frames; anything that repeatedly fails
// ends up on the error topic for inspection.
const (
	renderTopic = "render-frame"
	storeTopic  = "store-frame"
	errorTopic  = "frame-errors"
	renderChan  = "generate"
	storeChan   = "store"

	nsqMaxMsgSize = 1048576
)

// Starter is a farm role the command wrapper can launch.
type Starter interface {
	Start()
}

// Frame is one unit of farm work: a single frame of a zoom animation.
// The center rides in its serialized form so deep-zoom coordinates
// survive the trip intact.
type Frame struct {
	Job     string  `json:"job"`
	Index   int     `json:"index"`
	Center  string  `json:"center"`
	Zoom    float64 `json:"zoom"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	MaxIter int     `json:"maxIter"`
	Palette string  `json:"palette"`
	Samples int     `json:"samples"`
	Julia   bool    `json:"julia"`
	JuliaRe float64 `json:"juliaRe"`
	JuliaIm float64 `json:"juliaIm"`
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s/%06d@%.2f", f.Job, f.Index, f.Zoom)
}

// Filename is the frame's path relative to the store root.
func (f *Frame) Filename() string {
	return path.Join(f.Job, fmt.Sprintf("frame-%06d.png", f.Index))
}

// Snapshot decodes the frame's viewport, projecting the center into the
// tier its zoom level calls for.
func (f *Frame) Snapshot() (viewport.Snapshot, error) {
	center, _, err := viewport.DecodeCenter(f.Center)
	if err != nil {
		return viewport.Snapshot{}, fmt.Errorf("frame %s: %w", f, err)
	}
	tier := viewport.TierForZoom(f.Zoom)
	return viewport.Snapshot{
		Center: center.Project(tier.Exp),
		Zoom:   f.Zoom,
		Tier:   tier,
	}, nil
}

// Request turns the frame into a render request. The frame index doubles
// as the generation, which keeps orbit searches deterministic per frame.
func (f *Frame) Request() (*render.Request, error) {
	snap, err := f.Snapshot()
	if err != nil {
		return nil, err
	}
	kind := escape.Mandelbrot
	if f.Julia {
		kind = escape.Julia
	}
	return &render.Request{
		Viewport:     snap,
		Width:        f.Width,
		Height:       f.Height,
		MaxIter:      f.MaxIter,
		PaletteID:    f.Palette,
		SampleBudget: f.Samples,
		Kind:         kind,
		JuliaC:       complex(f.JuliaRe, f.JuliaIm),
		Generation:   uint64(f.Index),
	}, nil
}

// Job describes a zoom animation: a fixed center approached from
// ZoomFrom to ZoomTo over Frames frames, spaced evenly in zoom (so the
// apparent magnification rate is constant).
type Job struct {
	Name     string
	Center   string
	ZoomFrom float64
	ZoomTo   float64
	Frames   int

	Width   int
	Height  int
	MaxIter int
	Palette string
	Samples int

	Julia  bool
	JuliaC complex128
}

// Expand lists the job's frames in order.
func (j *Job) Expand() ([]*Frame, error) {
	if j.Frames < 1 {
		return nil, fmt.Errorf("job %s: frame count %d", j.Name, j.Frames)
	}
	if _, _, err := viewport.DecodeCenter(j.Center); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	step := 0.0
	if j.Frames > 1 {
		step = (j.ZoomTo - j.ZoomFrom) / float64(j.Frames-1)
	}
	frames := make([]*Frame, j.Frames)
	for i := range frames {
		frames[i] = &Frame{
			Job:     j.Name,
			Index:   i,
			Center:  j.Center,
			Zoom:    j.ZoomFrom + step*float64(i),
			Width:   j.Width,
			Height:  j.Height,
			MaxIter: j.MaxIter,
			Palette: j.Palette,
			Samples: j.Samples,
			Julia:   j.Julia,
			JuliaRe: real(j.JuliaC),
			JuliaIm: imag(j.JuliaC),
		}
	}
	return frames, nil
}
