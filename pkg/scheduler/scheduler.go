// Package scheduler paces rendering against interactive input. Input
// events collapse into a single pending slot (latest wins), every
// accepted event bumps a generation counter, in-flight work for a stale
// generation is cancelled and its result discarded, and a full-quality
// pass runs once the viewport has been still for the settle window.
package scheduler

import (
	"context"
	"errors"
	"image"
	"log"
	"time"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/render"
	"mandelzoom/pkg/viewport"
)

// DefaultSettleDelay is how long the viewport must hold still before
// the full-quality pass starts.
const DefaultSettleDelay = 100 * time.Millisecond

// Quality bundles the knobs the scheduler trades for latency.
type Quality struct {
	MaxIter      int
	SampleBudget int
}

// Config fixes the per-session render parameters.
type Config struct {
	Width, Height int
	PaletteID     string
	Kind          escape.Kind
	JuliaC        complex128

	// Interactive renders while input is live; Settled renders after
	// the settle window.
	Interactive Quality
	Settled     Quality
	SettleDelay time.Duration // 0 means DefaultSettleDelay
}

// Frame is a presented image. Reprojected previews carry the backend
// name "reproject" and are always superseded by a real render.
type Frame struct {
	Img        *image.RGBA
	Generation uint64
	Backend    string
	Settled    bool
}

// Scheduler owns the render loop for one view. Update may be called
// from any goroutine; frames are delivered on Frames in presentation
// order, latest wins.
type Scheduler struct {
	chain *render.Chain
	cfg   Config

	pending chan viewport.Snapshot
	frames  chan Frame

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	gen uint64
}

// New starts a scheduler over a probed backend chain.
func New(chain *render.Chain, cfg Config) *Scheduler {
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		chain:   chain,
		cfg:     cfg,
		pending: make(chan viewport.Snapshot, 1),
		frames:  make(chan Frame, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Update queues a viewport snapshot for rendering. Only the newest
// unrendered snapshot is kept.
func (s *Scheduler) Update(snap viewport.Snapshot) {
	for {
		select {
		case s.pending <- snap:
			return
		default:
		}
		select {
		case <-s.pending: // drop the stale queued snapshot
		default:
		}
	}
}

// Pending reports whether an event is waiting. Exposed for tests.
func (s *Scheduler) Pending() int { return len(s.pending) }

// Frames returns the presentation channel.
func (s *Scheduler) Frames() <-chan Frame { return s.frames }

// Close stops the loop and cancels any in-flight render.
func (s *Scheduler) Close() {
	s.cancel()
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	var (
		last     *image.RGBA
		lastSnap viewport.Snapshot
		have     bool
	)
	for {
		var snap viewport.Snapshot
		select {
		case <-s.ctx.Done():
			return
		case snap = <-s.pending:
		}
		for more := true; more; {
			snap, more = s.cycle(snap, &last, &lastSnap, &have)
		}
	}
}

// cycle renders one accepted event: reprojected preview, interactive
// pass, settle window, full-quality pass. It reports a follow-up
// snapshot when a newer event superseded the cycle midway.
func (s *Scheduler) cycle(snap viewport.Snapshot, last **image.RGBA, lastSnap *viewport.Snapshot, have *bool) (viewport.Snapshot, bool) {
	s.gen++
	if *have {
		if img := Reproject(*last, *lastSnap, snap); img != nil {
			s.present(Frame{Img: img, Generation: s.gen, Backend: "reproject"})
		}
	}

	frame, next, ok := s.renderInterruptible(snap, s.cfg.Interactive, false)
	if next != nil {
		// superseded mid-render; the stale result was discarded
		return *next, true
	}
	if ok {
		*last, *lastSnap, *have = frame.Img, snap, true
		s.present(*frame)
	}

	select {
	case <-s.ctx.Done():
		return snap, false
	case snap2 := <-s.pending:
		return snap2, true
	case <-time.After(s.cfg.SettleDelay):
	}

	frame, next, ok = s.renderInterruptible(snap, s.cfg.Settled, true)
	if next != nil {
		return *next, true
	}
	if ok {
		*last, *lastSnap, *have = frame.Img, snap, true
		s.present(*frame)
	}
	return snap, false
}

// renderInterruptible runs one render, aborting it the moment a newer
// event lands. It walks down the backend chain on failure. A non-nil
// next means the render was superseded.
func (s *Scheduler) renderInterruptible(snap viewport.Snapshot, q Quality, settled bool) (frame *Frame, next *viewport.Snapshot, ok bool) {
	for {
		req := &render.Request{
			Viewport:     snap,
			Width:        s.cfg.Width,
			Height:       s.cfg.Height,
			MaxIter:      q.MaxIter,
			PaletteID:    s.cfg.PaletteID,
			SampleBudget: q.SampleBudget,
			Kind:         s.cfg.Kind,
			JuliaC:       s.cfg.JuliaC,
			Generation:   s.gen,
		}
		ctx, cancel := context.WithCancel(s.ctx)
		ch := render.Async(ctx, s.chain.Bound(), req)

		select {
		case snap2 := <-s.pending:
			cancel()
			<-ch // wait out the abort; the result is stale
			return nil, &snap2, false
		case out := <-ch:
			cancel()
			if out.Err == nil {
				if out.Result.Generation != s.gen {
					return nil, nil, false
				}
				return &Frame{
					Img:        out.Result.Pix,
					Generation: out.Result.Generation,
					Backend:    out.Result.Backend,
					Settled:    settled,
				}, nil, true
			}
			if errors.Is(out.Err, context.Canceled) {
				return nil, nil, false
			}
			log.Printf("[scheduler] %s render failed: %v", s.chain.Bound().Name(), out.Err)
			if !s.chain.Demote() {
				log.Printf("[scheduler] no backend left for generation %d", s.gen)
				return nil, nil, false
			}
		}
	}
}

// present delivers a frame, displacing an unconsumed older one.
func (s *Scheduler) present(f Frame) {
	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}
