// Package render defines the render contract shared by all compute
// backends — request/result types, the capability-probed backend chain —
// and implements the software (CPU pool) backend.
package render

import (
	"context"
	"errors"
	"image"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/viewport"
)

// ErrNoBackend is the fatal startup condition: every tier failed its
// capability probe.
var ErrNoBackend = errors.New("render: no usable backend")

// ErrUnknownBackend is returned for an explicit bind to a name that did
// not survive probing.
var ErrUnknownBackend = errors.New("render: unknown backend")

// Request is an immutable snapshot of everything one frame needs. It is
// created per frame and discarded once superseded or presented.
type Request struct {
	Viewport      viewport.Snapshot
	Width, Height int
	MaxIter       int
	PaletteID     string

	// SampleBudget caps adaptive supersampling per pixel; 1 disables it.
	SampleBudget int

	Kind   escape.Kind
	JuliaC complex128

	// Generation increases monotonically; stale results are recognized
	// and discarded by comparing generations.
	Generation uint64
}

// Result is one computed frame.
type Result struct {
	Backend string
	Pix     *image.RGBA
	// Work is the iteration-count-derived cost estimate of the frame.
	Work       uint64
	Generation uint64
}

// Backend computes full frames. Implementations are the closed set
// cpu / gpu32 / gpu64; the bound backend is chosen once per session via
// the probe chain.
type Backend interface {
	Name() string
	// Probe reports whether the backend can run here. Called once at
	// startup; the outcome is cached for the process lifetime.
	Probe() bool
	Render(ctx context.Context, req *Request) (*Result, error)
}

// Outcome pairs a result with its error for asynchronous delivery.
type Outcome struct {
	Result *Result
	Err    error
}

// Async runs one render on its own goroutine and delivers the outcome on
// the returned channel. This is the Future side of the render contract.
func Async(ctx context.Context, b Backend, req *Request) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		res, err := b.Render(ctx, req)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}
