package orbit

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrWorkerClosed is returned for lookups against a closed worker.
var ErrWorkerClosed = errors.New("orbit: worker closed")

type job struct {
	gen    uint64
	params Params
	done   chan jobResult
}

type jobResult struct {
	orbit *Orbit
	err   error
}

// Worker computes orbits on one background goroutine. Jobs are keyed by
// request generation so that completions arriving out of order still
// resolve to the caller that asked for them.
type Worker struct {
	jobs chan job
	quit chan struct{}

	mu      sync.Mutex
	pending map[uint64]chan jobResult
	closed  bool
}

// NewWorker starts the background search goroutine.
func NewWorker() *Worker {
	w := &Worker{
		jobs:    make(chan job, 4),
		quit:    make(chan struct{}),
		pending: make(map[uint64]chan jobResult),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	for {
		select {
		case <-w.quit:
			return
		case j := <-w.jobs:
			o, err := Search(context.Background(), j.params)
			j.done <- jobResult{orbit: o, err: err}
			w.mu.Lock()
			delete(w.pending, j.gen)
			w.mu.Unlock()
		}
	}
}

// Orbit submits a search keyed by generation (deduplicating repeat asks
// for the same generation) and waits for its result or ctx cancellation.
func (w *Worker) Orbit(ctx context.Context, gen uint64, p Params) (*Orbit, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrWorkerClosed
	}
	done, ok := w.pending[gen]
	if !ok {
		done = make(chan jobResult, 1)
		w.pending[gen] = done
		select {
		case w.jobs <- job{gen: gen, params: p, done: done}:
		default:
			// queue full; give up on the worker for this request
			delete(w.pending, gen)
			w.mu.Unlock()
			return nil, errors.New("orbit: worker saturated")
		}
	}
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		// repeated waiters for the same generation re-share the result
		select {
		case done <- res:
		default:
		}
		return res.orbit, res.err
	}
}

// Close stops the background goroutine. In-flight lookups fail over to
// synchronous search through Provider.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.quit)
}

// Provider resolves orbits for render backends: through the background
// worker when one is attached and healthy, synchronously otherwise. A
// worker failure is not a render failure.
type Provider struct {
	Worker *Worker // nil means always synchronous
}

// Lookup returns the orbit for a request generation.
func (p *Provider) Lookup(ctx context.Context, gen uint64, params Params) (*Orbit, error) {
	if p.Worker != nil {
		o, err := p.Worker.Orbit(ctx, gen, params)
		if err == nil {
			return o, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Println("[orbit] worker lookup failed, falling back to synchronous search:", err)
	}
	return Search(ctx, params)
}
