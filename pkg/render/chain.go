package render

import (
	"log"
	"sync"
)

// Chain holds the backends that survived the one-time capability probe,
// ordered from most to least capable. The bound backend stays fixed for
// the session except for explicit Bind calls and Demote after a render
// failure. Safe for use from concurrent render sessions.
type Chain struct {
	backends []Backend

	mu    sync.Mutex
	bound int
}

// NewChain probes the candidates in capability order (most capable
// first), keeps the ones that pass, and binds the most capable survivor.
func NewChain(candidates ...Backend) (*Chain, error) {
	c := &Chain{}
	for _, b := range candidates {
		if !b.Probe() {
			log.Printf("[render] backend %s failed probe, skipping", b.Name())
			continue
		}
		c.backends = append(c.backends, b)
	}
	if len(c.backends) == 0 {
		return nil, ErrNoBackend
	}
	log.Printf("[render] bound backend %s (%d available)", c.backends[0].Name(), len(c.backends))
	return c, nil
}

// Bound returns the currently bound backend.
func (c *Chain) Bound() Backend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backends[c.bound]
}

// Names lists the surviving backends in capability order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Bind switches to a named backend on explicit request.
func (c *Chain) Bind(name string) error {
	for i, b := range c.backends {
		if b.Name() == name {
			c.mu.Lock()
			c.bound = i
			c.mu.Unlock()
			return nil
		}
	}
	return ErrUnknownBackend
}

// Demote steps down to the next tier after the bound backend failed a
// render. It reports false when already at the bottom of the chain.
func (c *Chain) Demote() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bound+1 >= len(c.backends) {
		return false
	}
	c.bound++
	log.Printf("[render] demoted to backend %s", c.backends[c.bound].Name())
	return true
}
