package ratelimit

import (
	"context"
	"sync"
)

// GlobalGate blocks all traffic while an account-wide rate limit is in force.
// The zero value is not usable; use NewGlobalGate.
type GlobalGate struct {
	mu   sync.Mutex
	open chan struct{} // closed while the gate is open
}

// NewGlobalGate returns an open gate.
func NewGlobalGate() *GlobalGate {
	ch := make(chan struct{})
	close(ch)
	return &GlobalGate{open: ch}
}

// Wait returns once the gate is open or ctx is done.
func (g *GlobalGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	default:
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops traffic until Open is called. Closing a closed gate is a no-op.
func (g *GlobalGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.open:
		g.open = make(chan struct{})
	default:
	}
}

// Open releases every caller blocked in Wait. Opening an open gate is a
// no-op.
func (g *GlobalGate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.open:
	default:
		close(g.open)
	}
}

// IsOpen reports whether traffic is currently allowed.
func (g *GlobalGate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.open:
		return true
	default:
		return false
	}
}
