package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceled reports that the run was stopped through the control surface.
// It is a clean outcome, not a failure: completed chapters stay on disk.
var ErrCanceled = errors.New("run canceled")

// Gate is the cooperative pause/cancel checkpoint. The worker calls Wait at
// every chapter boundary; control commands flip the gate from another
// goroutine. The zero state is running.
type Gate struct {
	mu       sync.Mutex
	paused   bool
	canceled bool
	resume   chan struct{}
	cancel   chan struct{}
}

// NewGate returns a gate in the running state.
func NewGate() *Gate {
	return &Gate{cancel: make(chan struct{})}
}

// Pause blocks future Wait calls until Resume or Cancel. Pausing an already
// paused or canceled gate is a no-op.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused || g.canceled {
		return
	}
	g.paused = true
	g.resume = make(chan struct{})
}

// Resume releases a paused gate. The released waiter re-checks the cancel
// flag before returning to work.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
}

// Cancel trips the cancel flag and releases any paused waiter.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.canceled {
		return
	}
	g.canceled = true
	close(g.cancel)
	if g.paused {
		g.paused = false
		close(g.resume)
	}
}

// Paused reports whether the gate is currently holding workers.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Canceled reports whether cancellation has been requested.
func (g *Gate) Canceled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canceled
}

// Wait blocks while the gate is paused and returns ErrCanceled once
// cancellation is requested, including when the cancel arrives while the
// caller is blocked. A running gate returns immediately.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.canceled {
			g.mu.Unlock()
			return ErrCanceled
		}
		if !g.paused {
			g.mu.Unlock()
			return ctx.Err()
		}
		resume := g.resume
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.cancel:
			return ErrCanceled
		case <-resume:
			// Loop to re-check cancel after the resume.
		}
	}
}
