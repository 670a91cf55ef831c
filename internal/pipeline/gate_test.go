package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"loom/internal/pipeline"
)

func waitResult(g *pipeline.Gate) chan error {
	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()
	return done
}

func TestGateRunsByDefault(t *testing.T) {
	g := pipeline.NewGate()
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on running gate = %v", err)
	}
	if g.Paused() || g.Canceled() {
		t.Fatal("fresh gate should be running")
	}
}

func TestGatePauseBlocksUntilResume(t *testing.T) {
	g := pipeline.NewGate()
	g.Pause()
	if !g.Paused() {
		t.Fatal("expected gate paused")
	}

	done := waitResult(g)
	select {
	case err := <-done:
		t.Fatalf("Wait returned %v while paused", err)
	case <-time.After(50 * time.Millisecond):
	}

	g.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait after resume = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
	if g.Paused() {
		t.Fatal("gate should be running after resume")
	}
}

func TestGateCancelReleasesPausedWaiter(t *testing.T) {
	g := pipeline.NewGate()
	g.Pause()
	done := waitResult(g)

	g.Cancel()
	select {
	case err := <-done:
		if !errors.Is(err, pipeline.ErrCanceled) {
			t.Fatalf("Wait after cancel = %v, want ErrCanceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel did not release the paused waiter")
	}
	if g.Paused() {
		t.Fatal("canceled gate should not report paused")
	}
	if !g.Canceled() {
		t.Fatal("expected canceled flag")
	}
}

func TestGateCancelTripsNextWait(t *testing.T) {
	g := pipeline.NewGate()
	g.Cancel()
	if err := g.Wait(context.Background()); !errors.Is(err, pipeline.ErrCanceled) {
		t.Fatalf("Wait = %v, want ErrCanceled", err)
	}
	// Pause after cancel must not resurrect the gate.
	g.Pause()
	if g.Paused() {
		t.Fatal("pause after cancel should be a no-op")
	}
}

func TestGateWaitHonorsContext(t *testing.T) {
	g := pipeline.NewGate()
	g.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Wait = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("context cancellation did not release the waiter")
	}
}
