package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devblac/bridge-relay/internal/chain"
)

func TestRunnerTickRunsEveryDirection(t *testing.T) {
	ok := newHarness(t, nil)
	ok.src.height = 100
	ok.src.events = []chain.Event{lockEvent(99, 0, 1)}

	broken := newHarness(t, func(c *LoopConfig) { c.Direction = "destination_to_source" })
	broken.src.height = 100
	broken.src.readErr = chain.ErrConnectivity

	r := NewRunner(nil, broken.loop, ok.loop)
	err := r.Tick(context.Background())
	if !errors.Is(err, chain.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if ok.submitter.count() != 1 {
		t.Fatalf("healthy direction must still relay, got %d submissions", ok.submitter.count())
	}
}

func TestRunnerOnceReturnsCycleError(t *testing.T) {
	h := newHarness(t, nil)
	h.src.height = 100
	h.src.readErr = chain.ErrConnectivity

	r := NewRunner(nil, h.loop)
	if err := r.Run(context.Background(), time.Millisecond, true); err == nil {
		t.Fatalf("expected error in once mode")
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.src.height = 100

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRunner(nil, h.loop).Run(ctx, 5*time.Millisecond, false) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
}
