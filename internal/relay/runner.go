package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner drives both relay directions.
type Runner struct {
	loops []*Loop
	log   *slog.Logger
}

// NewRunner builds a runner over loops.
func NewRunner(log *slog.Logger, loops ...*Loop) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{loops: loops, log: log.With("component", "runner")}
}

// Tick runs one cycle of every loop concurrently. Directions share no mutable
// state, so one failing does not cancel the other. The first error is returned.
func (r *Runner) Tick(ctx context.Context) error {
	var g errgroup.Group
	for _, l := range r.loops {
		l := l
		g.Go(func() error {
			sum, err := l.RunOnce(ctx)
			if err != nil {
				r.log.Error("cycle failed", "direction", l.Direction(), "error", err)
				return err
			}
			if !sum.Window.Empty || sum.Events > 0 {
				r.log.Info("cycle complete",
					"direction", l.Direction(),
					"from", sum.Window.From,
					"to", sum.Window.To,
					"events", sum.Events,
					"relayed", sum.Relayed,
					"skipped", sum.Skipped,
					"failed", sum.Failed,
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run ticks every interval until ctx is done. Cycle errors are logged and the
// next cycle proceeds; with once set, the first cycle's error is returned.
func (r *Runner) Run(ctx context.Context, interval time.Duration, once bool) error {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		err := r.Tick(ctx)
		if once {
			return err
		}
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
