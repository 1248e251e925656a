package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// extractionScheduler runs extraction tasks in the background while the
// controlling goroutine moves on to the next download.
//
// Semantics:
//   - limit > 0 bounds outstanding tasks; Go blocks until a slot frees up.
//   - With failFast, the first failing task stops the scheduler so no further update is
//     started. Tasks already running are not interrupted.
//   - Without failFast, task errors are expected to be reported by the task
//     itself and are not propagated.
type extractionScheduler struct {
	group    *errgroup.Group
	ctx      context.Context
	failFast bool
}

func newExtractionScheduler(ctx context.Context, limit int, failFast bool) *extractionScheduler {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &extractionScheduler{group: g, ctx: gctx, failFast: failFast}
}

// Go starts task in its own goroutine.
func (s *extractionScheduler) Go(task func() error) {
	s.group.Go(func() error {
		err := task()
		if err != nil && s.failFast {
			return err
		}
		return nil
	})
}

// Stopped reports whether no further update should be started: the parent
// context ended or, under fail-fast, a task failed.
func (s *extractionScheduler) Stopped() bool {
	return s.ctx.Err() != nil
}

// Wait joins every outstanding task and returns the first fail-fast error.
func (s *extractionScheduler) Wait() error {
	return s.group.Wait()
}
