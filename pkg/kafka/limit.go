package kafka

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// LimitConcurrency returns a middleware that lets at most n wrapped handlers
// run at once. Every handler wrapped by the same returned middleware shares
// the budget, so consumers of several topics can draw from one pool.
func LimitConcurrency(n int) func(Handler) Handler {
	sem := semaphore.NewWeighted(int64(max(n, 1)))
	return func(next Handler) Handler {
		return func(ctx context.Context, event *Event) error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return next(ctx, event)
		}
	}
}
