package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach runs action for every item, with at most limit actions in flight
// (unbounded when limit <= 0). The first error cancels the context handed to
// the remaining actions and is returned once all of them have finished.
func ForEach[T any](ctx context.Context, items []T, limit int, action func(ctx context.Context, idx int, item T) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for idx, item := range items {
		g.Go(func() error {
			return action(ctx, idx, item)
		})
	}
	return g.Wait()
}

// Map applies mapFn to every item concurrently, preserving order. On error the
// partial results are returned alongside it so callers can release whatever
// was produced.
func Map[T any, R any](ctx context.Context, items []T, limit int, mapFn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	err := ForEach(ctx, items, limit, func(ctx context.Context, idx int, item T) error {
		r, err := mapFn(ctx, item)
		if err != nil {
			return err
		}
		out[idx] = r
		return nil
	})
	return out, err
}
