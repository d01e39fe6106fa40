package fnkit

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ParMap applies f to every item with at most `workers` concurrent calls in
// flight, preserving input order in the output. Bounded via
// golang.org/x/sync/semaphore so fan-out can never exceed the caller's cap,
// even transitively.
func ParMap[T, U any](ctx context.Context, items []T, workers int, f func(context.Context, T) (U, error)) ([]U, error) {
	out := make([]U, len(items))
	if len(items) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = len(items)
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		if err := sem.Acquire(gctx, 1); err != nil {
			return out, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			v, err := f(gctx, item)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// ParEach is ParMap without a return value, used where callers only care
// about per-item side effects and per-item error capture (e.g. fit-scoring,
// which never fails the stage — only individual items carry an error).
func ParEach[T any](ctx context.Context, items []T, workers int, f func(context.Context, T)) {
	if len(items) == 0 {
		return
	}
	if workers <= 0 {
		workers = len(items)
	}
	sem := semaphore.NewWeighted(int64(workers))
	var g errgroup.Group
	for _, item := range items {
		item := item
		_ = sem.Acquire(ctx, 1)
		g.Go(func() error {
			defer sem.Release(1)
			f(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
}
