// Package pipeline runs a sequential producer through a bounded pool of
// workers and hands the results back in production order.
package pipeline

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

type result[R any] struct {
	val R
	err error
}

// Ordered pulls items from next until it returns io.EOF, applies fn to each
// one concurrently and calls sink with the results in the order the items
// were produced. At most depth results are pending at once, which bounds
// memory when next is faster than sink.
//
// next and sink are only ever called from one goroutine each. The first
// error from any of the three functions cancels the context passed to fn
// and is returned.
func Ordered[T, R any](ctx context.Context, depth int, next func() (T, error), fn func(context.Context, T) (R, error), sink func(R) error) error {
	if depth < 1 {
		depth = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan chan result[R], depth)

	g.Go(func() error {
		defer close(queue)
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}

			pending := make(chan result[R], 1)
			select {
			case queue <- pending:
			case <-ctx.Done():
				return ctx.Err()
			}
			go func() {
				v, err := fn(ctx, item)
				pending <- result[R]{val: v, err: err}
			}()
		}
	})

	g.Go(func() error {
		for pending := range queue {
			var r result[R]
			select {
			case r = <-pending:
			case <-ctx.Done():
				return ctx.Err()
			}
			if r.err != nil {
				return r.err
			}
			if err := sink(r.val); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}
