package pagination

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultChildConcurrency bounds concurrent child fetches for one page.
const DefaultChildConcurrency = 8

// AttachChildren fetches one child value per parent concurrently and attaches
// it in input order: attach(parents[i], children[i]). The first fetch error is
// returned and nothing is attached.
func AttachChildren[P any, C any](ctx context.Context, parents []P, concurrency int, fetch func(ctx context.Context, parent P) (C, error), attach func(parent P, child C)) error {
	if len(parents) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = DefaultChildConcurrency
	}

	children := make([]C, len(parents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, parent := range parents {
		g.Go(func() error {
			child, err := fetch(gctx, parent)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, parent := range parents {
		attach(parent, children[i])
	}
	return nil
}
