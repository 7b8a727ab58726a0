package cache

import (
	"context"
)

// ReadThrough checks the entity cache, calls load on a miss and caches the result.
// A nil result (not found) and load errors are never cached.
func ReadThrough[T any](ctx context.Context, c *EntityCache[T], id int32, load func(ctx context.Context) (*T, error)) (*T, error) {
	if value, ok := c.GetByID(ctx, id); ok {
		return value, nil
	}
	value, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if value != nil {
		c.SetByID(ctx, id, value, 0)
	}
	return value, nil
}

// ReadThroughIndex resolves alt through idx, falling back to load. On a load hit the
// primary entry and every index entry are written, keyed by the id returned by idOf.
func ReadThroughIndex[T any](ctx context.Context, idx *Index[T], alt string, idOf func(*T) int32, load func(ctx context.Context) (*T, error)) (*T, error) {
	if value, ok := idx.Get(ctx, alt); ok {
		return value, nil
	}
	value, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if value != nil {
		idx.entity.SetByID(ctx, idOf(value), value, 0)
	}
	return value, nil
}

// Load is ReadThrough for a composite collection.
func Load[V any](ctx context.Context, c *Composite[V], parentID int32, load func(ctx context.Context) (V, error)) (V, error) {
	if value, ok := c.Get(ctx, parentID); ok {
		return value, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	c.Set(ctx, parentID, value)
	return value, nil
}
