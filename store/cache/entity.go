package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"
)

// EntityCache binds a KeyedCache to one entity type keyed by int32 id.
// The primary entry "<ns>:<id>" is the only copy of the value; secondary
// indexes store "<ns>:<index>:<alt> -> id" and composites live under "<ns>:<id>:<facet>".
//
// Store errors are logged and treated as misses.
type EntityCache[T any] struct {
	keyed   *KeyedCache
	indexes []*Index[T]
}

// NewEntityCache creates an EntityCache over keyed.
func NewEntityCache[T any](keyed *KeyedCache) *EntityCache[T] {
	return &EntityCache[T]{keyed: keyed}
}

// Keyed returns the underlying namespaced cache.
func (c *EntityCache[T]) Keyed() *KeyedCache {
	return c.keyed
}

func idKey(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

func (c *EntityCache[T]) warn(op, key string, err error) {
	slog.Warn("cache unavailable, treating as miss",
		"namespace", c.keyed.namespace,
		"op", op,
		"key", key,
		"error", err)
}

// GetByID returns the cached entity, if any.
func (c *EntityCache[T]) GetByID(ctx context.Context, id int32) (*T, bool) {
	key := idKey(id)
	data, found, err := c.keyed.Get(ctx, key)
	if err != nil {
		c.warn("get", key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	value := new(T)
	if err := json.Unmarshal(data, value); err != nil {
		slog.Warn("failed to unmarshal cache value", "namespace", c.keyed.namespace, "key", key, "error", err)
		return nil, false
	}
	return value, true
}

// SetByID writes the primary entry and the secondary index entries derived from value.
func (c *EntityCache[T]) SetByID(ctx context.Context, id int32, value *T, ttl time.Duration) {
	if value == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("failed to marshal cache value", "namespace", c.keyed.namespace, "id", id, "error", err)
		return
	}

	pipe := c.keyed.Pipeline()
	pipe.Set(idKey(id), data, ttl)
	for _, idx := range c.indexes {
		if alt := idx.extract(value); alt != "" {
			pipe.Set(idx.key(alt), []byte(idKey(id)), ttl)
		}
	}
	if err := pipe.Exec(ctx); err != nil {
		c.warn("set", idKey(id), err)
	}
}

// Evict removes only the primary entry, keeping composites and index keys.
func (c *EntityCache[T]) Evict(ctx context.Context, id int32) {
	key := idKey(id)
	if err := c.keyed.Delete(ctx, key); err != nil {
		c.warn("delete", key, err)
	}
}

// DeleteByID removes the primary entry and every composite "<id>:*".
// The prefix delete ends in ":" so id 1 never clears id 12.
func (c *EntityCache[T]) DeleteByID(ctx context.Context, id int32) {
	key := idKey(id)
	if err := c.keyed.Delete(ctx, key); err != nil {
		c.warn("delete", key, err)
	}
	if err := c.keyed.Delete(ctx, key+":*"); err != nil {
		c.warn("delete", key+":*", err)
	}
}

// Invalidate removes everything derived from entity id: the primary entry,
// the secondary index keys of the previous value, and every composite.
// When previous is nil the cached value, if any, supplies the index keys.
func (c *EntityCache[T]) Invalidate(ctx context.Context, id int32, previous *T) {
	if previous == nil && len(c.indexes) > 0 {
		previous, _ = c.GetByID(ctx, id)
	}
	if previous != nil {
		var keys []string
		for _, idx := range c.indexes {
			if alt := idx.extract(previous); alt != "" {
				keys = append(keys, idx.key(alt))
			}
		}
		if err := c.keyed.DeleteKeys(ctx, keys...); err != nil {
			c.warn("delete index", idKey(id), err)
		}
	}
	c.DeleteByID(ctx, id)
}

// GetMany hydrates ids in one round trip. It returns the hits and the ids still missing.
func (c *EntityCache[T]) GetMany(ctx context.Context, ids []int32) (map[int32]*T, []int32) {
	found := make(map[int32]*T, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	pipe := c.keyed.Pipeline()
	values := make([]*Value, len(ids))
	for i, id := range ids {
		values[i] = pipe.Get(idKey(id))
	}
	if err := pipe.Exec(ctx); err != nil {
		c.warn("get many", "", err)
		return found, append([]int32(nil), ids...)
	}

	var missing []int32
	for i, id := range ids {
		data, ok := values[i].Bytes()
		if !ok {
			missing = append(missing, id)
			continue
		}
		value := new(T)
		if err := json.Unmarshal(data, value); err != nil {
			missing = append(missing, id)
			continue
		}
		found[id] = value
	}
	return found, missing
}

// SetMany writes several entities in one round trip.
func (c *EntityCache[T]) SetMany(ctx context.Context, values map[int32]*T, ttl time.Duration) {
	if len(values) == 0 {
		return
	}
	pipe := c.keyed.Pipeline()
	for id, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			continue
		}
		pipe.Set(idKey(id), data, ttl)
	}
	if err := pipe.Exec(ctx); err != nil {
		c.warn("set many", "", err)
	}
}

// AddIndex declares a secondary index named name, derived from each value by extract.
// Index keys are written by SetByID and removed by Invalidate.
func (c *EntityCache[T]) AddIndex(name string, extract func(*T) string) *Index[T] {
	idx := &Index[T]{entity: c, name: name, extract: extract}
	c.indexes = append(c.indexes, idx)
	return idx
}

// Index maps an alternate identifier to an entity id. It never holds the entity itself,
// so it cannot go stale independently of the primary entry.
type Index[T any] struct {
	entity  *EntityCache[T]
	name    string
	extract func(*T) string
}

func (i *Index[T]) key(alt string) string {
	return i.name + ":" + alt
}

// GetID returns the id cached for alt.
func (i *Index[T]) GetID(ctx context.Context, alt string) (int32, bool) {
	data, found, err := i.entity.keyed.Get(ctx, i.key(alt))
	if err != nil {
		i.entity.warn("get index", i.key(alt), err)
		return 0, false
	}
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(string(data), 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(id), true
}

// Get resolves alt through the index and then the primary entry.
func (i *Index[T]) Get(ctx context.Context, alt string) (*T, bool) {
	id, ok := i.GetID(ctx, alt)
	if !ok {
		return nil, false
	}
	return i.entity.GetByID(ctx, id)
}

// Set records alt -> id.
func (i *Index[T]) Set(ctx context.Context, alt string, id int32) {
	if err := i.entity.keyed.Set(ctx, i.key(alt), []byte(idKey(id)), 0); err != nil {
		i.entity.warn("set index", i.key(alt), err)
	}
}

// Delete removes alt.
func (i *Index[T]) Delete(ctx context.Context, alt string) {
	if err := i.entity.keyed.Delete(ctx, i.key(alt)); err != nil {
		i.entity.warn("delete index", i.key(alt), err)
	}
}

// Composite is a derived collection cached under "<ns>:<parentID>:<facet>",
// e.g. an event's tag list. It is cleared with its parent's primary entry.
type Composite[V any] struct {
	keyed *KeyedCache
	facet string
}

// NewComposite declares the facet of an entity namespace.
func NewComposite[V any, T any](entity *EntityCache[T], facet string) *Composite[V] {
	return &Composite[V]{keyed: entity.keyed, facet: facet}
}

// Key returns the composite key, relative to the namespace.
func (c *Composite[V]) Key(parentID int32) string {
	return idKey(parentID) + ":" + c.facet
}

// Get returns the cached collection.
func (c *Composite[V]) Get(ctx context.Context, parentID int32) (V, bool) {
	var value V
	data, found, err := c.keyed.Get(ctx, c.Key(parentID))
	if err != nil {
		slog.Warn("cache unavailable, treating as miss", "namespace", c.keyed.namespace, "key", c.Key(parentID), "error", err)
		return value, false
	}
	if !found {
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false
	}
	return value, true
}

// Set caches the collection.
func (c *Composite[V]) Set(ctx context.Context, parentID int32, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.keyed.Set(ctx, c.Key(parentID), data, 0); err != nil {
		slog.Warn("cache unavailable, skipping write", "namespace", c.keyed.namespace, "key", c.Key(parentID), "error", err)
	}
}

// Invalidate drops the collection; call it after every mutation of the relation.
func (c *Composite[V]) Invalidate(ctx context.Context, parentID int32) {
	if err := c.keyed.Delete(ctx, c.Key(parentID)); err != nil {
		slog.Warn("cache unavailable, invalidation skipped", "namespace", c.keyed.namespace, "key", c.Key(parentID), "error", err)
	}
}
