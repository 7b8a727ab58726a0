package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds the settings shared by every namespace.
type Config struct {
	DefaultTTL time.Duration // TTL used when a namespace does not set one (default: 10 minutes)
	Metrics    *Metrics
}

// Cache hands out namespaced KeyedCaches over one Store.
type Cache struct {
	store      Store
	defaultTTL time.Duration
	metrics    *Metrics
}

// New creates a Cache over store.
func New(store Store, cfg Config) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	return &Cache{store: store, defaultTTL: cfg.DefaultTTL, metrics: cfg.Metrics}
}

// Store returns the backing store.
func (c *Cache) Store() Store {
	return c.store
}

// Namespace returns a KeyedCache for name. ttl <= 0 uses the cache default.
func (c *Cache) Namespace(name string, ttl time.Duration) *KeyedCache {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return &KeyedCache{store: c.store, namespace: name, defaultTTL: ttl, metrics: c.metrics}
}

// KeyedCache is a namespaced view of a Store with a default TTL.
// Every key is stored as "<namespace>:<key>".
type KeyedCache struct {
	store      Store
	namespace  string
	defaultTTL time.Duration
	metrics    *Metrics
}

func (k *KeyedCache) Namespace() string {
	return k.namespace
}

func (k *KeyedCache) DefaultTTL() time.Duration {
	return k.defaultTTL
}

func (k *KeyedCache) key(key string) string {
	return k.namespace + ":" + key
}

func (k *KeyedCache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return k.defaultTTL
	}
	return ttl
}

// Get returns (nil, false, nil) on a miss. Errors wrap ErrUnavailable.
func (k *KeyedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, found, err := k.store.Get(ctx, k.key(key))
	if err != nil {
		k.metrics.failure(k.namespace)
		return nil, false, err
	}
	if !found {
		k.metrics.miss(k.namespace)
		return nil, false, nil
	}
	k.metrics.hit(k.namespace)
	return data, true, nil
}

// Set overwrites key. ttl <= 0 uses the namespace default.
func (k *KeyedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := k.store.Set(ctx, k.key(key), value, k.ttl(ttl)); err != nil {
		k.metrics.failure(k.namespace)
		return err
	}
	return nil
}

// Delete removes key. A trailing "*" removes every key sharing the prefix.
func (k *KeyedCache) Delete(ctx context.Context, keyOrPattern string) error {
	var err error
	if prefix, ok := strings.CutSuffix(keyOrPattern, "*"); ok {
		err = k.store.DeletePrefix(ctx, k.key(prefix))
	} else {
		err = k.store.Delete(ctx, k.key(keyOrPattern))
	}
	if err != nil {
		k.metrics.failure(k.namespace)
	}
	return err
}

// DeleteKeys removes several exact keys at once.
func (k *KeyedCache) DeleteKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = k.key(key)
	}
	if err := k.store.Delete(ctx, full...); err != nil {
		k.metrics.failure(k.namespace)
		return err
	}
	return nil
}

// hashField is the stored form of a hash field; fields expire independently of each other.
type hashField struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"exp,omitempty"` // unix millis, 0 = never
}

func (f hashField) expired(now time.Time) bool {
	return f.ExpiresAt != 0 && now.UnixMilli() >= f.ExpiresAt
}

// HashGet returns the live fields of key. Expired fields are dropped and removed.
func (k *KeyedCache) HashGet(ctx context.Context, key string) (map[string][]byte, error) {
	fields, expired, err := k.hashFields(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		if err := k.store.HDel(ctx, k.key(key), expired...); err != nil {
			k.metrics.failure(k.namespace)
		}
	}
	result := make(map[string][]byte, len(fields))
	for name, field := range fields {
		result[name] = field.Value
	}
	if len(result) == 0 {
		k.metrics.miss(k.namespace)
	} else {
		k.metrics.hit(k.namespace)
	}
	return result, nil
}

// HashSet stores one field with its own ttl (<= 0 uses the namespace default).
// The key itself lives as long as its longest-lived field.
func (k *KeyedCache) HashSet(ctx context.Context, key, field string, value []byte, ttl time.Duration) error {
	ttl = k.ttl(ttl)
	fields, expired, err := k.hashFields(ctx, key)
	if err != nil {
		return err
	}

	now := time.Now()
	entry := hashField{Value: value, ExpiresAt: now.Add(ttl).UnixMilli()}
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal hash field")
	}

	keyTTL := ttl
	for name, existing := range fields {
		if name == field {
			continue
		}
		if remaining := time.Duration(existing.ExpiresAt-now.UnixMilli()) * time.Millisecond; remaining > keyTTL {
			keyTTL = remaining
		}
	}

	pipe := k.store.Pipeline()
	pipe.HSet(k.key(key), field, data)
	pipe.HDel(k.key(key), expired...)
	pipe.Expire(k.key(key), keyTTL)
	if err := pipe.Exec(ctx); err != nil {
		k.metrics.failure(k.namespace)
		return err
	}
	return nil
}

// HashDelete removes fields from key.
func (k *KeyedCache) HashDelete(ctx context.Context, key string, fields ...string) error {
	if err := k.store.HDel(ctx, k.key(key), fields...); err != nil {
		k.metrics.failure(k.namespace)
		return err
	}
	return nil
}

// hashFields splits the stored fields of key into live fields and expired field names.
func (k *KeyedCache) hashFields(ctx context.Context, key string) (map[string]hashField, []string, error) {
	raw, err := k.store.HGetAll(ctx, k.key(key))
	if err != nil {
		k.metrics.failure(k.namespace)
		return nil, nil, err
	}
	now := time.Now()
	live := make(map[string]hashField, len(raw))
	var expired []string
	for name, data := range raw {
		var field hashField
		if err := json.Unmarshal(data, &field); err != nil || field.expired(now) {
			expired = append(expired, name)
			continue
		}
		live[name] = field
	}
	return live, expired, nil
}

// Pipeline returns a namespaced batch. Batches are not atomic.
func (k *KeyedCache) Pipeline() *KeyedPipeline {
	return &KeyedPipeline{cache: k, pipe: k.store.Pipeline()}
}

// KeyedPipeline namespaces the keys of a store Pipeline.
type KeyedPipeline struct {
	cache *KeyedCache
	pipe  Pipeline
	gets  []*Value
}

func (p *KeyedPipeline) Get(key string) *Value {
	v := p.pipe.Get(p.cache.key(key))
	p.gets = append(p.gets, v)
	return v
}

func (p *KeyedPipeline) Set(key string, value []byte, ttl time.Duration) {
	p.pipe.Set(p.cache.key(key), value, p.cache.ttl(ttl))
}

func (p *KeyedPipeline) Expire(key string, ttl time.Duration) {
	p.pipe.Expire(p.cache.key(key), ttl)
}

func (p *KeyedPipeline) HSet(key, field string, value []byte) {
	p.pipe.HSet(p.cache.key(key), field, value)
}

func (p *KeyedPipeline) HDel(key string, fields ...string) {
	p.pipe.HDel(p.cache.key(key), fields...)
}

func (p *KeyedPipeline) Exec(ctx context.Context) error {
	if err := p.pipe.Exec(ctx); err != nil {
		p.cache.metrics.failure(p.cache.namespace)
		return err
	}
	for _, v := range p.gets {
		if _, found := v.Bytes(); found {
			p.cache.metrics.hit(p.cache.namespace)
		} else {
			p.cache.metrics.miss(p.cache.namespace)
		}
	}
	p.gets = nil
	return nil
}
