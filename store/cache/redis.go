package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection configuration.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "plaza:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// scanBatch is both the SCAN COUNT hint and the DEL batch size.
const scanBatch = 100

// RedisStore is a Store backed by Redis. It is needed for multi-instance deployments.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	slog.Info("Redis cache connected", "addr", config.Addr)

	return NewRedisStoreFromClient(client, config.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Client exposes the underlying client so pub/sub can share the connection pool.
func (r *RedisStore) Client() redis.UniversalClient {
	return r.client
}

func (r *RedisStore) fullKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, unavailable(err, "get")
	}
	return data, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return unavailable(r.client.Set(ctx, r.fullKey(key), value, ttl).Err(), "set")
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	fullKeys := make([]string, len(keys))
	for i, key := range keys {
		fullKeys[i] = r.fullKey(key)
	}
	return unavailable(r.client.Del(ctx, fullKeys...).Err(), "delete")
}

// DeletePrefix emulates pattern delete with SCAN MATCH and batched DEL.
func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(r.fullKey(prefix)) + "*"
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()

	keys := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanBatch {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return unavailable(err, "delete prefix")
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return unavailable(err, "scan")
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return unavailable(err, "delete prefix")
		}
	}
	return nil
}

func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	values, err := r.client.HGetAll(ctx, r.fullKey(key)).Result()
	if err != nil {
		return nil, unavailable(err, "hgetall")
	}
	result := make(map[string][]byte, len(values))
	for field, value := range values {
		result[field] = []byte(value)
	}
	return result, nil
}

func (r *RedisStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return unavailable(r.client.HSet(ctx, r.fullKey(key), field, value).Err(), "hset")
}

func (r *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return unavailable(r.client.HDel(ctx, r.fullKey(key), fields...).Err(), "hdel")
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}
	return unavailable(r.client.Expire(ctx, r.fullKey(key), ttl).Err(), "expire")
}

func (r *RedisStore) Pipeline() Pipeline {
	return &redisPipeline{store: r}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return unavailable(r.client.Ping(ctx).Err(), "ping")
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

type pendingGet struct {
	cmd   *redis.StringCmd
	value *Value
}

// redisPipeline records commands and sends them in one round trip on Exec.
type redisPipeline struct {
	store *RedisStore
	ops   []func(ctx context.Context, pipe redis.Pipeliner)
	gets  []*pendingGet
}

func (p *redisPipeline) Get(key string) *Value {
	pending := &pendingGet{value: &Value{}}
	p.gets = append(p.gets, pending)
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pending.cmd = pipe.Get(ctx, p.store.fullKey(key))
	})
	return pending.value
}

func (p *redisPipeline) Set(key string, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, p.store.fullKey(key), value, ttl)
	})
}

func (p *redisPipeline) Expire(key string, ttl time.Duration) {
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		if ttl <= 0 {
			pipe.Del(ctx, p.store.fullKey(key))
			return
		}
		pipe.Expire(ctx, p.store.fullKey(key), ttl)
	})
}

func (p *redisPipeline) HSet(key, field string, value []byte) {
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, p.store.fullKey(key), field, value)
	})
}

func (p *redisPipeline) HDel(key string, fields ...string) {
	if len(fields) == 0 {
		return
	}
	p.ops = append(p.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HDel(ctx, p.store.fullKey(key), fields...)
	})
}

func (p *redisPipeline) Exec(ctx context.Context) error {
	if len(p.ops) == 0 {
		return nil
	}
	pipe := p.store.client.Pipeline()
	for _, op := range p.ops {
		op(ctx, pipe)
	}
	p.ops = nil

	// A missing key in a pipelined GET surfaces as redis.Nil; that is a miss, not a failure.
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err, "pipeline")
	}

	for _, pending := range p.gets {
		data, err := pending.cmd.Bytes()
		switch {
		case err == nil:
			pending.value.fill(data, true)
		case errors.Is(err, redis.Nil):
			pending.value.fill(nil, false)
		default:
			return unavailable(err, "pipeline get")
		}
	}
	p.gets = nil
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ Store = (*RedisStore)(nil)
