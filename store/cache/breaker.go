package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

// BreakerConfig configures the circuit breaker around a Store.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Requests allowed through while half-open
	Interval         time.Duration // Cyclic period for clearing counts while closed
	Timeout          time.Duration // Time spent open before going half-open
	MinRequests      uint32        // Requests needed before the failure ratio is considered
	FailureThreshold float64       // Failure ratio that trips the breaker
}

// DefaultBreakerConfig returns the breaker settings used for the Redis store.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "cache",
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		MinRequests:      5,
		FailureThreshold: 0.6,
	}
}

// BreakerStore trips after repeated store failures so a dead cache costs
// one fast error per call instead of a network timeout.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner Store, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "cache"
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("cache circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
	})
	return &BreakerStore{inner: inner, cb: cb}
}

// State reports the breaker state, for health output.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) run(op string, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return unavailable(err, op)
	}
	return err
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := b.run("get", func() error {
		var err error
		data, found, err = b.inner.Get(ctx, key)
		return err
	})
	return data, found, err
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.run("set", func() error { return b.inner.Set(ctx, key, value, ttl) })
}

func (b *BreakerStore) Delete(ctx context.Context, keys ...string) error {
	return b.run("delete", func() error { return b.inner.Delete(ctx, keys...) })
}

func (b *BreakerStore) DeletePrefix(ctx context.Context, prefix string) error {
	return b.run("delete prefix", func() error { return b.inner.DeletePrefix(ctx, prefix) })
}

func (b *BreakerStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	var values map[string][]byte
	err := b.run("hgetall", func() error {
		var err error
		values, err = b.inner.HGetAll(ctx, key)
		return err
	})
	return values, err
}

func (b *BreakerStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return b.run("hset", func() error { return b.inner.HSet(ctx, key, field, value) })
}

func (b *BreakerStore) HDel(ctx context.Context, key string, fields ...string) error {
	return b.run("hdel", func() error { return b.inner.HDel(ctx, key, fields...) })
}

func (b *BreakerStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.run("expire", func() error { return b.inner.Expire(ctx, key, ttl) })
}

func (b *BreakerStore) Pipeline() Pipeline {
	return &breakerPipeline{Pipeline: b.inner.Pipeline(), breaker: b}
}

// Ping bypasses the breaker so health checks see the real store state.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}

type breakerPipeline struct {
	Pipeline
	breaker *BreakerStore
}

func (p *breakerPipeline) Exec(ctx context.Context) error {
	return p.breaker.run("pipeline", func() error { return p.Pipeline.Exec(ctx) })
}

var _ Store = (*BreakerStore)(nil)
