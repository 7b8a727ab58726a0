package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrUnavailable marks failures of the backing cache store itself.
// Callers treat it as a miss and fall through to the record store.
var ErrUnavailable = errors.New("cache store unavailable")

// Store is the backing key-value store behind every KeyedCache.
// Keys passed to a Store are already namespaced.
type Store interface {
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set overwrites unconditionally. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HDel(ctx context.Context, key string, fields ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Pipeline batches commands into one round trip. Batches are not atomic.
	Pipeline() Pipeline

	Ping(ctx context.Context) error
	Close() error
}

// Pipeline queues commands until Exec.
type Pipeline interface {
	Get(key string) *Value
	Set(key string, value []byte, ttl time.Duration)
	Expire(key string, ttl time.Duration)
	HSet(key, field string, value []byte)
	HDel(key string, fields ...string)
	Exec(ctx context.Context) error
}

// Value is the deferred result of a pipelined Get, filled in by Exec.
type Value struct {
	data  []byte
	found bool
}

// Bytes returns the value and whether the key was present.
func (v *Value) Bytes() ([]byte, bool) {
	return v.data, v.found
}

func (v *Value) fill(data []byte, found bool) {
	v.data = data
	v.found = found
}

// unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return &storeError{op: op, cause: err}
}

type storeError struct {
	op    string
	cause error
}

func (e *storeError) Error() string {
	return "cache " + e.op + ": " + e.cause.Error()
}

func (e *storeError) Unwrap() error {
	return e.cause
}

func (e *storeError) Is(target error) bool {
	return target == ErrUnavailable
}
