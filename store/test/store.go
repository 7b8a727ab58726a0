// Package test builds fully migrated stores for integration tests.
//
// Tests run against SQLite in a temp dir by default. Set PLAZA_TEST_DRIVER=postgres
// and POSTGRES_TEST_DSN to run them against an empty PostgreSQL database instead.
package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/internal/profile"
	"github.com/hrygo/plaza/store"
	"github.com/hrygo/plaza/store/cache"
	"github.com/hrygo/plaza/store/db"
)

// NewTestingStore returns a migrated store backed by an in-memory cache.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	memory, err := cache.NewMemoryStore(cache.DefaultMemoryConfig())
	require.NoError(t, err)
	return newTestingStore(ctx, t, memory)
}

// NewTestingStoreWithRedis returns a migrated store whose cache is a miniredis
// server, and the server so tests can inspect or break it.
func NewTestingStoreWithRedis(ctx context.Context, t *testing.T) (*store.Store, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	config := cache.DefaultRedisConfig()
	config.Addr = server.Addr()
	redisStore, err := cache.NewRedisStore(ctx, config)
	require.NoError(t, err)
	return newTestingStore(ctx, t, redisStore), server
}

// NewTestingStoreWithCache returns a migrated store over the given cache store.
func NewTestingStoreWithCache(ctx context.Context, t *testing.T, cacheStore cache.Store) *store.Store {
	t.Helper()
	return newTestingStore(ctx, t, cacheStore)
}

func newTestingStore(ctx context.Context, t *testing.T, cacheStore cache.Store) *store.Store {
	t.Helper()
	testProfile := getTestingProfile(t)
	driver, err := db.NewDBDriver(testProfile)
	require.NoError(t, err)

	c := cache.New(cacheStore, cache.Config{DefaultTTL: testProfile.CacheDefaultTTL})
	s := store.New(driver, testProfile, c)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func getTestingProfile(t *testing.T) *profile.Profile {
	t.Helper()
	testProfile := &profile.Profile{
		Mode:            "dev",
		Driver:          "sqlite",
		Data:            t.TempDir(),
		Version:         "test",
		Secret:          "plaza-test",
		CacheDefaultTTL: time.Minute,
	}
	testProfile.DSN = filepath.Join(testProfile.Data, "plaza_test.db")

	if os.Getenv("PLAZA_TEST_DRIVER") == "postgres" {
		dsn := os.Getenv("POSTGRES_TEST_DSN")
		if dsn == "" {
			t.Skip("POSTGRES_TEST_DSN is not set")
		}
		testProfile.Driver = "postgres"
		testProfile.DSN = dsn
	}
	return testProfile
}
