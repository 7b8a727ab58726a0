package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/plaza/internal/profile"
	"github.com/hrygo/plaza/server"
)

func testingProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := &profile.Profile{
		Mode:    "dev",
		Addr:    "127.0.0.1",
		Driver:  "sqlite",
		Data:    t.TempDir(),
		Version: "test",
		Secret:  "plaza-test",
	}
	p.DSN = filepath.Join(p.Data, "plaza_test.db")
	p.FromEnv()
	return p
}

func health(t *testing.T, s *server.Server) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var env struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env.Data
}

func TestServerWithMemoryCache(t *testing.T) {
	ctx := context.Background()
	p := testingProfile(t)
	p.CacheDriver = "memory"

	registry := server.NewRegistry()
	st, err := server.OpenStore(ctx, p, registry)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	s, err := server.NewServer(ctx, p, st, registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	status, body := health(t, s)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServerWithRedis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisServer := miniredis.RunT(t)
	p := testingProfile(t)
	p.CacheDriver = "redis"
	p.PubSubDriver = "redis"
	p.CacheRedisAddr = redisServer.Addr()

	registry := server.NewRegistry()
	st, err := server.OpenStore(ctx, p, registry)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))

	s, err := server.NewServer(ctx, p, st, registry)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	status, body := health(t, s)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["cache"])

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader(`{"username":"ada","email":"ada@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The cache being down degrades the service without failing it.
	redisServer.Close()
	require.Eventually(t, func() bool {
		status, body := health(t, s)
		return status == http.StatusOK && body["status"] == "degraded" && body["cache"] == "down"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNewServerRequiresSecretInProd(t *testing.T) {
	ctx := context.Background()
	p := testingProfile(t)
	st, err := server.OpenStore(ctx, p, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p.Mode = "prod"
	p.Secret = ""
	_, err = server.NewServer(ctx, p, st, server.NewRegistry())
	require.Error(t, err)
}
