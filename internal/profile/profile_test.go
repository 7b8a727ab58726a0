package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearPlazaEnvVars(t *testing.T) {
	for _, key := range []string{
		"PLAZA_LOG_LEVEL",
		"PLAZA_LOG_FORMAT",
		"PLAZA_SECRET",
		"PLAZA_CACHE_DRIVER",
		"PLAZA_CACHE_REDIS_ADDR",
		"PLAZA_CACHE_REDIS_PASSWORD",
		"PLAZA_CACHE_REDIS_DB",
		"PLAZA_CACHE_PREFIX",
		"PLAZA_CACHE_TTL",
		"PLAZA_CACHE_MAX_ITEMS",
		"PLAZA_CACHE_RESOLVER_TIMEOUT",
		"PLAZA_PUBSUB_DRIVER",
		"PLAZA_VERIFY_QUORUM",
	} {
		t.Setenv(key, "")
	}
}

func TestProfileDefaults(t *testing.T) {
	clearPlazaEnvVars(t)

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, "info", profile.LogLevel)
	assert.Equal(t, "text", profile.LogFormat)
	assert.Equal(t, "memory", profile.CacheDriver)
	assert.Equal(t, "localhost:6379", profile.CacheRedisAddr)
	assert.Equal(t, "plaza:", profile.CacheKeyPrefix)
	assert.Equal(t, 10*time.Minute, profile.CacheDefaultTTL)
	assert.Equal(t, 10000, profile.CacheMaxItems)
	assert.Equal(t, 2*time.Second, profile.CacheResolverTimeout)
	assert.Equal(t, "memory", profile.PubSubDriver)
	assert.Equal(t, 3, profile.VerifyQuorum)
	assert.Equal(t, 50.0, profile.VerifyRadiusMeters)
	assert.False(t, profile.IsRedisCache())
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) any
		expected any
	}{
		{
			name:     "cache driver",
			envVar:   "PLAZA_CACHE_DRIVER",
			envValue: "redis",
			field:    func(p *Profile) any { return p.CacheDriver },
			expected: "redis",
		},
		{
			name:     "redis db",
			envVar:   "PLAZA_CACHE_REDIS_DB",
			envValue: "4",
			field:    func(p *Profile) any { return p.CacheRedisDB },
			expected: 4,
		},
		{
			name:     "cache ttl",
			envVar:   "PLAZA_CACHE_TTL",
			envValue: "90s",
			field:    func(p *Profile) any { return p.CacheDefaultTTL },
			expected: 90 * time.Second,
		},
		{
			name:     "invalid ttl falls back",
			envVar:   "PLAZA_CACHE_TTL",
			envValue: "soon",
			field:    func(p *Profile) any { return p.CacheDefaultTTL },
			expected: 10 * time.Minute,
		},
		{
			name:     "resolver timeout",
			envVar:   "PLAZA_CACHE_RESOLVER_TIMEOUT",
			envValue: "500ms",
			field:    func(p *Profile) any { return p.CacheResolverTimeout },
			expected: 500 * time.Millisecond,
		},
		{
			name:     "verify quorum",
			envVar:   "PLAZA_VERIFY_QUORUM",
			envValue: "5",
			field:    func(p *Profile) any { return p.VerifyQuorum },
			expected: 5,
		},
		{
			name:     "invalid quorum falls back",
			envVar:   "PLAZA_VERIFY_QUORUM",
			envValue: "many",
			field:    func(p *Profile) any { return p.VerifyQuorum },
			expected: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearPlazaEnvVars(t)
			t.Setenv(tt.envVar, tt.envValue)

			profile := &Profile{}
			profile.FromEnv()
			assert.Equal(t, tt.expected, tt.field(profile))
		})
	}
}

func TestProfileFromEnvKeepsExplicitValues(t *testing.T) {
	clearPlazaEnvVars(t)
	t.Setenv("PLAZA_CACHE_DRIVER", "redis")

	profile := &Profile{CacheDriver: "memory", VerifyQuorum: 1}
	profile.FromEnv()

	assert.Equal(t, "memory", profile.CacheDriver)
	assert.Equal(t, 1, profile.VerifyQuorum)
}

func TestProfileValidate(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		profile := &Profile{Mode: "dev", Driver: "mysql", CacheDriver: "memory"}
		require.Error(t, profile.Validate())
	})

	t.Run("unknown cache driver", func(t *testing.T) {
		profile := &Profile{Mode: "dev", Driver: "postgres", CacheDriver: "memcached"}
		require.Error(t, profile.Validate())
	})

	t.Run("prod requires secret", func(t *testing.T) {
		profile := &Profile{Mode: "prod", Driver: "postgres", CacheDriver: "memory"}
		require.Error(t, profile.Validate())
	})

	t.Run("unknown mode becomes demo", func(t *testing.T) {
		profile := &Profile{Mode: "staging", Driver: "postgres", CacheDriver: "memory"}
		require.NoError(t, profile.Validate())
		assert.Equal(t, "demo", profile.Mode)
		assert.Equal(t, "plaza-demo", profile.Secret)
	})

	t.Run("sqlite dsn from data dir", func(t *testing.T) {
		dir := t.TempDir()
		profile := &Profile{Mode: "dev", Driver: "sqlite", CacheDriver: "memory", Data: dir}
		require.NoError(t, profile.Validate())
		assert.Contains(t, profile.DSN, "plaza_dev.db")
		assert.True(t, profile.IsDev())
	})
}
