package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where plaza stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the url of your plaza instance.
	InstanceURL string
	// Secret signs access tokens.
	Secret string

	// Logging
	LogLevel  string // PLAZA_LOG_LEVEL (default: info)
	LogFormat string // PLAZA_LOG_FORMAT (default: text)

	// Cache configuration
	CacheDriver          string        // PLAZA_CACHE_DRIVER: memory or redis (default: memory)
	CacheRedisAddr       string        // PLAZA_CACHE_REDIS_ADDR (default: localhost:6379)
	CacheRedisPassword   string        // PLAZA_CACHE_REDIS_PASSWORD
	CacheRedisDB         int           // PLAZA_CACHE_REDIS_DB (default: 0)
	CacheKeyPrefix       string        // PLAZA_CACHE_PREFIX (default: plaza:)
	CacheDefaultTTL      time.Duration // PLAZA_CACHE_TTL (default: 10m)
	CacheMaxItems        int           // PLAZA_CACHE_MAX_ITEMS (default: 10000)
	CacheResolverTimeout time.Duration // PLAZA_CACHE_RESOLVER_TIMEOUT (default: 2s)

	// PubSubDriver selects the notification fan-out: memory or redis (default: memory).
	PubSubDriver string

	// VerifyQuorum is the number of on-site verifications that move a draft event to verified.
	VerifyQuorum int
	// VerifyRadiusMeters is the maximum distance from the event for a verification.
	VerifyRadiusMeters float64
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsRedisCache returns true if the cache layer should use redis.
func (p *Profile) IsRedisCache() bool {
	return p.CacheDriver == "redis"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer env, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return n
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration env, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return d
}

// FromEnv loads the cache, pubsub and logging configuration from PLAZA_* environment variables.
// Fields that are already set (e.g. from flags) are kept.
func (p *Profile) FromEnv() {
	setString := func(field *string, key, defaultValue string) {
		if *field == "" {
			*field = getEnvOrDefault(key, defaultValue)
		}
	}

	setString(&p.LogLevel, "PLAZA_LOG_LEVEL", "info")
	setString(&p.LogFormat, "PLAZA_LOG_FORMAT", "text")
	setString(&p.Secret, "PLAZA_SECRET", "")

	setString(&p.CacheDriver, "PLAZA_CACHE_DRIVER", "memory")
	setString(&p.CacheRedisAddr, "PLAZA_CACHE_REDIS_ADDR", "localhost:6379")
	setString(&p.CacheRedisPassword, "PLAZA_CACHE_REDIS_PASSWORD", "")
	setString(&p.CacheKeyPrefix, "PLAZA_CACHE_PREFIX", "plaza:")
	setString(&p.PubSubDriver, "PLAZA_PUBSUB_DRIVER", "memory")

	if p.CacheRedisDB == 0 {
		p.CacheRedisDB = getIntEnvOrDefault("PLAZA_CACHE_REDIS_DB", 0)
	}
	if p.CacheMaxItems == 0 {
		p.CacheMaxItems = getIntEnvOrDefault("PLAZA_CACHE_MAX_ITEMS", 10000)
	}
	if p.CacheDefaultTTL == 0 {
		p.CacheDefaultTTL = getDurationEnvOrDefault("PLAZA_CACHE_TTL", 10*time.Minute)
	}
	if p.CacheResolverTimeout == 0 {
		p.CacheResolverTimeout = getDurationEnvOrDefault("PLAZA_CACHE_RESOLVER_TIMEOUT", 2*time.Second)
	}
	if p.VerifyQuorum == 0 {
		p.VerifyQuorum = getIntEnvOrDefault("PLAZA_VERIFY_QUORUM", 3)
	}
	if p.VerifyRadiusMeters == 0 {
		p.VerifyRadiusMeters = 50
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only sqlite and postgres are supported", p.Driver)
	}
	if p.CacheDriver != "memory" && p.CacheDriver != "redis" {
		return errors.Errorf("unsupported cache driver %q", p.CacheDriver)
	}
	if p.Mode == "prod" && p.Secret == "" {
		return errors.New("secret is required in prod mode")
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "plaza")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/plaza"
		}
	}

	// Postgres does not need a data directory.
	if p.Driver == "sqlite" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			dbFile := fmt.Sprintf("plaza_%s.db", p.Mode)
			p.DSN = filepath.Join(dataDir, dbFile)
		}
	}
	if p.Secret == "" {
		// Dev and demo instances get a fixed secret so tokens survive restarts.
		p.Secret = "plaza-" + p.Mode
	}

	return nil
}
