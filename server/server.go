package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hrygo/plaza/internal/profile"
	"github.com/hrygo/plaza/plugin/pubsub"
	apiv1 "github.com/hrygo/plaza/server/router/api/v1"
	"github.com/hrygo/plaza/server/internal/observability"
	"github.com/hrygo/plaza/server/middleware"
	"github.com/hrygo/plaza/store"
	"github.com/hrygo/plaza/store/cache"
	"github.com/hrygo/plaza/store/db"
)

const (
	rateLimitSweepInterval = time.Minute
	shutdownTimeout        = 10 * time.Second
)

type Server struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	registry   *prometheus.Registry
	bus        *pubsub.Bus
	relay      *pubsub.RedisPublisher
	limiter    *middleware.RateLimiter

	runnerCancelFuncs []context.CancelFunc
}

// NewRegistry returns a metrics registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewLogger builds the process logger from the profile's level and format.
func NewLogger(profile *profile.Profile, w io.Writer) *slog.Logger {
	return observability.NewLogger(profile.LogLevel, profile.LogFormat, w)
}

// OpenStore connects the record store and the cache store described by profile.
// It does not migrate.
func OpenStore(ctx context.Context, profile *profile.Profile, registry prometheus.Registerer) (*store.Store, error) {
	cacheStore, err := newCacheStore(ctx, profile)
	if err != nil {
		return nil, err
	}
	driver, err := db.NewDBDriver(profile)
	if err != nil {
		_ = cacheStore.Close()
		return nil, err
	}
	config := cache.Config{DefaultTTL: profile.CacheDefaultTTL}
	if registry != nil {
		config.Metrics = cache.NewMetrics(registry)
	}
	return store.New(driver, profile, cache.New(cacheStore, config)), nil
}

func newCacheStore(ctx context.Context, profile *profile.Profile) (cache.Store, error) {
	if !profile.IsRedisCache() {
		config := cache.DefaultMemoryConfig()
		if profile.CacheMaxItems > 0 {
			config.MaxItems = profile.CacheMaxItems
		}
		return cache.NewMemoryStore(config)
	}

	config := cache.DefaultRedisConfig()
	config.Addr = profile.CacheRedisAddr
	config.Password = profile.CacheRedisPassword
	config.DB = profile.CacheRedisDB
	if profile.CacheKeyPrefix != "" {
		config.KeyPrefix = profile.CacheKeyPrefix
	}
	redisStore, err := cache.NewRedisStore(ctx, config)
	if err != nil {
		return nil, err
	}
	// A failing redis is skipped quickly instead of timing out on every request.
	return cache.NewBreakerStore(redisStore, cache.DefaultBreakerConfig()), nil
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, registry *prometheus.Registry) (*Server, error) {
	s := &Server{
		Secret:   profile.Secret,
		Profile:  profile,
		Store:    store,
		registry: registry,
		bus:      pubsub.NewBus(),
		limiter:  middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}
	if s.Secret == "" {
		if !profile.IsDev() {
			return nil, errors.New("secret is required")
		}
		s.Secret = "plaza-dev-secret"
		slog.Warn("no secret configured, using the development secret")
	}

	s.bus.Subscribe(pubsub.Wildcard, func(_ context.Context, msg *pubsub.Message) {
		slog.Debug("broadcast", "event", msg.Event, "size", len(msg.Payload))
	})
	var publisher pubsub.Publisher = s.bus
	if profile.PubSubDriver == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     profile.CacheRedisAddr,
			Password: profile.CacheRedisPassword,
			DB:       profile.CacheRedisDB,
		})
		s.relay = pubsub.NewRedisPublisher(client, pubsub.DefaultChannelPrefix)
		publisher = s.relay
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomw.Recover())
	echoServer.Use(middleware.RequestContext(slog.Default(), observability.NewMetrics(registry)))
	echoServer.Use(echomw.CORS())
	s.echoServer = echoServer

	apiV1Service := apiv1.NewAPIV1Service(s.Secret, profile, store, publisher)
	apiV1Service.RegisterRoutes(echoServer, s.limiter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	if s.relay != nil {
		if err := s.relay.Relay(ctx, s.bus); err != nil {
			return errors.Wrap(err, "failed to start pubsub relay")
		}
	}
	s.StartBackgroundRunners(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")
	for _, cancelFunc := range s.runnerCancelFuncs {
		if cancelFunc != nil {
			cancelFunc()
		}
	}
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("server stopped properly")
}

func (s *Server) StartBackgroundRunners(ctx context.Context) {
	limiterCtx, limiterCancel := context.WithCancel(ctx)
	s.runnerCancelFuncs = append(s.runnerCancelFuncs, limiterCancel)
	go s.limiter.Run(limiterCtx, rateLimitSweepInterval)
}

// Handler exposes the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}
