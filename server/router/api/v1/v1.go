// Package v1 serves the JSON API under /api/v1.
//
// Every response is an envelope {data, error} with exactly one of the two set.
package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/plaza/internal/populate"
	"github.com/hrygo/plaza/internal/profile"
	"github.com/hrygo/plaza/plugin/pubsub"
	"github.com/hrygo/plaza/server/internal/observability"
	"github.com/hrygo/plaza/server/middleware"
	"github.com/hrygo/plaza/server/service/event"
	"github.com/hrygo/plaza/server/service/search"
	"github.com/hrygo/plaza/server/service/thread"
	"github.com/hrygo/plaza/server/service/user"
	"github.com/hrygo/plaza/store"
)

type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	EventService  event.Service
	ThreadService thread.Service
	UserService   user.Service
	SearchService *search.Service
}

func NewAPIV1Service(secret string, profile *profile.Profile, store *store.Store, publisher pubsub.Publisher) *APIV1Service {
	populateConfig := populate.Config{ResolverTimeout: profile.CacheResolverTimeout}
	return &APIV1Service{
		Secret:  secret,
		Profile: profile,
		Store:   store,
		EventService: event.NewService(store, publisher, event.Config{
			VerifyRadiusMeters: profile.VerifyRadiusMeters,
			VerifyQuorum:       profile.VerifyQuorum,
			Populate:           populateConfig,
		}),
		ThreadService: thread.NewService(store, publisher, populateConfig),
		UserService:   user.NewService(store, secret),
		SearchService: search.NewService(store),
	}
}

// RegisterRoutes mounts the API, the health check and the metrics endpoint.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo, limiter *middleware.RateLimiter, metrics http.Handler) {
	e.Validator = NewValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	e.GET("/healthz", s.Healthz)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	api := e.Group("/api/v1", middleware.Authenticate(s.Store, s.Secret))
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter, middleware.ClientKey))
	}
	authed := middleware.RequireUser

	api.GET("/events", s.ListEvents)
	api.POST("/events", s.CreateEvent, authed)
	api.GET("/events/:id", s.GetEvent)
	api.PATCH("/events/:id", s.UpdateEvent, authed)
	api.DELETE("/events/:id", s.DeleteEvent, authed)
	api.POST("/events/:id/tags", s.AddEventTag, authed)
	api.DELETE("/events/:id/tags/:tagId", s.RemoveEventTag, authed)
	api.POST("/events/:id/media", s.AddEventMedia, authed)
	api.DELETE("/events/:id/media/:mediaId", s.RemoveEventMedia, authed)
	api.POST("/events/:id/participants", s.JoinEvent, authed)
	api.DELETE("/events/:id/participants", s.LeaveEvent, authed)
	api.POST("/events/:id/verify", s.VerifyEvent, authed)

	api.POST("/users", s.CreateUser)
	api.GET("/users/:id", s.GetUser)
	api.PATCH("/users/:id", s.UpdateUser, authed)
	api.GET("/users/by-username/:username", s.GetUserByUsername)
	api.DELETE("/sessions/current", s.RevokeCurrentSession, authed)

	api.GET("/threads", s.ListThreads)
	api.POST("/threads", s.CreateThread, authed)
	api.GET("/threads/:id", s.GetThread)
	api.POST("/threads/:id/lock", s.LockThread, authed)
	api.POST("/threads/:id/unlock", s.UnlockThread, authed)
	api.GET("/threads/:id/messages", s.ListMessages)
	api.POST("/threads/:id/messages", s.PostMessage, authed)
	api.POST("/reactions", s.CreateReaction, authed)
	api.DELETE("/reactions/:id", s.DeleteReaction, authed)

	api.GET("/search", s.Search)
}

// pathID parses a positive int32 path parameter.
func pathID(c echo.Context, name string) (int32, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil || id <= 0 {
		return 0, badRequest("Invalid " + name)
	}
	return int32(id), nil
}

// queryID parses an optional positive int32 query parameter.
func queryID(c echo.Context, name string) (*int32, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return nil, badRequest("Invalid " + name)
	}
	v := int32(id)
	return &v, nil
}

func requestLog(c echo.Context) *slog.Logger {
	return observability.Logger(c.Request().Context())
}
