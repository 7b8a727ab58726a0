package store

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/internal/profile"
	"github.com/hrygo/plaza/store/cache"
)

// Cache namespaces.
const (
	usersNamespace     = "users"
	sessionsNamespace  = "sessions"
	eventsNamespace    = "events"
	tagsNamespace      = "tags"
	mediaNamespace     = "media"
	threadsNamespace   = "threads"
	reactionsNamespace = "reactions"
)

// Composite facets, stored under "<namespace>:<parentID>:<facet>".
const (
	FacetTags         = "tags"
	FacetMedia        = "media"
	FacetParticipants = "participants"
	FacetVerifiers    = "verifiers"
	FacetReactions    = "reactions"
)

// Store provides database access to all raw objects.
// Reads of single entities go through the entity caches; every mutation
// updates the record store first and then invalidates what it changed.
type Store struct {
	profile *profile.Profile
	driver  Driver
	cache   *cache.Cache

	// Entity caches
	userCache      *cache.EntityCache[User]
	userByEmail    *cache.Index[User]
	userByUsername *cache.Index[User]
	sessionCache   *cache.KeyedCache

	eventCache        *cache.EntityCache[Event]
	eventTags         *cache.Composite[[]*Tag]
	eventMedia        *cache.Composite[[]*Media]
	eventParticipants *cache.Composite[[]*EventParticipant]
	eventVerifiers    *cache.Composite[[]*EventVerifier]
	eventReactions    *cache.Composite[[]*Reaction]

	tagCache  *cache.EntityCache[Tag]
	tagByName *cache.Index[Tag]

	mediaCache *cache.EntityCache[Media]

	threadCache     *cache.EntityCache[Thread]
	threadReactions *cache.Composite[[]*Reaction]

	reactionCache *cache.EntityCache[Reaction]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile, c *cache.Cache) *Store {
	var ttl time.Duration
	if profile != nil {
		ttl = profile.CacheDefaultTTL
	}

	s := &Store{
		driver:  driver,
		profile: profile,
		cache:   c,
	}

	s.userCache = cache.NewEntityCache[User](c.Namespace(usersNamespace, ttl))
	s.userByEmail = s.userCache.AddIndex("email", func(u *User) string { return u.Email })
	s.userByUsername = s.userCache.AddIndex("username", func(u *User) string { return u.Username })
	s.sessionCache = c.Namespace(sessionsNamespace, ttl)

	s.eventCache = cache.NewEntityCache[Event](c.Namespace(eventsNamespace, ttl))
	s.eventTags = cache.NewComposite[[]*Tag](s.eventCache, FacetTags)
	s.eventMedia = cache.NewComposite[[]*Media](s.eventCache, FacetMedia)
	s.eventParticipants = cache.NewComposite[[]*EventParticipant](s.eventCache, FacetParticipants)
	s.eventVerifiers = cache.NewComposite[[]*EventVerifier](s.eventCache, FacetVerifiers)
	s.eventReactions = cache.NewComposite[[]*Reaction](s.eventCache, FacetReactions)

	s.tagCache = cache.NewEntityCache[Tag](c.Namespace(tagsNamespace, ttl))
	s.tagByName = s.tagCache.AddIndex("name", func(t *Tag) string { return t.Name })

	s.mediaCache = cache.NewEntityCache[Media](c.Namespace(mediaNamespace, ttl))

	s.threadCache = cache.NewEntityCache[Thread](c.Namespace(threadsNamespace, ttl))
	s.threadReactions = cache.NewComposite[[]*Reaction](s.threadCache, FacetReactions)

	s.reactionCache = cache.NewEntityCache[Reaction](c.Namespace(reactionsNamespace, ttl))

	return s
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Cache returns the cache the store reads through.
func (s *Store) Cache() *cache.Cache {
	return s.cache
}

func (s *Store) Profile() *profile.Profile {
	return s.profile
}

// WithTx runs fn inside a record-store transaction. Store calls made with the
// ctx passed to fn join the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.driver.WithTx(ctx, fn)
}

// Ping checks the record store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.GetDB().PingContext(ctx); err != nil {
		return errors.Wrap(err, "record store unreachable")
	}
	return nil
}

// PingCache checks the cache store. Errors wrap cache.ErrUnavailable.
func (s *Store) PingCache(ctx context.Context) error {
	return s.cache.Store().Ping(ctx)
}

func (s *Store) Close() error {
	if err := s.cache.Store().Close(); err != nil {
		slog.Warn("failed to close cache store", "error", err)
	}
	return s.driver.Close()
}

func (s *Store) warnCache(namespace string, err error) {
	slog.Warn("cache unavailable", "namespace", namespace, "error", err)
}

func idKey(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}
