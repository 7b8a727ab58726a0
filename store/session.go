package store

import (
	"context"
	"sort"
	"strconv"
	"time"
)

// Sessions live only in the cache: one hash per user, one field per session id,
// each field expiring on its own.

// AddUserSession records sessionID for userID until ttl elapses.
func (s *Store) AddUserSession(ctx context.Context, userID int32, sessionID string, ttl time.Duration) error {
	expiresAt := strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)
	return s.sessionCache.HashSet(ctx, idKey(userID), sessionID, []byte(expiresAt), ttl)
}

// ListUserSessions returns the live session ids of userID, sorted.
// Errors wrap cache.ErrUnavailable.
func (s *Store) ListUserSessions(ctx context.Context, userID int32) ([]string, error) {
	fields, err := s.sessionCache.HashGet(ctx, idKey(userID))
	if err != nil {
		return nil, err
	}
	sessions := make([]string, 0, len(fields))
	for sessionID := range fields {
		sessions = append(sessions, sessionID)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// HasUserSession reports whether sessionID is live for userID.
func (s *Store) HasUserSession(ctx context.Context, userID int32, sessionID string) (bool, error) {
	fields, err := s.sessionCache.HashGet(ctx, idKey(userID))
	if err != nil {
		return false, err
	}
	_, ok := fields[sessionID]
	return ok, nil
}

// RemoveUserSession revokes one session.
func (s *Store) RemoveUserSession(ctx context.Context, userID int32, sessionID string) error {
	return s.sessionCache.HashDelete(ctx, idKey(userID), sessionID)
}
