// Package user implements accounts and their login sessions.
package user

import (
	"context"
	"time"

	"github.com/hrygo/plaza/store"
)

// Service defines the user operations exposed to the API layer.
type Service interface {
	CreateUser(ctx context.Context, create *CreateUserRequest) (*store.User, error)
	GetUser(ctx context.Context, id int32) (*store.User, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	// UpdateUser changes the caller's own profile.
	UpdateUser(ctx context.Context, actorID, id int32, update *UpdateUserRequest) (*store.User, error)

	// IssueSession opens a session for the user and returns its access token.
	IssueSession(ctx context.Context, userID int32) (*Session, error)
	ListSessions(ctx context.Context, userID int32) ([]string, error)
	RevokeSession(ctx context.Context, userID int32, sessionID string) error
}

// Store is the interface for store operations needed by the user service.
type Store interface {
	CreateUser(ctx context.Context, create *store.User) (*store.User, error)
	GetUser(ctx context.Context, find *store.FindUser) (*store.User, error)
	UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error)

	AddUserSession(ctx context.Context, userID int32, sessionID string, ttl time.Duration) error
	ListUserSessions(ctx context.Context, userID int32) ([]string, error)
	RemoveUserSession(ctx context.Context, userID int32, sessionID string) error
}

// CreateUserRequest represents the request to register a user.
type CreateUserRequest struct {
	Username  string
	Email     string
	Nickname  string
	AvatarURL string
	Bio       string
}

// UpdateUserRequest carries the fields to change; nil fields are kept.
type UpdateUserRequest struct {
	Username  *string
	Email     *string
	Nickname  *string
	AvatarURL *string
	Bio       *string
}

// Session is an issued access token.
type Session struct {
	SessionID   string `json:"sessionId"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}
