package user

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/server/auth"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

// usernameMatcher allows 2 to 32 letters, digits, dashes and underscores,
// starting and ending with a letter or digit.
var usernameMatcher = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,30}[a-zA-Z0-9])$`)

const (
	maxNicknameLength = 64
	maxBioLength      = 500
)

type service struct {
	store    Store
	secret   string
	tokenTTL time.Duration
	now      func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithTokenTTL sets how long issued sessions live.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *service) { s.tokenTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new user service signing tokens with secret.
func NewService(st Store, secret string, opts ...Option) Service {
	s := &service{
		store:    st,
		secret:   secret,
		tokenTTL: auth.DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateUsername(username string) error {
	if !usernameMatcher.MatchString(username) {
		return apierrors.BadRequest("Username must be 2-32 letters, digits, dashes or underscores")
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apierrors.BadRequest("Invalid email address")
	}
	return nil
}

func validateProfile(nickname, bio *string) error {
	if nickname != nil && len(*nickname) > maxNicknameLength {
		return apierrors.BadRequest("Nickname is too long")
	}
	if bio != nil && len(*bio) > maxBioLength {
		return apierrors.BadRequest("Bio is too long")
	}
	return nil
}

func (s *service) CreateUser(ctx context.Context, create *CreateUserRequest) (*store.User, error) {
	username := strings.TrimSpace(create.Username)
	email := strings.ToLower(strings.TrimSpace(create.Email))
	nickname := strings.TrimSpace(create.Nickname)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateProfile(&nickname, &create.Bio); err != nil {
		return nil, err
	}
	if nickname == "" {
		nickname = username
	}

	user, err := s.store.CreateUser(ctx, &store.User{
		Username:  username,
		Email:     email,
		Nickname:  nickname,
		AvatarURL: strings.TrimSpace(create.AvatarURL),
		Bio:       create.Bio,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, apierrors.Conflict("Username or email is already taken")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) GetUser(ctx context.Context, id int32) (*store.User, error) {
	user, err := s.store.GetUser(ctx, &store.FindUser{ID: &id})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierrors.NotFound("user", id)
	}
	return user, nil
}

func (s *service) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	user, err := s.store.GetUser(ctx, &store.FindUser{Username: &username})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierrors.NotFound("user", username)
	}
	return user, nil
}

func (s *service) UpdateUser(ctx context.Context, actorID, id int32, update *UpdateUserRequest) (*store.User, error) {
	if actorID != id {
		return nil, apierrors.Forbidden("Users can only update their own profile")
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return nil, err
	}

	patch := &store.UpdateUser{
		ID:        id,
		Nickname:  update.Nickname,
		AvatarURL: update.AvatarURL,
		Bio:       update.Bio,
	}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		patch.Username = &username
	}
	if update.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*update.Email))
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		patch.Email = &email
	}
	if err := validateProfile(update.Nickname, update.Bio); err != nil {
		return nil, err
	}

	user, err := s.store.UpdateUser(ctx, patch)
	if errors.Is(err, store.ErrConflict) {
		return nil, apierrors.Conflict("Username or email is already taken")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) IssueSession(ctx context.Context, userID int32) (*Session, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	sessionID := auth.NewSessionID()
	// The session record must exist before the token is handed out.
	if err := s.store.AddUserSession(ctx, userID, sessionID, s.tokenTTL); err != nil {
		return nil, errors.Wrap(err, "failed to record session")
	}
	token, err := auth.IssueToken(s.secret, userID, sessionID, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &Session{
		SessionID:   sessionID,
		AccessToken: token,
		ExpiresAt:   s.now().Add(s.tokenTTL).Unix(),
	}, nil
}

func (s *service) ListSessions(ctx context.Context, userID int32) ([]string, error) {
	return s.store.ListUserSessions(ctx, userID)
}

func (s *service) RevokeSession(ctx context.Context, userID int32, sessionID string) error {
	if sessionID == "" {
		return apierrors.BadRequest("Session id is required")
	}
	return s.store.RemoveUserSession(ctx, userID, sessionID)
}
