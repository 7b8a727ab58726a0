// Package auth issues and verifies the bearer access tokens of the API.
//
// A token is an HS256 JWT whose subject is the user id and whose "sid" claim
// names a session kept in the user's sessions hash. Revoking the session
// revokes the token even though the JWT itself is still unexpired.
package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// Issuer is the iss claim of every access token.
	Issuer = "plaza"
	// DefaultTokenTTL is the lifetime of an access token.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid access token")

// Claims are the claims of an access token.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID returns the user id held in the subject.
func (c *Claims) UserID() (int32, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 32)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(ErrInvalidToken, "bad subject %q", c.Subject)
	}
	return int32(id), nil
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return uuid.NewString()
}

// IssueToken signs an access token for userID bound to sessionID.
func IssueToken(secret string, userID int32, sessionID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := &Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(int64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}
	return signed, nil
}

// ParseToken verifies tokenString and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.SessionID == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing sid")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>" header value.
func ExtractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type contextKey int

const (
	userIDContextKey contextKey = iota
	sessionIDContextKey
)

// WithUser stores the authenticated user and session on ctx.
func WithUser(ctx context.Context, userID int32, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

// UserIDFromContext returns the authenticated user id, or 0 when anonymous.
func UserIDFromContext(ctx context.Context) int32 {
	id, _ := ctx.Value(userIDContextKey).(int32)
	return id
}

// SessionIDFromContext returns the session id of the request token.
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDContextKey).(string)
	return sid
}
