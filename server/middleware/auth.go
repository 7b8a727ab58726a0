package middleware

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/plaza/server/auth"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/server/internal/observability"
	"github.com/hrygo/plaza/store/cache"
)

// SessionChecker reports whether a session is still live.
type SessionChecker interface {
	HasUserSession(ctx context.Context, userID int32, sessionID string) (bool, error)
}

// Authenticate resolves the bearer token, if any, into the request user.
// Requests without a token continue anonymously; a bad or revoked token is
// rejected. When the session store is unreachable the token alone is trusted.
func Authenticate(sessions SessionChecker, secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.ExtractBearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return next(c)
			}
			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				return apierrors.Unauthorized("Invalid access token")
			}
			userID, err := claims.UserID()
			if err != nil {
				return apierrors.Unauthorized("Invalid access token")
			}

			ctx := c.Request().Context()
			live, err := sessions.HasUserSession(ctx, userID, claims.SessionID)
			switch {
			case errors.Is(err, cache.ErrUnavailable):
				slog.Warn("session store unavailable, trusting token", "user_id", userID, "error", err)
			case err != nil:
				return apierrors.Internal(err)
			case !live:
				return apierrors.Unauthorized("Session has been revoked")
			}

			ctx = auth.WithUser(ctx, userID, claims.SessionID)
			if reqCtx, ok := observability.FromContext(ctx); ok {
				reqCtx.UserID = userID
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireUser rejects anonymous requests.
func RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if auth.UserIDFromContext(c.Request().Context()) == 0 {
			return apierrors.Unauthorized("Authentication required")
		}
		return next(c)
	}
}
