package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hrygo/plaza/server/auth"
	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store/cache"
)

type fakeSessions struct {
	live map[string]bool
	err  error
}

func (f *fakeSessions) HasUserSession(_ context.Context, userID int32, sessionID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.live[strconv.Itoa(int(userID))+"/"+sessionID], nil
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if coded, ok := apierrors.As(err); ok {
			_ = c.String(coded.HTTPStatus(), string(coded.Code))
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
	return e
}

func serve(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	sessions := &fakeSessions{live: map[string]bool{"7/live": true}}
	e := newTestEcho()
	e.Use(Authenticate(sessions, "secret"))
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, strconv.Itoa(int(auth.UserIDFromContext(c.Request().Context()))))
	}, RequireUser)

	liveToken, err := auth.IssueToken("secret", 7, "live", time.Hour)
	require.NoError(t, err)
	revokedToken, err := auth.IssueToken("secret", 7, "gone", time.Hour)
	require.NoError(t, err)

	t.Run("live session", func(t *testing.T) {
		rec := serve(e, liveToken)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "7", rec.Body.String())
	})
	t.Run("anonymous", func(t *testing.T) {
		rec := serve(e, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("revoked session", func(t *testing.T) {
		rec := serve(e, revokedToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("bad token", func(t *testing.T) {
		rec := serve(e, "garbage")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("non-numeric subject", func(t *testing.T) {
		claims := &auth.Claims{
			SessionID: "live",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    auth.Issuer,
				Subject:   "ada",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		rec := serve(e, token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(apierrors.ErrCodeUnauthorized), rec.Body.String())
	})
}

func TestAuthenticateFailsOpenWhenCacheUnavailable(t *testing.T) {
	sessions := &fakeSessions{err: errors.Wrap(cache.ErrUnavailable, "connection refused")}
	e := newTestEcho()
	e.Use(Authenticate(sessions, "secret"))
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, strconv.Itoa(int(auth.UserIDFromContext(c.Request().Context()))))
	})

	token, err := auth.IssueToken("secret", 9, "any", time.Hour)
	require.NoError(t, err)
	rec := serve(e, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Rate: rate.Every(time.Hour), Burst: 2})
	e := newTestEcho()
	e.Use(RateLimit(rl, func(echo.Context) string { return "client" }))
	e.GET("/whoami", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(e, "").Code)
	assert.Equal(t, http.StatusNoContent, serve(e, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, "").Code)
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{IdleTTL: time.Millisecond})
	assert.True(t, rl.Allow("a"))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 0, rl.Sweep())
}
