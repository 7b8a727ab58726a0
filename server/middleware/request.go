package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/server/internal/observability"
)

// RequestContext attaches an observability.RequestContext to every request,
// echoes its id in X-Request-ID, records HTTP metrics and logs completion.
func RequestContext(logger *slog.Logger, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			reqCtx := observability.NewRequestContextWithID(logger, req.Header.Get(echo.HeaderXRequestID), route)
			c.Response().Header().Set(echo.HeaderXRequestID, reqCtx.RequestID)
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))

			done := metrics.Begin()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status below is final.
				c.Error(err)
			}

			status := c.Response().Status
			done(req.Method, route, status, reqCtx.Duration())
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.Int(observability.LogFieldStatus, status),
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
			}
			if err != nil {
				code := apierrors.From(err).Code
				metrics.RecordFailure(route, string(code))
				attrs = append(attrs, slog.String(observability.LogFieldErrorCode, string(code)))
				if status >= 500 {
					reqCtx.Error("request failed", err, attrs...)
					return nil
				}
			}
			reqCtx.Info("request completed", attrs...)
			return nil
		}
	}
}
