package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const healthTimeout = 2 * time.Second

// HealthResponse reports the state of each backing store.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
	Cache   string `json:"cache"`
}

// Healthz pings the record store and the cache store.
// A down cache degrades the service but does not fail the check.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Store: "ok", Cache: "ok"}
	if s.Profile != nil {
		resp.Version = s.Profile.Version
	}
	status := http.StatusOK
	if err := s.Store.Ping(ctx); err != nil {
		requestLog(c).Warn("record store ping failed", "error", err)
		resp.Status, resp.Store = "unavailable", "down"
		status = http.StatusServiceUnavailable
	}
	if err := s.Store.PingCache(ctx); err != nil {
		requestLog(c).Warn("cache ping failed", "error", err)
		resp.Cache = "down"
		if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}
	return respond(c, status, resp)
}
