package handler

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"responses-relay/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse is the body of /relay/status. The deploy token is never
// included.
type statusResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	BridgeURL  string `json:"bridge_url"`
	Configured bool   `json:"configured"`
}

// Status reports the build version and whether the bridge settings are
// complete.
func (h *HealthHandler) Status(c echo.Context) error {
	bridge, err := h.cfg.BridgeSettings()
	return c.JSON(http.StatusOK, statusResponse{
		Status:     "ok",
		Version:    string(h.version),
		BridgeURL:  redactUserinfo(bridge.BaseURL),
		Configured: err == nil,
	})
}

// redactUserinfo drops credentials embedded in a URL.
func redactUserinfo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
