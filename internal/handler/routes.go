package handler

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"responses-relay/internal/config"
	"responses-relay/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Every path
// not claimed by an operational endpoint reaches the relay.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, relay *RelayHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", relay.Handle)
	e.Use(relayUnroutedMethods(relay))
}

// relayUnroutedMethods hands requests whose method the router has no handler
// for (e.Any covers only the standard set) to the relay, which owns the 405.
func relayUnroutedMethods(relay *RelayHandler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if errors.Is(err, echo.ErrMethodNotAllowed) && !c.Response().Committed {
				c.Response().Header().Del(echo.HeaderAllow)
				return relay.Handle(c)
			}
			return err
		}
	}
}
