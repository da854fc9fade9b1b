package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"responses-relay/internal/model"
)

// CodeRateLimited is the error code sent when a caller exceeds its rate.
const CodeRateLimited = "rate_limited"

// RateLimiter returns a per-IP in-memory rate limiter. Denied requests get the
// relay's {"ok":false,"error":...} body so callers see one error shape.
func RateLimiter(requestsPerSecond float64) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(requestsPerSecond))

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return deny(c, http.StatusForbidden, "identifier_unavailable")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return deny(c, http.StatusTooManyRequests, CodeRateLimited)
		},
	})
}

func deny(c echo.Context, status int, code string) error {
	h := c.Response().Header()
	h.Set("Cache-Control", "no-store")
	h.Set("Access-Control-Allow-Origin", "*")
	return c.JSON(status, model.ErrorBody{OK: false, Error: code})
}
