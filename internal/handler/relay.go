package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"

	"responses-relay/internal/model"
	"responses-relay/internal/service"
)

// RelayHandler adapts RelayService to echo.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle reads the inbound request, runs the relay and writes its response.
// Bridge transport failures are returned to echo's error handler.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	// BodyLimit wraps the body; exceeding it surfaces here as a 413 HTTPError.
	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "could not read request body").SetInternal(err)
	}

	in := &model.InboundRequest{
		Method:  req.Method,
		Headers: model.HeadersFromHTTP(req.Header),
		Body:    body,
	}

	resp, err := h.service.Handle(req.Context(), in)
	if err != nil {
		return h.mapError(c, err)
	}

	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}
	c.Response().WriteHeader(resp.StatusCode)

	if len(resp.Body) == 0 {
		return nil
	}
	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"path", req.URL.Path,
		)
	}
	return nil
}

// mapError turns a failed bridge call into an echo.HTTPError. Nothing is
// written here: echo's central error handler renders the failure.
func (h *RelayHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("relay error",
		"err", err,
		"path", c.Request().URL.Path,
		"request_id", c.Request().Header.Get(service.HeaderRequestID),
	)

	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "upstream request timed out").SetInternal(err)
	}

	if errors.Is(err, context.Canceled) {
		return echo.NewHTTPError(http.StatusBadGateway, "client disconnected").SetInternal(err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream host unreachable").SetInternal(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "upstream request timed out").SetInternal(err)
	}

	return echo.NewHTTPError(http.StatusBadGateway, "upstream request failed").SetInternal(err)
}
