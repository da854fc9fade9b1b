// Package service implements the relay: preflight, validation and the single
// forward to the bridge's /v1/responses endpoint.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"responses-relay/internal/client"
	"responses-relay/internal/config"
	"responses-relay/internal/metrics"
	"responses-relay/internal/model"
)

// Error codes returned in the "error" field of local error responses.
const (
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInvalidJSON      = "invalid_json"
	CodeBridgeURLMissing = "openai_bridge_url_missing"
	CodeTokenMissing     = "deploy_token_missing"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = "X-Request-Id"

const (
	responsesPath   = "/v1/responses"
	jsonContentType = "application/json; charset=utf-8"
)

// preflightHeaders are sent on every OPTIONS response.
var preflightHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "POST,OPTIONS",
	"Access-Control-Allow-Headers": "authorization,content-type,x-request-id",
	"Cache-Control":                "no-store",
}

var errTrailingData = errors.New("unexpected data after JSON value")

// RelayService forwards validated requests to the bridge.
type RelayService struct {
	cfg     *config.Config
	client  *client.BridgeClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelayService creates a RelayService. The metrics parameter is optional.
func NewRelayService(cfg *config.Config, c *client.BridgeClient, logger *slog.Logger, m *metrics.Metrics) *RelayService {
	return &RelayService{
		cfg:     cfg,
		client:  c,
		logger:  logger.With("component", "relay_service"),
		metrics: m,
	}
}

// Handle answers one inbound request. Every outcome the relay decides locally
// is returned as a response with a nil error. A non-nil error means the bridge
// call itself failed; it wraps a *client.TransportError and the caller owns
// turning it into a failure response.
func (s *RelayService) Handle(ctx context.Context, req *model.InboundRequest) (*model.OutboundResponse, error) {
	if req.Method == http.MethodOptions {
		return preflight(), nil
	}
	if req.Method != http.MethodPost {
		return s.reject(http.StatusMethodNotAllowed, CodeMethodNotAllowed, true), nil
	}

	bridge, err := s.cfg.BridgeSettings()
	if err != nil {
		s.logger.Warn("bridge not configured", "err", err)
		code := CodeBridgeURLMissing
		if errors.Is(err, config.ErrDeployTokenMissing) {
			code = CodeTokenMissing
		}
		// Configuration errors carry no CORS origin header.
		return s.reject(http.StatusInternalServerError, code, false), nil
	}

	payload, err := normalizePayload(req.Body)
	if err != nil {
		s.logger.Debug("rejecting request body", "err", err)
		return s.reject(http.StatusBadRequest, CodeInvalidJSON, true), nil
	}

	requestID := req.Headers.Get(HeaderRequestID)

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+bridge.DeployToken)
	if requestID != "" {
		header.Set(HeaderRequestID, requestID)
	}

	s.logger.Debug("forwarding request",
		"request_id", requestID,
		"bytes", len(payload),
	)

	upstream, err := s.client.Post(ctx, bridge.BaseURL+responsesPath, header, payload)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}

	contentType := upstream.Header.Get("Content-Type")
	if contentType == "" {
		contentType = jsonContentType
	}

	out := make(http.Header)
	out.Set("Content-Type", contentType)
	out.Set("Cache-Control", "no-store")
	out.Set("Access-Control-Allow-Origin", "*")

	return &model.OutboundResponse{
		StatusCode: upstream.StatusCode,
		Header:     out,
		Body:       upstream.Body,
	}, nil
}

func preflight() *model.OutboundResponse {
	h := make(http.Header, len(preflightHeaders))
	for k, v := range preflightHeaders {
		h.Set(k, v)
	}
	return &model.OutboundResponse{
		StatusCode: http.StatusNoContent,
		Header:     h,
		Body:       []byte{},
	}
}

// reject builds a {"ok":false,"error":code} response.
func (s *RelayService) reject(status int, code string, cors bool) *model.OutboundResponse {
	if s.metrics != nil {
		s.metrics.Rejections.WithLabelValues(code).Inc()
	}

	// Marshaling a struct of a bool and a string cannot fail.
	body, _ := json.Marshal(model.ErrorBody{OK: false, Error: code})

	h := make(http.Header)
	h.Set("Content-Type", jsonContentType)
	h.Set("Cache-Control", "no-store")
	if cors {
		h.Set("Access-Control-Allow-Origin", "*")
	}

	return &model.OutboundResponse{StatusCode: status, Header: h, Body: body}
}

// normalizePayload parses raw as a single JSON value and re-serializes it
// compactly. An absent or empty body becomes {}. Numbers keep their literal
// text; object keys come out sorted.
func normalizePayload(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("{}"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
