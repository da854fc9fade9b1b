// Package client provides the upstream HTTP client for the bridge.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"responses-relay/internal/config"
	"responses-relay/internal/metrics"
	"responses-relay/internal/model"
)

// TransportError reports a bridge call that produced no usable response:
// dial, TLS, timeout, cancellation or a body that could not be read.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge request to %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BridgeClient sends requests to the upstream bridge.
type BridgeClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBridgeClient creates a BridgeClient with connection pooling. The client
// timeout is upstream.timeout_seconds; zero means none.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewBridgeClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BridgeClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BridgeClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "bridge_client"),
		metrics: m,
	}
}

// Do executes req and reads the whole response body. Any failure, including
// one while reading the body, is returned as a *TransportError.
func (c *BridgeClient) Do(req *http.Request) (*model.UpstreamResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	method := metrics.NormalizeMethod(req.Method)
	if err != nil {
		c.observe(method, time.Since(start).Seconds(), "")
		return nil, &TransportError{URL: req.URL.String(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	c.observe(method, time.Since(start).Seconds(), strconv.Itoa(resp.StatusCode))
	if err != nil {
		return nil, &TransportError{URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Post sends body to url. The context controls the lifetime of the call: when
// it is canceled (e.g. the client disconnects) the bridge request is abandoned.
func (c *BridgeClient) Post(ctx context.Context, url string, header http.Header, body []byte) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	return c.Do(req)
}

// observe records call latency and, when a response arrived, its status.
func (c *BridgeClient) observe(method string, seconds float64, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(seconds)
	if status != "" {
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}
}
