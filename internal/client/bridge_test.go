package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"responses-relay/internal/config"
	"responses-relay/internal/metrics"
)

func newTestClient(timeoutSeconds int, m *metrics.Metrics) *BridgeClient {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  timeoutSeconds,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBridgeClient(cfg, logger, m)
}

func TestBridgeClient_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"a":1}` {
			t.Errorf("body = %q, want %q", body, `{"a":1}`)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(10, nil)
	header := http.Header{}
	header.Set("Authorization", "Bearer tok")

	resp, err := c.Post(context.Background(), srv.URL+"/v1/responses", header, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if string(resp.Body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", resp.Body, `{"status":"ok"}`)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}
}

func TestBridgeClient_Post_Error(t *testing.T) {
	c := newTestClient(1, nil)

	_, err := c.Post(context.Background(), "http://127.0.0.1:1/v1/responses", http.Header{}, nil)
	if err == nil {
		t.Fatal("Post() expected error for unreachable host, got nil")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T, want *TransportError", err)
	}
	if te.URL != "http://127.0.0.1:1/v1/responses" {
		t.Errorf("URL = %q, want the bridge URL", te.URL)
	}
}

func TestBridgeClient_Post_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(30, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Post(ctx, srv.URL+"/v1/responses", http.Header{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Post() error = %v, want context.Canceled", err)
	}
}

func TestBridgeClient_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(10, m)

	if _, err := c.Post(context.Background(), srv.URL, http.Header{}, nil); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if got := testutil.ToFloat64(m.UpstreamResponses.WithLabelValues("POST", "429")); got != 1 {
		t.Errorf("upstream responses{POST,429} = %v, want 1", got)
	}
}

func TestNewBridgeClient_Timeout(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{"unset means no client timeout", 0, 0},
		{"configured", 5, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(tt.seconds, nil)
			if c.httpClient.Timeout != tt.want {
				t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, tt.want)
			}
		})
	}
}
