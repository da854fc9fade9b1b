package model

import (
	"net/http"
	"testing"
)

func TestHeaders_CaseInsensitive(t *testing.T) {
	h := NewHeaders(map[string]string{"X-Request-Id": "abc123"})

	for _, key := range []string{"x-request-id", "X-Request-Id", "X-REQUEST-ID"} {
		if got := h.Get(key); got != "abc123" {
			t.Errorf("Get(%q) = %q, want %q", key, got, "abc123")
		}
	}
	if got := h.Get("authorization"); got != "" {
		t.Errorf("Get(authorization) = %q, want empty", got)
	}
}

func TestHeadersFromHTTP(t *testing.T) {
	src := http.Header{}
	src.Add("X-Request-Id", "first")
	src.Add("X-Request-Id", "second")
	src.Set("Content-Type", "application/json")

	h := HeadersFromHTTP(src)

	if got := h.Get("x-request-id"); got != "first" {
		t.Errorf("x-request-id = %q, want %q", got, "first")
	}
	if got := h.Get("content-type"); got != "application/json" {
		t.Errorf("content-type = %q, want %q", got, "application/json")
	}
	if _, ok := h["X-Request-Id"]; ok {
		t.Error("expected keys to be stored lowercased")
	}
}
