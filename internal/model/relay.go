// Package model defines shared types for the relay.
package model

import (
	"net/http"
	"strings"
)

// Headers is a case-insensitive header map. Keys are stored lowercased.
type Headers map[string]string

// NewHeaders builds Headers from a plain map, folding key case. When two keys
// differ only in case the last one visited wins.
func NewHeaders(src map[string]string) Headers {
	h := make(Headers, len(src))
	for k, v := range src {
		h.Set(k, v)
	}
	return h
}

// HeadersFromHTTP builds Headers from an http.Header, keeping the first value
// of each field.
func HeadersFromHTTP(src http.Header) Headers {
	h := make(Headers, len(src))
	for k, vals := range src {
		if len(vals) > 0 {
			h.Set(k, vals[0])
		}
	}
	return h
}

// Get returns the value for key regardless of its case, or "" when absent.
func (h Headers) Get(key string) string {
	return h[strings.ToLower(key)]
}

// Set stores value under the lowercased key.
func (h Headers) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// InboundRequest is one call received by the relay.
type InboundRequest struct {
	Method  string
	Headers Headers
	Body    []byte // nil when the request carried no body
}

// OutboundResponse is what the relay answers with.
type OutboundResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// UpstreamResponse is the bridge's reply, body fully read.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BridgeSettings locate and authenticate the upstream bridge.
type BridgeSettings struct {
	BaseURL     string // trailing slashes already stripped
	DeployToken string
}

// ErrorBody is the JSON shape of every locally produced error.
type ErrorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
