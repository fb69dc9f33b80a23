package httpclient

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/observastack/loadpanel/internal/driver"
)

func TestBuildRequestWithHeaders(t *testing.T) {
	headers, err := NormalizeHeaders(map[string]string{
		"content-type": "application/json",
		"X-Trace-Id":   "12345",
	})
	if err != nil {
		t.Fatalf("NormalizeHeaders() error = %v", err)
	}
	r := driver.Request{
		URL:     "http://example.com/api",
		Method:  "post",
		Headers: headers,
		Body:    []byte(`{"hello":"world"}`),
	}

	req, err := BuildRequest(context.Background(), r)
	if err != nil {
		t.Fatalf("expected request, got error: %v", err)
	}
	if req.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %s", req.Method)
	}
	if req.URL.String() != r.URL {
		t.Fatalf("expected URL %s, got %s", r.URL, req.URL.String())
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected canonical Content-Type header, got %q", req.Header.Get("Content-Type"))
	}
	if req.Header.Get("X-Trace-Id") != "12345" {
		t.Fatalf("expected X-Trace-Id header, got %q", req.Header.Get("X-Trace-Id"))
	}
	if req.Header.Get("Cache-Control") != "no-cache" {
		t.Fatalf("expected Cache-Control no-cache, got %q", req.Header.Get("Cache-Control"))
	}

	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	if string(bodyBytes) != string(r.Body) {
		t.Fatalf("expected body %q, got %q", r.Body, bodyBytes)
	}
	if req.ContentLength != int64(len(r.Body)) {
		t.Fatalf("expected content length %d, got %d", len(r.Body), req.ContentLength)
	}
	if req.GetBody == nil {
		t.Fatalf("expected request to support body replay")
	}
	replay, err := req.GetBody()
	if err != nil {
		t.Fatalf("expected replay body, got error: %v", err)
	}
	replayBytes, _ := io.ReadAll(replay)
	if string(replayBytes) != string(r.Body) {
		t.Fatalf("replay body mismatch: %q", replayBytes)
	}
}

func TestBuildRequestDefaults(t *testing.T) {
	req, err := BuildRequest(context.Background(), driver.Request{URL: "http://example.com"})
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	if req.Method != http.MethodGet {
		t.Errorf("expected GET, got %s", req.Method)
	}
	if req.Body != nil && req.Body != http.NoBody {
		t.Errorf("expected no body")
	}

	if _, err := BuildRequest(context.Background(), driver.Request{URL: "  "}); err == nil {
		t.Errorf("expected error for empty target")
	}
}

func TestNormalizeHeadersRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"empty key", map[string]string{" ": "v"}},
		{"newline key", map[string]string{"X-Bad\r\n": "v"}},
		{"leading newline key", map[string]string{"\nX-Bad": "v"}},
		{"colon key", map[string]string{"X:Bad": "v"}},
		{"newline value", map[string]string{"X-Ok": "a\r\nInjected: 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NormalizeHeaders(tt.headers); err == nil {
				t.Errorf("NormalizeHeaders(%v) error = nil, want error", tt.headers)
			}
		})
	}
}

func TestNewClientTransport(t *testing.T) {
	c := NewClient(-time.Second)
	if c.Timeout != 0 {
		t.Errorf("negative timeout should clamp to 0, got %s", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", c.Transport)
	}
	if tr.MaxIdleConnsPerHost < driver.MaxConcurrency {
		t.Errorf("idle pool per host %d is below max concurrency %d", tr.MaxIdleConnsPerHost, driver.MaxConcurrency)
	}
}
