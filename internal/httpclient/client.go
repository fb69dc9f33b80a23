package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/observastack/loadpanel/internal/driver"
)

// NormalizeHeaders validates header names and values and returns them in
// canonical form.
func NormalizeHeaders(in map[string]string) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(key, "\r\n") || strings.ContainsAny(trimmedKey, ": ") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		out[canonicalKey] = value
	}
	return out, nil
}

// BuildRequest turns a driver request into an *http.Request. Every request
// bypasses intermediary caches.
func BuildRequest(ctx context.Context, r driver.Request) (*http.Request, error) {
	target := strings.TrimSpace(r.URL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if len(r.Body) > 0 {
		payload := r.Body
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}

	req.Header.Set("Cache-Control", "no-cache")
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// NewClient returns a client tuned for many short concurrent requests to
// one host. The driver enforces per-request timeouts through the context,
// so timeout is only an outer bound and may be zero.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   driver.MaxConcurrency * 2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
