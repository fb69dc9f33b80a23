package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/observastack/loadpanel/internal/catalog"
	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/httpclient"
)

func startTarget(t *testing.T) (*httptest.Server, []catalog.Endpoint) {
	t.Helper()
	ts := httptest.NewServer(newRouter(zaptest.NewLogger(t)))
	t.Cleanup(ts.Close)

	endpoints, err := catalog.Load(context.Background(), ts.Client(), []catalog.Source{
		{Service: "api", Schema: catalog.SchemaURL(ts.URL, "api")},
	})
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return ts, endpoints
}

func mustFind(t *testing.T, endpoints []catalog.Endpoint, key string) catalog.Endpoint {
	t.Helper()
	e, ok := catalog.Find(endpoints, key)
	if !ok {
		t.Fatalf("endpoint %s not in catalog: %+v", key, endpoints)
	}
	return e
}

func TestPublishedCatalog(t *testing.T) {
	_, endpoints := startTarget(t)
	if len(endpoints) != 3 {
		t.Fatalf("endpoints = %d, want 3", len(endpoints))
	}

	delay := mustFind(t, endpoints, "API__HELLO_DELAY_DELAY")
	if delay.Path != "/api/hello/delay/{delay}" || delay.Parameters[0].Default != "100" {
		t.Errorf("delay endpoint = %+v", delay)
	}
	status := mustFind(t, endpoints, "API__STATUS_CODE")
	if status.Parameters[0].Default != "200" {
		t.Errorf("status default = %q, want 200", status.Parameters[0].Default)
	}
	create := mustFind(t, endpoints, "API_CREATEITEM")
	if create.Method != http.MethodPost || !create.HasBody {
		t.Errorf("create endpoint = %+v", create)
	}
}

func TestDriveResolvedEndpoints(t *testing.T) {
	ts, endpoints := startTarget(t)
	issuer := httpclient.NewIssuer(httpclient.NewClient(5 * time.Second))

	tests := []struct {
		name       string
		key        string
		values     map[string]string
		successful int
		failed     int
	}{
		{"delay", "API__HELLO_DELAY_DELAY", map[string]string{"delay": "5"}, 4, 0},
		{"server error", "API__STATUS_CODE", map[string]string{"code": "503"}, 0, 4},
		{"create", "API_CREATEITEM", map[string]string{"name": "pen"}, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := mustFind(t, endpoints, tt.key)
			target, err := ep.Resolve(ts.URL, tt.values)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			body, err := ep.Body(tt.values)
			if err != nil {
				t.Fatalf("body: %v", err)
			}

			drv := driver.New(issuer, driver.WithLogger(zaptest.NewLogger(t)))
			summary, err := drv.Run(context.Background(), driver.RunConfig{
				TargetURL:     target,
				Method:        ep.Method,
				Headers:       map[string]string{"Content-Type": "application/json"},
				Body:          body,
				TotalRequests: 4,
				Concurrency:   2,
			})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if summary.Successful != tt.successful || summary.Failed != tt.failed {
				t.Errorf("successful=%d failed=%d, want %d/%d", summary.Successful, summary.Failed, tt.successful, tt.failed)
			}
		})
	}
}

func TestStatusRejectsBadCode(t *testing.T) {
	ts, _ := startTarget(t)
	resp, err := http.Get(ts.URL + "/api/status/42")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
