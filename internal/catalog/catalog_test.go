package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/observastack/loadpanel/internal/catalog"
)

const apiSchema = `{
  "openapi": "3.0.2",
  "paths": {
    "/api/hello/delay/{delay}": {
      "get": {
        "summary": "Hello with delay",
        "operationId": "hello_delay_api_hello_delay__delay__get",
        "parameters": [
          {"name": "delay", "in": "path", "required": true, "schema": {"type": "integer", "minimum": 0}}
        ]
      }
    },
    "/status/{code}": {
      "get": {
        "parameters": [{"name": "code", "in": "path", "schema": {"type": "integer"}}]
      },
      "parameters": []
    },
    "/items/{item_id}": {
      "put": {
        "operationId": "update-item",
        "parameters": [
          {"name": "item_id", "in": "path", "required": true, "schema": {"type": "integer", "minimum": 5, "maximum": 50}}
        ],
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["name"],
                "properties": {
                  "name": {"type": "string"},
                  "price": {"type": "number", "default": 9.5},
                  "active": {"type": "boolean"}
                }
              }
            }
          }
        }
      }
    },
    "/users/{name}": {
      "post": {
        "requestBody": {
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/User"}}}
        }
      }
    }
  }
}`

func parse(t *testing.T) []catalog.Endpoint {
	t.Helper()
	endpoints, err := catalog.ParseOpenAPI("api", []byte(apiSchema))
	if err != nil {
		t.Fatalf("ParseOpenAPI() error = %v", err)
	}
	return endpoints
}

func find(t *testing.T, endpoints []catalog.Endpoint, key string) catalog.Endpoint {
	t.Helper()
	e, ok := catalog.Find(endpoints, key)
	if !ok {
		keys := make([]string, len(endpoints))
		for i, e := range endpoints {
			keys[i] = e.Key
		}
		t.Fatalf("endpoint %q not found in %v", key, keys)
	}
	return e
}

func TestParseOpenAPIKeysAndNames(t *testing.T) {
	endpoints := parse(t)
	if len(endpoints) != 4 {
		t.Fatalf("got %d endpoints, want 4", len(endpoints))
	}

	delay := find(t, endpoints, "API_HELLO_DELAY_API_HELLO_DELAY__DELAY__GET")
	if delay.Path != "/api/hello/delay/{delay}" {
		t.Errorf("already prefixed path changed: %q", delay.Path)
	}
	if delay.Name != "Hello with delay" || delay.Method != "GET" {
		t.Errorf("delay endpoint = %+v", delay)
	}
	if len(delay.Parameters) != 1 || delay.Parameters[0].Default != "100" || !delay.Parameters[0].Required {
		t.Errorf("delay params = %+v", delay.Parameters)
	}

	status := find(t, endpoints, "API__STATUS_CODE")
	if status.Path != "/api/status/{code}" {
		t.Errorf("status path = %q", status.Path)
	}
	if status.Name != "Api: Status Code" {
		t.Errorf("status name = %q", status.Name)
	}
	if status.Parameters[0].Default != "200" {
		t.Errorf("code default = %q", status.Parameters[0].Default)
	}

	item := find(t, endpoints, "API_UPDATE_ITEM")
	if item.Method != "PUT" || !item.HasBody {
		t.Errorf("item endpoint = %+v", item)
	}
	if len(item.Parameters) != 4 {
		t.Fatalf("item params = %+v", item.Parameters)
	}
	id := item.Parameters[0]
	if id.Default != "5" || id.Min == nil || *id.Min != 5 || id.Max == nil || *id.Max != 50 {
		t.Errorf("item_id param = %+v", id)
	}

	user := find(t, endpoints, "API__USERS_NAME")
	last := user.Parameters[len(user.Parameters)-1]
	if last.Name != "body" || !last.InBody || !last.Required {
		t.Errorf("ref body param = %+v", last)
	}
}

func TestParseOpenAPIRejectsBadInput(t *testing.T) {
	if _, err := catalog.ParseOpenAPI("", []byte(apiSchema)); err == nil {
		t.Error("expected error for empty service")
	}
	if _, err := catalog.ParseOpenAPI("api", []byte("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestResolve(t *testing.T) {
	endpoints := parse(t)
	delay := find(t, endpoints, "API_HELLO_DELAY_API_HELLO_DELAY__DELAY__GET")

	got, err := delay.Resolve("http://localhost:8000/", nil)
	if err != nil || got != "http://localhost:8000/api/hello/delay/100" {
		t.Errorf("Resolve(default) = %q, %v", got, err)
	}

	got, err = delay.Resolve("http://localhost:8000", map[string]string{"delay": "a b"})
	if err != nil || got != "http://localhost:8000/api/hello/delay/a%20b" {
		t.Errorf("Resolve(escaped) = %q, %v", got, err)
	}

	user := find(t, endpoints, "API__USERS_NAME")
	if _, err := user.Resolve("http://x", nil); !errors.Is(err, catalog.ErrMissingParam) {
		t.Errorf("Resolve(missing) error = %v, want ErrMissingParam", err)
	}
	got, err = user.Resolve("", map[string]string{"name": "kim"})
	if err != nil || got != "/api/users/kim" {
		t.Errorf("Resolve(no base) = %q, %v", got, err)
	}
}

func TestBody(t *testing.T) {
	item := find(t, parse(t), "API_UPDATE_ITEM")

	if _, err := item.Body(nil); !errors.Is(err, catalog.ErrMissingParam) {
		t.Fatalf("Body(nil) error = %v, want ErrMissingParam", err)
	}

	raw, err := item.Body(map[string]string{"name": "pen", "active": "true"})
	if err != nil {
		t.Fatalf("Body() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", raw, err)
	}
	if got["name"] != "pen" || got["price"] != 9.5 || got["active"] != true {
		t.Errorf("body = %v", got)
	}

	if _, err := item.Body(map[string]string{"name": "pen", "price": "cheap"}); err == nil {
		t.Error("expected error for non-numeric price")
	}

	delay := find(t, parse(t), "API_HELLO_DELAY_API_HELLO_DELAY__DELAY__GET")
	if raw, err := delay.Body(nil); raw != nil || err != nil {
		t.Errorf("GET body = %q, %v", raw, err)
	}
}

func TestMergeLaterWins(t *testing.T) {
	a := []catalog.Endpoint{{Key: "B", Name: "old"}, {Key: "A"}}
	b := []catalog.Endpoint{{Key: "B", Name: "new"}}
	merged := catalog.Merge(a, b)
	if len(merged) != 2 || merged[0].Key != "A" || merged[1].Name != "new" {
		t.Errorf("Merge() = %+v", merged)
	}
}

func TestLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orchestrator/openapi.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"paths": {"/runs": {"post": {"operationId": "start"}}}}`))
	}))
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "api.json")
	if err := os.WriteFile(file, []byte(apiSchema), 0o600); err != nil {
		t.Fatal(err)
	}

	endpoints, err := catalog.Load(context.Background(), srv.Client(), []catalog.Source{
		{Service: "api", Schema: file},
		{Service: "orchestrator", Schema: catalog.SchemaURL(srv.URL, "orchestrator")},
		{Service: "ghost", Schema: srv.URL + "/ghost/openapi.json"},
	})
	if err == nil {
		t.Error("expected an error for the failing source")
	}
	if len(endpoints) != 5 {
		t.Fatalf("got %d endpoints, want 5", len(endpoints))
	}
	run := find(t, endpoints, "ORCHESTRATOR_START")
	if run.Path != "/orchestrator/runs" || run.Name != "Orchestrator: Runs" {
		t.Errorf("orchestrator endpoint = %+v", run)
	}
}
