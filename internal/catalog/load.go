package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const maxSchemaBytes = 8 << 20

// Source names a service and where its OpenAPI document lives: a file path
// or an http(s) URL.
type Source struct {
	Service string
	Schema  string
}

// SchemaURL is where a service behind baseURL publishes its document.
func SchemaURL(baseURL, service string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(service, "/") + "/openapi.json"
}

// Load reads every source and merges their endpoints. A failing source
// contributes nothing; its error is joined into the returned error while
// the endpoints of the other sources are still returned.
func Load(ctx context.Context, client *http.Client, sources []Source) ([]Endpoint, error) {
	if client == nil {
		client = http.DefaultClient
	}
	lists := make([][]Endpoint, 0, len(sources))
	var errs []error
	for _, src := range sources {
		doc, err := fetch(ctx, client, src.Schema)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Service, err))
			continue
		}
		endpoints, err := ParseOpenAPI(src.Service, doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		lists = append(lists, endpoints)
	}
	return Merge(lists...), errors.Join(errs...)
}

func fetch(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return os.ReadFile(location)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", location, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSchemaBytes))
}
