package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrMissingParam is returned when a required parameter has neither a value
// nor a default.
var ErrMissingParam = errors.New("missing required parameter")

// Resolve substitutes path parameters and joins the result onto baseURL.
// Values override parameter defaults and are path-escaped.
func (e Endpoint) Resolve(baseURL string, values map[string]string) (string, error) {
	path := e.Path
	for _, p := range e.Parameters {
		if p.InBody {
			continue
		}
		v, err := p.value(values)
		if err != nil {
			return "", err
		}
		path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(v))
	}
	if baseURL == "" {
		return path, nil
	}
	return strings.TrimRight(baseURL, "/") + path, nil
}

// Body builds a JSON object from the body parameters. It returns nil when the
// endpoint has none. Numeric and boolean values are encoded as such.
func (e Endpoint) Body(values map[string]string) ([]byte, error) {
	fields := map[string]any{}
	for _, p := range e.Parameters {
		if !p.InBody {
			continue
		}
		raw, err := p.value(values)
		if err != nil {
			return nil, err
		}
		if raw == "" {
			continue
		}
		if p.Name == "body" && p.Type == "object" {
			return []byte(raw), nil
		}
		v, err := p.typed(raw)
		if err != nil {
			return nil, err
		}
		fields[p.Name] = v
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return json.Marshal(fields)
}

func (p Parameter) value(values map[string]string) (string, error) {
	v, ok := values[p.Name]
	if !ok || v == "" {
		v = p.Default
	}
	if v == "" && p.Required {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, p.Name)
	}
	return v, nil
}

func (p Parameter) typed(raw string) (any, error) {
	switch p.Type {
	case "integer", "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %q is not a number", p.Name, raw)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %q is not a boolean", p.Name, raw)
		}
		return b, nil
	}
	return raw, nil
}
