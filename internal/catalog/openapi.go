// Package catalog turns OpenAPI documents of the services under test into a
// list of endpoints that can be resolved into target URLs.
package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

var operationMethods = map[string]bool{
	"get":    true,
	"post":   true,
	"put":    true,
	"delete": true,
	"patch":  true,
}

// Parameter is a path placeholder or a JSON body property of an endpoint.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Default     string   `json:"default"`
	Description string   `json:"description,omitempty"`
	InBody      bool     `json:"in_body,omitempty"`
}

// Endpoint is one operation of a service.
type Endpoint struct {
	Key         string      `json:"key"`
	Service     string      `json:"service"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	HasBody     bool        `json:"has_body,omitempty"`
}

// ParseOpenAPI reads the operations of an OpenAPI 3 document published by
// service. Paths gain a /service prefix unless they already carry it.
func ParseOpenAPI(service string, doc []byte) ([]Endpoint, error) {
	service = strings.Trim(strings.TrimSpace(service), "/")
	if service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%s: schema is not valid JSON", service)
	}

	var endpoints []Endpoint
	gjson.GetBytes(doc, "paths").ForEach(func(path, methods gjson.Result) bool {
		methods.ForEach(func(method, details gjson.Result) bool {
			m := strings.ToLower(method.String())
			if !operationMethods[m] {
				return true
			}
			endpoints = append(endpoints, parseOperation(service, path.String(), m, details))
			return true
		})
		return true
	})
	return endpoints, nil
}

func parseOperation(service, path, method string, details gjson.Result) Endpoint {
	url := path
	if !strings.HasPrefix(path, "/"+service) {
		url = "/" + service + path
	}
	name := details.Get("summary").String()
	if name == "" {
		name = formatPathName(path, service)
	}
	reqBody := details.Get("requestBody")
	return Endpoint{
		Key:         endpointKey(path, details.Get("operationId").String(), service),
		Service:     service,
		Method:      strings.ToUpper(method),
		Path:        url,
		Name:        name,
		Description: details.Get("description").String(),
		Parameters:  parseParameters(path, method, details),
		HasBody:     reqBody.Exists(),
	}
}

func endpointKey(path, operationID, service string) string {
	prefix := strings.ToUpper(service) + "_"
	if operationID != "" {
		return prefix + strings.Map(func(r rune) rune {
			if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				return r
			}
			return '_'
		}, strings.ToUpper(operationID))
	}
	p := strings.TrimPrefix(path, "/"+service+"/")
	p = strings.ReplaceAll(p, "/", "_")
	p = strings.NewReplacer("{", "", "}", "").Replace(p)
	return prefix + strings.ToUpper(p)
}

func formatPathName(path, service string) string {
	prefix := capitalize(service)
	p := strings.TrimPrefix(path, "/"+service+"/")
	p = strings.NewReplacer("/", " ", "{", "", "}", "").Replace(p)
	words := strings.Fields(p)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	if len(words) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func pathParamNames(path string) []string {
	var names []string
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(path[open:], '}')
		if end < 0 {
			return names
		}
		if name := path[open+1 : open+end]; name != "" {
			names = append(names, name)
		}
		path = path[open+end+1:]
	}
}

func parseParameters(path, method string, details gjson.Result) []Parameter {
	declared := map[string]gjson.Result{}
	details.Get("parameters").ForEach(func(_, p gjson.Result) bool {
		declared[p.Get("name").String()] = p
		return true
	})

	var params []Parameter
	for _, name := range pathParamNames(path) {
		decl := declared[name]
		schema := decl.Get("schema")
		typ := schema.Get("type").String()
		description := decl.Get("description").String()
		if description == "" {
			description = name + " parameter"
		}
		params = append(params, Parameter{
			Name:        name,
			Type:        orDefault(typ, "string"),
			Required:    decl.Get("required").Type != gjson.False,
			Min:         optionalFloat(schema.Get("minimum")),
			Max:         optionalFloat(schema.Get("maximum")),
			Default:     pathDefault(name, typ, schema),
			Description: description,
		})
	}

	if method == "get" || method == "delete" {
		return params
	}
	reqBody := details.Get("requestBody")
	schema := reqBody.Get("content.application/json.schema")
	switch {
	case !schema.Exists():
	case schema.Get("$ref").Exists():
		params = append(params, Parameter{
			Name:        "body",
			Type:        "object",
			Required:    reqBody.Get("required").Type != gjson.False,
			Description: "Request body",
			InBody:      true,
		})
	case schema.Get("type").String() == "object":
		required := map[string]bool{}
		for _, r := range schema.Get("required").Array() {
			required[r.String()] = true
		}
		schema.Get("properties").ForEach(func(name, prop gjson.Result) bool {
			description := prop.Get("description").String()
			params = append(params, Parameter{
				Name:        name.String(),
				Type:        orDefault(prop.Get("type").String(), "string"),
				Required:    required[name.String()],
				Default:     prop.Get("default").String(),
				Description: orDefault(description, name.String()),
				InBody:      true,
			})
			return true
		})
	}
	return params
}

func pathDefault(name, typ string, schema gjson.Result) string {
	if def := schema.Get("default"); def.Exists() {
		return def.String()
	}
	switch {
	case name == "delay":
		return "100"
	case name == "code":
		return "200"
	case typ == "integer" || typ == "number":
		if lo := schema.Get("minimum").Float(); lo != 0 {
			return strconv.FormatFloat(lo, 'f', -1, 64)
		}
		return "1"
	}
	return ""
}

func optionalFloat(r gjson.Result) *float64 {
	if !r.Exists() {
		return nil
	}
	f := r.Float()
	return &f
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Merge combines endpoint lists. A later endpoint replaces an earlier one
// with the same key. The result is sorted by key.
func Merge(lists ...[]Endpoint) []Endpoint {
	byKey := map[string]Endpoint{}
	for _, list := range lists {
		for _, e := range list {
			byKey[e.Key] = e
		}
	}
	out := make([]Endpoint, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Find returns the endpoint with key.
func Find(endpoints []Endpoint, key string) (Endpoint, bool) {
	for _, e := range endpoints {
		if e.Key == key {
			return e, true
		}
	}
	return Endpoint{}, false
}
