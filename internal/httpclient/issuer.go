package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/observastack/loadpanel/internal/driver"
	"github.com/observastack/loadpanel/internal/tracing"
)

const maxBodyReadSize = 1024 * 1024

// NonJSONBody returns the placeholder for response bodies that do not
// decode as JSON.
func NonJSONBody() map[string]any {
	return map[string]any{"error": "Non-JSON response"}
}

// Issuer performs driver requests over HTTP.
type Issuer struct {
	client    *http.Client
	tracer    trace.Tracer
	propagate bool
	keepBody  bool
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTracer wraps every request in a client span and, when propagate is
// set, sends W3C trace headers.
func WithTracer(tracer trace.Tracer, propagate bool) IssuerOption {
	return func(i *Issuer) {
		if tracer != nil {
			i.tracer = tracer
		}
		i.propagate = propagate
	}
}

// WithDiscardBody drops decoded bodies from exchanges. Bodies are still
// read and decoded so total timing is unchanged.
func WithDiscardBody() IssuerOption {
	return func(i *Issuer) { i.keepBody = false }
}

// NewIssuer creates an Issuer. A nil client uses NewClient(0).
func NewIssuer(client *http.Client, opts ...IssuerOption) *Issuer {
	if client == nil {
		client = NewClient(0)
	}
	i := &Issuer{
		client:   client,
		tracer:   noop.NewTracerProvider().Tracer("loadpanel"),
		keepBody: true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue performs one exchange. Network time runs until response headers
// arrive. Total time adds reading up to 1 MiB of body and decoding it.
func (i *Issuer) Issue(ctx context.Context, r driver.Request) (driver.Exchange, error) {
	ctx, span := tracing.StartRequestSpan(ctx, i.tracer, strings.ToUpper(r.Method), r.URL)

	req, err := BuildRequest(ctx, r)
	if err != nil {
		tracing.EndSpan(span, 0, err)
		return driver.Exchange{}, err
	}
	if i.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := i.client.Do(req)
	network := time.Since(start)
	if err != nil {
		tracing.EndSpan(span, 0, err)
		return driver.Exchange{}, err
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	body := decodeBody(raw, readErr)
	total := time.Since(start)
	tracing.EndSpan(span, resp.StatusCode, nil)

	ex := driver.Exchange{
		StatusCode:      resp.StatusCode,
		StatusText:      statusText(resp),
		NetworkDuration: network,
		TotalDuration:   total,
	}
	if i.keepBody {
		ex.Body = body
	}
	return ex, nil
}

func decodeBody(raw []byte, readErr error) any {
	if readErr != nil {
		return NonJSONBody()
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return NonJSONBody()
	}
	return v
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
