// Package catalogapi talks to the remote product catalog, policy and rating mapping services.
package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/product-studio/internal/services"
)

const instrumentationName = "github.com/hanko-field/product-studio/internal/platform/catalogapi"

const maxErrorBody = 1 << 16

// HTTPClient matches the subset of http.Client used by the clients of this package.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Option customises a client.
type Option func(*transport)

// WithHTTPClient overrides the HTTP client, typically one with a timeout.
func WithHTTPClient(client HTTPClient) Option {
	return func(t *transport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(t *transport) {
		t.token = strings.TrimSpace(token)
	}
}

// transport holds the request plumbing shared by the catalog, policy and mapping clients.
type transport struct {
	name   string
	base   *url.URL
	client HTTPClient
	token  string
	tracer trace.Tracer
}

func newTransport(name, baseURL string, opts ...Option) (*transport, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%s: base URL is required", name)
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("%s: parse base URL: %w", name, err)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	t := &transport{
		name:   name,
		base:   parsed,
		client: http.DefaultClient,
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// call issues one request and decodes a successful JSON response into out. Non 2xx responses
// become *services.RemoteError.
func (t *transport) call(ctx context.Context, op, method, endpoint string, query url.Values, payload, out any) (err error) {
	ctx, span := t.tracer.Start(ctx, t.name+"."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", endpoint),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := t.newRequest(ctx, method, endpoint, query, payload)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s request failed: %w", t.name, op, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: decode %s: %w", t.name, op, err)
	}
	return nil
}

func (t *transport) newRequest(ctx context.Context, method, endpoint string, query url.Values, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(payload); err != nil {
			return nil, fmt.Errorf("%s: encode payload: %w", t.name, err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, t.resolve(endpoint, query), body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", t.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return req, nil
}

func (t *transport) resolve(endpoint string, query url.Values) string {
	ref := &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return t.base.ResolveReference(ref).String()
}

// ping checks that the service answers its health endpoint.
func (t *transport) ping(ctx context.Context) error {
	return t.call(ctx, "ping", http.MethodGet, "/healthz", nil, nil, nil)
}

// segment joins path parts; escaping happens when the URL is rendered.
func segment(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		cleaned = append(cleaned, strings.Trim(strings.TrimSpace(part), "/"))
	}
	return "/" + path.Join(cleaned...)
}

// errorFromResponse decodes the two error bodies the catalog sends: a field keyed object under
// error.errors, or a plain string under error.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	remote := &services.RemoteError{StatusCode: resp.StatusCode}

	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if len(body) > 0 && json.Unmarshal(body, &envelope) == nil {
		remote.Message = strings.TrimSpace(envelope.Message)
		if len(envelope.Error) > 0 {
			var text string
			var detail struct {
				Errors  map[string]string `json:"errors"`
				Message string            `json:"message"`
			}
			switch {
			case json.Unmarshal(envelope.Error, &text) == nil:
				remote.Message = strings.TrimSpace(text)
			case json.Unmarshal(envelope.Error, &detail) == nil:
				if len(detail.Errors) > 0 {
					remote.FieldErrors = detail.Errors
				}
				if msg := strings.TrimSpace(detail.Message); msg != "" {
					remote.Message = msg
				}
			}
		}
		return remote
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		remote.Message = text
	} else {
		remote.Message = http.StatusText(resp.StatusCode)
	}
	return remote
}
