package observability

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/product-studio/internal/platform/requestctx"
)

// cloudTraceHeader is set by Google front ends as TRACE_ID/SPAN_ID;o=OPTIONS with a decimal span id.
const cloudTraceHeader = "X-Cloud-Trace-Context"

// Span attributes identifying the edited product.
const (
	AttrProductID = attribute.Key("studio.product_id")
	AttrVersionID = attribute.Key("studio.version_id")
	AttrSessionID = attribute.Key("studio.session_id")
)

var tracer = otel.Tracer("github.com/hanko-field/product-studio/internal/platform/observability")

// TraceMiddleware continues the caller's Cloud Trace context in a server span and exposes the
// trace ids through requestctx.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := parseCloudTraceContext(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, SanitizeMethod(r.Method)+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			info := requestctx.TraceInfo{ProjectID: projectID}
			if sc := span.SpanContext(); sc.IsValid() {
				info.TraceID = sc.TraceID().String()
				info.SpanID = sc.SpanID().String()
				info.Sampled = sc.IsSampled()
				w.Header().Set(cloudTraceHeader, formatCloudTraceContext(sc))
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithTrace(ctx, info)))
		})
	}
}

// StudioAttributes returns the product, version and session of a routed studio request.
func StudioAttributes(r *http.Request) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id := SanitizeIdentifier(chi.URLParam(r, "productId")); id != "" {
		attrs = append(attrs, AttrProductID.String(id))
	}
	if id := SanitizeIdentifier(chi.URLParam(r, "versionId")); id != "" {
		attrs = append(attrs, AttrVersionID.String(id))
	}
	if id := SanitizeIdentifier(r.Header.Get(requestctx.SessionHeader)); id != "" {
		attrs = append(attrs, AttrSessionID.String(id))
	}
	return attrs
}

func parseCloudTraceContext(header string) (trace.SpanContext, bool) {
	traceHex, rest, found := strings.Cut(strings.TrimSpace(header), "/")
	if !found {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseSpanID(strings.TrimSpace(spanPart))
	if !ok {
		return trace.SpanContext{}, false
	}

	var flags trace.TraceFlags
	if strings.TrimSpace(options) == "o=1" {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

// parseSpanID accepts the decimal form Google sends and falls back to 16 hex digits.
func parseSpanID(value string) (trace.SpanID, bool) {
	if n, err := strconv.ParseUint(value, 10, 64); err == nil && n != 0 {
		var id trace.SpanID
		binary.BigEndian.PutUint64(id[:], n)
		return id, true
	}
	id, err := trace.SpanIDFromHex(value)
	if err != nil || !id.IsValid() {
		return trace.SpanID{}, false
	}
	return id, true
}

func formatCloudTraceContext(sc trace.SpanContext) string {
	spanID := sc.SpanID()
	sampled := 0
	if sc.IsSampled() {
		sampled = 1
	}
	return fmt.Sprintf("%s/%d;o=%d", sc.TraceID(), binary.BigEndian.Uint64(spanID[:]), sampled)
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", SanitizeMethod(r.Method)),
		attribute.String("url.scheme", scheme),
		attribute.String("url.path", SanitizeRoute(r.URL.Path)),
	}
	if r.Host != "" {
		attrs = append(attrs, attribute.String("server.address", r.Host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", cleanField(ua, 256)))
	}
	return attrs
}
