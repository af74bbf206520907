package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/product-studio/internal/platform/requestctx"
)

// Error is the JSON error body of the studio API. Besides the code it can carry the notices the
// wizard shows to the operator and the per-field messages returned by the catalog.
type Error struct {
	Code        string
	Message     string
	Status      int
	Notices     any
	FieldErrors map[string]string
}

type errorBody struct {
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	Status      int               `json:"status"`
	SessionID   string            `json:"sessionId,omitempty"`
	RequestID   string            `json:"requestId,omitempty"`
	TraceID     string            `json:"traceId,omitempty"`
	Notices     any               `json:"notices,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// NewError builds an error body. A zero status is reported as 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, 80),
		Message: clip(message, 512),
		Status:  status,
	}
}

// WithNotices attaches the operator notices raised while handling the request.
func (e Error) WithNotices(notices any) Error {
	e.Notices = notices
	return e
}

// WithFieldErrors attaches catalog validation messages keyed by form field. Blank fields are dropped.
func (e Error) WithFieldErrors(fields map[string]string) Error {
	if len(fields) == 0 {
		return e
	}
	copied := make(map[string]string, len(fields))
	for field, message := range fields {
		if field = strings.TrimSpace(field); field != "" {
			copied[field] = clip(message, 512)
		}
	}
	if len(copied) > 0 {
		e.FieldErrors = copied
	}
	return e
}

// WriteError renders err as JSON. The editing session, chi request id and trace id are taken from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := errorBody{
		Error:       err.Code,
		Message:     err.Message,
		Status:      status,
		SessionID:   clip(requestctx.SessionID(ctx), 64),
		RequestID:   clip(middleware.GetReqID(ctx), 80),
		TraceID:     clip(requestctx.TraceID(ctx), 64),
		Notices:     err.Notices,
		FieldErrors: err.FieldErrors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clip(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
