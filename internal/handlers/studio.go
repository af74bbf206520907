package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/platform/auth"
	"github.com/hanko-field/product-studio/internal/platform/httpx"
	"github.com/hanko-field/product-studio/internal/platform/requestctx"
	"github.com/hanko-field/product-studio/internal/services"
)

// SessionHeader carries the editing session id on requests and responses.
const SessionHeader = requestctx.SessionHeader

const studioDateLayout = "2006-01-02"

type sessionContextKey struct{}

// StudioHandlers exposes the product version lifecycle of an editing session.
type StudioHandlers struct {
	authn        *auth.Authenticator
	sessions     *services.SessionManager
	allowedRoles []string
	openLimiter  *sessionOpenLimiter
}

// StudioOption customises StudioHandlers.
type StudioOption func(*StudioHandlers)

// WithStudioRoles restricts the studio routes to operators holding one of roles.
func WithStudioRoles(roles ...string) StudioOption {
	return func(h *StudioHandlers) {
		h.allowedRoles = append([]string(nil), roles...)
	}
}

// WithSessionOpenLimit bounds how many new sessions one operator may open per window.
func WithSessionOpenLimit(limit int, window time.Duration, clock func() time.Time) StudioOption {
	return func(h *StudioHandlers) {
		h.openLimiter = newSessionOpenLimiter(limit, window, clock)
	}
}

// NewStudioHandlers constructs the studio handler set.
func NewStudioHandlers(authn *auth.Authenticator, sessions *services.SessionManager, opts ...StudioOption) *StudioHandlers {
	h := &StudioHandlers{
		authn:        authn,
		sessions:     sessions,
		allowedRoles: []string{auth.RoleStaff, auth.RoleAdmin},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the studio endpoints beneath the mounted prefix.
func (h *StudioHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireFirebaseAuth(h.allowedRoles...))
	}
	route = route.With(h.withSession)

	route.Post("/products/{productId}:open", h.openProduct)
	route.Get("/products/{productId}", h.viewProduct)
	route.Put("/products/{productId}", h.updateProduct)
	route.Post("/products/{productId}/status", h.changeStatus)
	route.Put("/products/{productId}/lock", h.setLock)
	route.Post("/products/{productId}/versions/{versionId}:select", h.selectVersion)
	route.Post("/products/{productId}/versions:draft", h.createDraft)
	route.Delete("/products/{productId}/versions:draft", h.discardDraft)
	route.Post("/products/{productId}/versions:promote", h.promoteDraft)
	route.Delete("/session", h.closeSession)
}

func (h *StudioHandlers) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.sessions == nil {
			httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "studio sessions not available", http.StatusServiceUnavailable))
			return
		}

		requested := strings.TrimSpace(r.Header.Get(SessionHeader))
		if _, known := h.sessions.Get(requested); !known {
			if allowed, wait := h.openLimiter.reserve(operatorKey(ctx)); !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many editing sessions opened", http.StatusTooManyRequests))
				return
			}
		}
		session, _, err := h.sessions.Open(ctx, requested)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", err.Error(), http.StatusInternalServerError))
			return
		}

		w.Header().Set(SessionHeader, session.ID)
		ctx = requestctx.WithSessionID(ctx, session.ID)
		if identity, ok := auth.IdentityFromContext(ctx); ok {
			ctx = services.WithPrincipal(ctx, identity)
		}
		ctx = context.WithValue(ctx, sessionContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *StudioHandlers) openProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := sessionFromContext(ctx)
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := session.Lifecycle.Initialize(ctx, productID, services.InitializeOptions{}); err != nil {
		writeStudioError(ctx, w, session, err)
		return
	}
	writeStudioResponse(ctx, w, http.StatusOK, session, "")
}

func (h *StudioHandlers) viewProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := boundSession(w, r)
	if !ok {
		return
	}
	writeStudioResponse(ctx, w, http.StatusOK, session, "")
}

func (h *StudioHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := editableSession(w, r)
	if !ok {
		return
	}

	var req formValuesRequest
	if !decodeStudioBody(ctx, w, r, &req) {
		return
	}
	values, err := req.values()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if err := session.Lifecycle.UpdateProduct(ctx, values); err != nil {
		writeStudioError(ctx, w, session, err)
		return
	}
	writeStudioResponse(ctx, w, http.StatusOK, session, "")
}

func (h *StudioHandlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := editableSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if !decodeStudioBody(ctx, w, r, &req) {
		return
	}
	status, valid := domain.ParseStatus(req.Status)
	if !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", fmt.Sprintf("unknown status %q", req.Status), http.StatusBadRequest))
		return
	}
	if err := session.Lifecycle.ChangeStatus(ctx, status); err != nil {
		writeStudioError(ctx, w, session, err)
		return
	}
	writeStudioResponse(ctx, w, http.StatusOK, session, "")
}

func (h *StudioHandlers) setLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := boundSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Locked *bool `json:"locked"`
	}
	if !decodeStudioBody(ctx, w, r, &req) {
		return
	}
	if req.Locked == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "locked is required", http.StatusBadRequest))
		return
	}
	session.Lifecycle.Context().SetLocked(*req.Locked)
	writeStudioResponse(ctx, w, http.StatusOK, session, "")
}

func (h *StudioHandlers) selectVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := boundSession(w, r)
	if !ok {
		return
	}
	versionID := strings.TrimSpace(chi.URLParam(r, "versionId"))
	if versionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "version id is required", http.StatusBadRequest))
		return
	}
	if err := session.Lifecycle.SwitchVersion(ctx, versionID); err != nil {
		writeStudioError(ctx, w, session, err)
		return
	}
	writeStudioResponse(ctx, w, http.StatusOK, session, "")
}

func (h *StudioHandlers) createDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := editableSession(w, r)
	if !ok {
		return
	}

	var req struct {
		EffectiveDate string `json:"effectiveDate"`
		ExpiryDate    string `json:"expiryDate"`
	}
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var dates services.DraftDates
	var err error
	if dates.EffectiveDate, err = parseStudioDate("effectiveDate", req.EffectiveDate); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if dates.ExpiryDate, err = parseStudioDate("expiryDate", req.ExpiryDate); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	versionID, err := session.Lifecycle.CreateNewVersion(ctx, dates)
	if err != nil {
		writeStudioError(ctx, w, session, err)
		return
	}
	writeStudioResponse(ctx, w, http.StatusCreated, session, versionID)
}

func (h *StudioHandlers) discardDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := boundSession(w, r)
	if !ok {
		return
	}
	if err := session.Lifecycle.DiscardNewVersion(ctx); err != nil {
		writeStudioError(ctx, w, session, err)
		return
	}
	writeStudioResponse(ctx, w, http.StatusOK, session, "")
}

func (h *StudioHandlers) promoteDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := editableSession(w, r)
	if !ok {
		return
	}

	var req formValuesRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	values, err := req.values()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	versionID, err := session.Lifecycle.PromoteNewVersion(ctx, values)
	if err != nil {
		writeStudioError(ctx, w, session, err)
		return
	}
	writeStudioResponse(ctx, w, http.StatusOK, session, versionID)
}

func (h *StudioHandlers) closeSession(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	h.sessions.Close(r.Context(), session.ID)
	w.WriteHeader(http.StatusNoContent)
}

func sessionFromContext(ctx context.Context) *services.Session {
	session, _ := ctx.Value(sessionContextKey{}).(*services.Session)
	return session
}

// boundSession returns the session when it has the product of the URL loaded.
func boundSession(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	ctx := r.Context()
	session := sessionFromContext(ctx)
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	view := session.Lifecycle.View()
	if !view.Bound || view.ProductID != productID {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_open", fmt.Sprintf("product %s is not open in this session", productID), http.StatusConflict))
		return nil, false
	}
	return session, true
}

// editableSession additionally refuses products locked against the operator.
func editableSession(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	session, ok := boundSession(w, r)
	if !ok {
		return nil, false
	}
	ctx := r.Context()
	product, _ := session.Lifecycle.Product()
	if session.Lifecycle.Context().IsReadOnly(ctx, product.Ownership()) {
		httpx.WriteError(ctx, w, httpx.NewError("product_read_only", "product is locked for editing", http.StatusForbidden))
		return nil, false
	}
	return session, true
}

func operatorKey(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		return identity.UID
	}
	return ""
}

type studioResponse struct {
	SessionID string                 `json:"sessionId"`
	VersionID string                 `json:"versionId,omitempty"`
	View      services.LifecycleView `json:"view"`
	Form      services.FormSnapshot  `json:"form"`
	Notices   []services.Notice      `json:"notices"`
	ReadOnly  bool                   `json:"readOnly"`
	Disabled  bool                   `json:"disabled"`
}

func writeStudioResponse(ctx context.Context, w http.ResponseWriter, status int, session *services.Session, versionID string) {
	resp := studioResponse{
		SessionID: session.ID,
		VersionID: versionID,
		View:      session.Lifecycle.View(),
		Form:      session.Forms.Snapshot(),
		Notices:   session.Notices.Drain(),
	}
	if resp.Notices == nil {
		resp.Notices = []services.Notice{}
	}
	if product, ok := session.Lifecycle.Product(); ok {
		owner := product.Ownership()
		accessor := session.Lifecycle.Context()
		resp.ReadOnly = accessor.IsReadOnly(ctx, owner)
		if disabled, err := accessor.IsDisabled(ctx, owner); err == nil {
			resp.Disabled = disabled
		}
	}
	writeJSONResponse(w, status, resp)
}

func writeStudioError(ctx context.Context, w http.ResponseWriter, session *services.Session, err error) {
	status, code := classifyStudioError(err)
	body := httpx.NewError(code, err.Error(), status)
	if session != nil {
		if notices := session.Notices.Drain(); len(notices) > 0 {
			body = body.WithNotices(notices)
		}
	}
	var remote *services.RemoteError
	if errors.As(err, &remote) {
		body = body.WithFieldErrors(remote.FieldErrors)
	}
	httpx.WriteError(ctx, w, body)
}

func classifyStudioError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrProductNotBound):
		return http.StatusConflict, "product_not_open"
	case errors.Is(err, services.ErrUnknownVersion):
		return http.StatusNotFound, "version_not_found"
	case errors.Is(err, services.ErrDuplicatePendingVersion):
		return http.StatusConflict, "pending_version_exists"
	case errors.Is(err, services.ErrVersionExists):
		return http.StatusConflict, "version_exists"
	case errors.Is(err, services.ErrNoPendingVersion):
		return http.StatusConflict, "no_pending_version"
	case errors.Is(err, services.ErrVersionNotPersisted):
		return http.StatusConflict, "version_not_persisted"
	case errors.Is(err, services.ErrSwitchSuperseded):
		return http.StatusConflict, "switch_superseded"
	case errors.Is(err, services.ErrInvalidDraftDates):
		return http.StatusBadRequest, "invalid_dates"
	case errors.Is(err, services.ErrInvalidVersionID):
		return http.StatusUnprocessableEntity, "invalid_version_id"
	case errors.Is(err, services.ErrStatusTransitionNotAllowed):
		return http.StatusUnprocessableEntity, "status_transition_not_allowed"
	case services.IsLifecycleKind(err, services.KindFetchFailure):
		return http.StatusBadGateway, string(services.KindFetchFailure)
	case services.IsLifecycleKind(err, services.KindSubmitFailure):
		return http.StatusBadGateway, string(services.KindSubmitFailure)
	case services.IsLifecycleKind(err, services.KindStatusChangeFailure):
		return http.StatusBadGateway, string(services.KindStatusChangeFailure)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeStudioBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	data, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(data, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

type formValuesRequest struct {
	ProductName        *string  `json:"productName"`
	ProductDescription *string  `json:"productDescription"`
	Currency           *string  `json:"currency"`
	EffectiveDate      *string  `json:"effectiveDate"`
	ExpiryDate         *string  `json:"expiryDate"`
	Country            []string `json:"country"`
}

func (req formValuesRequest) values() (services.FormValues, error) {
	values := services.FormValues{
		Name:        req.ProductName,
		Description: req.ProductDescription,
		Currency:    req.Currency,
		Country:     req.Country,
	}
	if req.EffectiveDate != nil {
		parsed, err := parseStudioDate("effectiveDate", *req.EffectiveDate)
		if err != nil {
			return services.FormValues{}, err
		}
		values.EffectiveDate = &parsed
	}
	if req.ExpiryDate != nil {
		parsed, err := parseStudioDate("expiryDate", *req.ExpiryDate)
		if err != nil {
			return services.FormValues{}, err
		}
		values.ExpiryDate = &parsed
	}
	return values, nil
}

func parseStudioDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(studioDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must use YYYY-MM-DD", field)
	}
	return parsed, nil
}
