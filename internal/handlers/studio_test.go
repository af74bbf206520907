package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/platform/regions"
	"github.com/hanko-field/product-studio/internal/repositories/memory"
	"github.com/hanko-field/product-studio/internal/services"
)

func studioDay(s string) time.Time {
	t, err := time.Parse(studioDateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type stubCatalog struct {
	mu            sync.Mutex
	history       []domain.VersionHistoryEntry
	created       []domain.ProductDetail
	statusUpdates []string
	statusErr     error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{history: []domain.VersionHistoryEntry{
		{VersionID: "1.0", Status: domain.StatusFinal, CreatedAt: studioDay("2024-01-01")},
		{VersionID: "2.0", Status: domain.StatusDesign, CreatedAt: studioDay("2024-03-01")},
	}}
}

func (c *stubCatalog) StatusList(context.Context) ([]domain.StatusReference, error) {
	return []domain.StatusReference{
		{Code: domain.StatusDesign, Description: "Design"},
		{Code: domain.StatusFinal, Description: "Final"},
		{Code: domain.StatusWithdraw, Description: "Withdraw"},
		{Code: domain.StatusDelete, Description: "Delete"},
	}, nil
}

func (c *stubCatalog) CountryList(context.Context, string) ([]domain.Country, error) {
	return []domain.Country{{Code: "DE", Name: "Germany"}}, nil
}

func (c *stubCatalog) Product(_ context.Context, productID, versionID string, versioned bool) (domain.ProductDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if productID != "P-1" {
		return domain.ProductDetail{}, errors.New("product not found")
	}
	if !versioned {
		versionID = "2.0"
	}
	status := domain.Status("")
	for _, entry := range c.history {
		if entry.VersionID == versionID {
			status = entry.Status
		}
	}
	if status == "" {
		return domain.ProductDetail{}, fmt.Errorf("version %s not found", versionID)
	}
	return domain.ProductDetail{
		Header: domain.ProductHeader{
			ProductID:     productID,
			VersionID:     versionID,
			Name:          "Travel Basic",
			Currency:      "EUR",
			Status:        status,
			EffectiveDate: studioDay("2024-01-01"),
			CreatedBy:     "owner@example.com",
		},
		VersionHistory: append([]domain.VersionHistoryEntry(nil), c.history...),
	}, nil
}

func (c *stubCatalog) UpdateProduct(context.Context, domain.ProductDetail, string) (bool, error) {
	return true, nil
}

func (c *stubCatalog) UpdateStatus(_ context.Context, _, versionID, description string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return "", c.statusErr
	}
	c.statusUpdates = append(c.statusUpdates, versionID+":"+description)
	return "ok", nil
}

func (c *stubCatalog) CreateVersion(_ context.Context, payload domain.ProductDetail) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, payload)
	c.history = append(c.history, domain.VersionHistoryEntry{
		VersionID: payload.Header.VersionID,
		Status:    domain.StatusDesign,
		CreatedAt: studioDay("2024-06-01"),
	})
	return map[string]any{"productVersionId": payload.Header.VersionID}, nil
}

type stubPolicies struct{}

func (stubPolicies) PolicyCount(context.Context, string, string, string) (int, error) { return 4, nil }

func (stubPolicies) ClearProductCache(context.Context, domain.CacheInvalidation, string) error {
	return nil
}

type stubMappings struct{}

func (stubMappings) Mappings(context.Context, string, string) (domain.MappingPayload, error) {
	return domain.MappingPayload{}, nil
}

func (stubMappings) SaveMappings(context.Context, string, string, domain.MappingPayload) error {
	return nil
}

type studioFixture struct {
	router   chi.Router
	catalog  *stubCatalog
	sessions *services.SessionManager
}

func newStudioFixture(t *testing.T, opts ...StudioOption) *studioFixture {
	t.Helper()
	resolver, err := regions.Load("")
	if err != nil {
		t.Fatalf("regions.Load: %v", err)
	}
	catalog := newStubCatalog()
	sessions, err := services.NewSessionManager(services.SessionManagerDeps{
		Store:    memory.NewContextStore(),
		Catalog:  catalog,
		Policies: stubPolicies{},
		Mappings: stubMappings{},
		Regions:  resolver,
	})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	t.Cleanup(sessions.Shutdown)

	handlers := NewStudioHandlers(nil, sessions, opts...)
	return &studioFixture{
		router:   NewRouter(WithStudioRoutes(handlers.Routes)),
		catalog:  catalog,
		sessions: sessions,
	}
}

func (f *studioFixture) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/api/v1/studio"+path, bytes.NewReader(payload))
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *studioFixture) open(t *testing.T) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/products/P-1:open", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("open: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	session := rr.Header().Get(SessionHeader)
	if session == "" {
		t.Fatalf("expected session header on open")
	}
	return session
}

type studioBody struct {
	SessionID string                 `json:"sessionId"`
	VersionID string                 `json:"versionId"`
	View      services.LifecycleView `json:"view"`
	Form      services.FormSnapshot  `json:"form"`
	Notices   []services.Notice      `json:"notices"`
	ReadOnly  bool                   `json:"readOnly"`
	Disabled  bool                   `json:"disabled"`
}

func decodeStudio(t *testing.T, rr *httptest.ResponseRecorder) studioBody {
	t.Helper()
	var body studioBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return body
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestStudioOpenProductBindsSession(t *testing.T) {
	f := newStudioFixture(t)
	rr := f.do(t, http.MethodPost, "/products/P-1:open", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeStudio(t, rr)
	if body.SessionID == "" || body.SessionID != rr.Header().Get(SessionHeader) {
		t.Fatalf("expected session id echoed, got %q", body.SessionID)
	}
	if !body.View.Bound || body.View.CurrentVersion != "2.0" || len(body.View.Versions) != 2 {
		t.Fatalf("unexpected view %+v", body.View)
	}
	if body.View.Snapshot.NumberOfPolicies != 4 {
		t.Fatalf("expected policy snapshot, got %+v", body.View.Snapshot)
	}
	if body.Form.Values[services.FieldProductName] != "Travel Basic" {
		t.Fatalf("expected form bound, got %+v", body.Form.Values)
	}

	again := f.do(t, http.MethodGet, "/products/P-1", body.SessionID, nil)
	if again.Code != http.StatusOK || decodeStudio(t, again).SessionID != body.SessionID {
		t.Fatalf("expected session reused, got %d", again.Code)
	}
	if f.sessions.Len() != 1 {
		t.Fatalf("expected one session, got %d", f.sessions.Len())
	}
}

func TestStudioOpenUnknownProductIsFetchFailure(t *testing.T) {
	f := newStudioFixture(t)
	rr := f.do(t, http.MethodPost, "/products/P-404:open", "", nil)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body["error"] != string(services.KindFetchFailure) {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestStudioRequiresOpenProduct(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)

	rr := f.do(t, http.MethodGet, "/products/P-2", session, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body["error"] != "product_not_open" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestStudioDraftLifecycle(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)

	rr := f.do(t, http.MethodPost, "/products/P-1/versions:draft", session, map[string]string{
		"effectiveDate": "2024-07-01",
		"expiryDate":    "2025-06-30",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeStudio(t, rr)
	if body.VersionID != "3.0" || body.View.CurrentVersion != "3.0" || !body.View.ShowDiscard {
		t.Fatalf("unexpected draft response %+v", body)
	}
	if body.Form.Values[services.FieldEffectiveDate] != "2024-07-01" {
		t.Fatalf("expected draft dates seeded, got %+v", body.Form.Values)
	}

	dup := f.do(t, http.MethodPost, "/products/P-1/versions:draft", session, nil)
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a second draft, got %d", dup.Code)
	}

	discard := f.do(t, http.MethodDelete, "/products/P-1/versions:draft", session, nil)
	if discard.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", discard.Code)
	}
	if view := decodeStudio(t, discard).View; view.CurrentVersion != "2.0" || view.ShowDiscard || len(view.Versions) != 2 {
		t.Fatalf("expected draft discarded, got %+v", view)
	}

	again := f.do(t, http.MethodDelete, "/products/P-1/versions:draft", session, nil)
	if again.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a draft, got %d", again.Code)
	}
}

func TestStudioDraftRejectsInvertedDates(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)

	rr := f.do(t, http.MethodPost, "/products/P-1/versions:draft", session, map[string]string{
		"effectiveDate": "2025-01-01",
		"expiryDate":    "2024-01-01",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	bad := f.do(t, http.MethodPost, "/products/P-1/versions:draft", session, map[string]string{"effectiveDate": "01/07/2024"})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", bad.Code)
	}
}

func TestStudioPromoteDraft(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)

	if rr := f.do(t, http.MethodPost, "/products/P-1/versions:draft", session, nil); rr.Code != http.StatusCreated {
		t.Fatalf("draft: expected 201, got %d", rr.Code)
	}
	rr := f.do(t, http.MethodPost, "/products/P-1/versions:promote", session, map[string]any{
		"productName": "Travel <b>Plus</b>",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeStudio(t, rr)
	if body.VersionID != "3.0" || body.View.CurrentVersion != "3.0" || body.View.ShowDiscard {
		t.Fatalf("unexpected promote response %+v", body.View)
	}
	if len(f.catalog.created) != 1 || f.catalog.created[0].Header.Name != "Travel Plus" {
		t.Fatalf("expected sanitised payload sent, got %+v", f.catalog.created)
	}
	var success bool
	for _, notice := range body.Notices {
		if notice.Level == services.NoticeSuccess {
			success = true
		}
	}
	if !success {
		t.Fatalf("expected success notice, got %+v", body.Notices)
	}
}

func TestStudioSelectVersion(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)

	rr := f.do(t, http.MethodPost, "/products/P-1/versions/1.0:select", session, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeStudio(t, rr)
	if body.View.CurrentVersion != "1.0" || body.View.Status != domain.StatusFinal {
		t.Fatalf("expected version 1.0 loaded, got %+v", body.View)
	}

	missing := f.do(t, http.MethodPost, "/products/P-1/versions/9.0:select", session, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestStudioChangeStatus(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)

	invalid := f.do(t, http.MethodPost, "/products/P-1/status", session, map[string]string{"status": "ARCHIVED"})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", invalid.Code)
	}

	illegal := f.do(t, http.MethodPost, "/products/P-1/status", session, map[string]string{"status": "DELETE"})
	if illegal.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for illegal transition, got %d", illegal.Code)
	}

	rr := f.do(t, http.MethodPost, "/products/P-1/status", session, map[string]string{"status": "final"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeStudio(t, rr)
	if body.View.Status != domain.StatusFinal || !body.Disabled {
		t.Fatalf("expected final and disabled, got %+v", body)
	}
	if len(f.catalog.statusUpdates) != 1 || f.catalog.statusUpdates[0] != "2.0:Final" {
		t.Fatalf("unexpected status calls %v", f.catalog.statusUpdates)
	}
}

func TestStudioChangeStatusFieldErrors(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)
	f.catalog.statusErr = &services.RemoteError{StatusCode: http.StatusBadRequest, FieldErrors: map[string]string{
		"status": "Coverage variants are incomplete",
	}}

	rr := f.do(t, http.MethodPost, "/products/P-1/status", session, map[string]string{"status": "FINAL"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body["error"] != string(services.KindStatusChangeFailure) {
		t.Fatalf("unexpected error %v", body["error"])
	}
	details, _ := body["details"].(map[string]any)
	fields, _ := details["fieldErrors"].(map[string]any)
	if fields["status"] != "Coverage variants are incomplete" {
		t.Fatalf("expected field errors in details, got %v", body)
	}
	if notices, _ := details["notices"].([]any); len(notices) != 1 {
		t.Fatalf("expected one field notice, got %v", details["notices"])
	}
}

func TestStudioLockedProductIsReadOnly(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)

	if rr := f.do(t, http.MethodPut, "/products/P-1/lock", session, map[string]any{}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without locked flag, got %d", rr.Code)
	}
	lock := f.do(t, http.MethodPut, "/products/P-1/lock", session, map[string]any{"locked": true})
	if lock.Code != http.StatusOK || !decodeStudio(t, lock).ReadOnly {
		t.Fatalf("expected read-only after lock, got %d %s", lock.Code, lock.Body.String())
	}

	rr := f.do(t, http.MethodPut, "/products/P-1", session, map[string]any{"productName": "Renamed"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	unlock := f.do(t, http.MethodPut, "/products/P-1/lock", session, map[string]any{"locked": false})
	if unlock.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", unlock.Code)
	}
	saved := f.do(t, http.MethodPut, "/products/P-1", session, map[string]any{"productName": "Renamed"})
	if saved.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", saved.Code, saved.Body.String())
	}
	if decodeStudio(t, saved).Form.Values[services.FieldProductName] != "Renamed" {
		t.Fatalf("expected renamed product bound")
	}
}

func TestStudioCloseSession(t *testing.T) {
	f := newStudioFixture(t)
	session := f.open(t)

	rr := f.do(t, http.MethodDelete, "/session", session, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if _, ok := f.sessions.Get(session); ok {
		t.Fatalf("expected session released")
	}
}

func TestStudioSessionOpenRateLimit(t *testing.T) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	f := newStudioFixture(t, WithSessionOpenLimit(1, time.Minute, func() time.Time { return now }))

	session := f.open(t)
	if rr := f.do(t, http.MethodGet, "/products/P-1", session, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected known session to bypass the limit, got %d", rr.Code)
	}

	rr := f.do(t, http.MethodPost, "/products/P-1:open", "", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
}

func TestSessionOpenLimiterResetsPerOperatorWindow(t *testing.T) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	limiter := newSessionOpenLimiter(2, time.Minute, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.reserve("operator-a"); !ok {
			t.Fatalf("open %d should be allowed", i+1)
		}
	}
	if ok, _ := limiter.reserve("operator-b"); !ok {
		t.Fatalf("expected other operator unaffected")
	}
	now = now.Add(20 * time.Second)
	ok, wait := limiter.reserve("operator-a")
	if ok || wait != 40*time.Second {
		t.Fatalf("expected rejection with 40s wait, got %v %s", ok, wait)
	}

	now = now.Add(40 * time.Second)
	if ok, _ := limiter.reserve("operator-a"); !ok {
		t.Fatalf("expected window reset")
	}
	if len(limiter.windows) != 1 {
		t.Fatalf("expected expired windows dropped, got %d", len(limiter.windows))
	}

	var disabled *sessionOpenLimiter
	if ok, _ := disabled.reserve("operator-a"); !ok {
		t.Fatalf("nil limiter must allow")
	}
}
