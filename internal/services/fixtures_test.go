package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/repositories/memory"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleDetail(versionID string) domain.ProductDetail {
	return domain.ProductDetail{
		Header: domain.ProductHeader{
			ProductID:        "P-1",
			VersionID:        versionID,
			Name:             "Home Contents",
			Description:      "Covers household contents",
			Currency:         "EUR",
			Status:           domain.StatusDesign,
			EffectiveDate:    day("2024-01-01"),
			ExpiryDate:       day("2025-01-01"),
			CreatedBy:        "owner@example.com",
			IsCurrentVersion: true,
		},
		VersionHistory: []domain.VersionHistoryEntry{
			{VersionID: "1.0", Status: domain.StatusFinal, CreatedAt: day("2024-03-01")},
			{VersionID: "2.0", Status: domain.StatusWithdraw, CreatedAt: day("2024-01-01")},
			{VersionID: "3.0", Status: domain.StatusDesign, CreatedAt: day("2024-05-01")},
		},
		Availability: []domain.AvailabilityStandard{{ID: "av-1", Channel: "web", IsCurrentVersion: true}},
		CoverageVariants: []domain.CoverageVariant{{
			ID:               "cv-1",
			Name:             "Standard",
			IsCurrentVersion: true,
			SubCoverages: []domain.SubCoverage{{
				ID:               "sc-1",
				IsCurrentVersion: true,
				Exclusions:       []domain.Exclusion{{ID: "ex-1", IsCurrentVersion: true}},
			}},
		}},
		InsuredObjects: []domain.InsuredObject{{ID: "io-1", Type: "building", IsCurrentVersion: true}},
	}
}

var sampleStatuses = []domain.StatusReference{
	{Code: domain.StatusDesign, Description: "Design"},
	{Code: domain.StatusFinal, Description: "Final"},
	{Code: domain.StatusWithdraw, Description: ""},
	{Code: domain.StatusDelete, Description: "Delete"},
}

type fakeCatalog struct {
	mu sync.Mutex

	products      map[string]domain.ProductDetail
	statuses      []domain.StatusReference
	productErr    error
	createErr     error
	updateErr     error
	updateOK      bool
	statusErr     error
	productHook   func(ctx context.Context, versionID string) error
	onCreate      func(payload domain.ProductDetail)
	productCalls  int
	statusCalls   int
	countryCalls  int
	created       []domain.ProductDetail
	updated       []domain.ProductDetail
	statusUpdates []string
	countryRegion string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: map[string]domain.ProductDetail{"3.0": sampleDetail("3.0")},
		statuses: sampleStatuses,
		updateOK: true,
	}
}

func (f *fakeCatalog) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.productCalls + f.statusCalls + f.countryCalls + len(f.created) + len(f.updated) + len(f.statusUpdates)
}

func (f *fakeCatalog) StatusList(context.Context) ([]domain.StatusReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return append([]domain.StatusReference(nil), f.statuses...), nil
}

func (f *fakeCatalog) CountryList(_ context.Context, region string) ([]domain.Country, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countryCalls++
	f.countryRegion = region
	return []domain.Country{{Code: "IE", Name: "Ireland"}}, nil
}

func (f *fakeCatalog) Product(ctx context.Context, _ string, versionID string, _ bool) (domain.ProductDetail, error) {
	f.mu.Lock()
	f.productCalls++
	hook := f.productHook
	err := f.productErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, versionID); err != nil {
			return domain.ProductDetail{}, err
		}
	}
	if err != nil {
		return domain.ProductDetail{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if versionID == "" {
		versionID = "3.0"
	}
	product, ok := f.products[versionID]
	if !ok {
		return domain.ProductDetail{}, errors.New("product version not found")
	}
	return domain.CloneProduct(product), nil
}

func (f *fakeCatalog) UpdateProduct(_ context.Context, payload domain.ProductDetail, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, payload)
	return f.updateOK, f.updateErr
}

func (f *fakeCatalog) UpdateStatus(_ context.Context, _, versionID, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, versionID+":"+description)
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return "ok", nil
}

func (f *fakeCatalog) CreateVersion(_ context.Context, payload domain.ProductDetail) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, payload)
	if f.createErr != nil {
		return nil, f.createErr
	}
	stored := domain.CloneProduct(payload)
	stored.VersionHistory = append(sampleDetail("").VersionHistory, domain.VersionHistoryEntry{
		VersionID: payload.Header.VersionID,
		Status:    domain.StatusDesign,
		CreatedAt: day("2024-06-01"),
	})
	f.products[payload.Header.VersionID] = stored
	if f.onCreate != nil {
		f.onCreate(payload)
	}
	return map[string]any{"productVersionId": payload.Header.VersionID}, nil
}

type fakePolicies struct {
	mu           sync.Mutex
	counts       map[string]int
	err          error
	calls        int
	countRegions []string
	cleared      []domain.CacheInvalidation
	clearRegions []string
}

func (f *fakePolicies) PolicyCount(_ context.Context, _, versionID, region string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.countRegions = append(f.countRegions, region)
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[versionID], nil
}

func (f *fakePolicies) ClearProductCache(_ context.Context, keys domain.CacheInvalidation, region string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, keys)
	f.clearRegions = append(f.clearRegions, region)
	return nil
}

type fakeMappings struct {
	mu      sync.Mutex
	rows    map[string]domain.MappingPayload
	saveErr error
	saved   map[string]domain.MappingPayload
}

func (f *fakeMappings) Mappings(_ context.Context, _, versionID string) (domain.MappingPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[versionID], nil
}

func (f *fakeMappings) SaveMappings(_ context.Context, _, versionID string, payload domain.MappingPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.saved == nil {
		f.saved = map[string]domain.MappingPayload{}
	}
	f.saved[versionID] = payload
	return nil
}

type fakeRegions struct {
	mu        sync.Mutex
	calls     int
	countries []string
}

func (f *fakeRegions) Region(_ context.Context, country string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.countries = append(f.countries, country)
	if strings.EqualFold(country, "US") {
		return " NA ", nil
	}
	return " EMEA ", nil
}

// faultyStore fails reads once failGet is set.
type faultyStore struct {
	*memory.ContextStore
	mu      sync.Mutex
	failGet bool
}

func (s *faultyStore) setFailGet(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = fail
}

func (s *faultyStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return nil, errors.New("context store unavailable")
	}
	return s.ContextStore.Get(ctx, namespace, key)
}

type captureEvents struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (c *captureEvents) PublishLifecycleEvent(_ context.Context, event LifecycleEvent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return "msg-" + event.Type, nil
}

type stubPrincipal struct {
	name     string
	override bool
}

func (p stubPrincipal) Name() string          { return p.name }
func (p stubPrincipal) CanOverrideLock() bool { return p.override }

type lifecycleHarness struct {
	lifecycle *VersionLifecycle
	catalog   *fakeCatalog
	policies  *fakePolicies
	mappings  *fakeMappings
	regions   *fakeRegions
	events    *captureEvents
	forms     *FormStateRecorder
	notices   *NoticeLog
	accessor  *ProductContextAccessor
	store     *faultyStore
}

func newHarness(t *testing.T) *lifecycleHarness {
	t.Helper()
	h := &lifecycleHarness{
		catalog:  newFakeCatalog(),
		policies: &fakePolicies{counts: map[string]int{"3.0": 5}},
		mappings: &fakeMappings{rows: map[string]domain.MappingPayload{
			"3.0": {Rows: []map[string]any{{"input": "age", "factor": 1.2}}},
		}},
		regions: &fakeRegions{},
		events:  &captureEvents{},
		forms:   NewFormStateRecorder(),
		notices: NewNoticeLog(0, nil),
		store:   &faultyStore{ContextStore: memory.NewContextStore()},
	}
	accessor, err := NewProductContextAccessor(ProductContextDeps{
		Store:        h.store,
		Namespace:    "session-1",
		NewRequestID: func() string { return "req-1" },
	})
	if err != nil {
		t.Fatalf("NewProductContextAccessor: %v", err)
	}
	h.accessor = accessor

	lifecycle, err := NewVersionLifecycle(VersionLifecycleDeps{
		SessionID:   "session-1",
		Catalog:     h.catalog,
		Policies:    h.policies,
		Mappings:    h.mappings,
		Regions:     h.regions,
		Context:     accessor,
		Forms:       h.forms,
		Notifier:    h.notices,
		Events:      h.events,
		Clock:       func() time.Time { return day("2024-07-01") },
		IDGenerator: func() string { return "evt-1" },
	})
	if err != nil {
		t.Fatalf("NewVersionLifecycle: %v", err)
	}
	h.lifecycle = lifecycle
	return h
}

func (h *lifecycleHarness) open(t *testing.T) {
	t.Helper()
	if err := h.lifecycle.Initialize(context.Background(), "P-1", InitializeOptions{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h.notices.Drain()
}
