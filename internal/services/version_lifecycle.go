package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

const (
	msgFetchFailure        = "Product details could not be loaded. Please try again."
	msgSubmitFailure       = "The product could not be saved. Please try again."
	msgStatusChangeFailure = "The product status could not be changed. Please try again."

	maxSanitizeRounds = 4
)

// VersionLifecycleDeps enumerates collaborators of one editing session.
type VersionLifecycleDeps struct {
	SessionID   string
	Catalog     CatalogClient
	Policies    PolicyCountClient
	Mappings    RatingMappingClient
	Regions     RegionResolver
	Context     *ProductContextAccessor
	Registry    *VersionRegistry
	Forms       FormBinder
	Notifier    Notifier
	Events      LifecycleEventPublisher
	Sanitizer   *bluemonday.Policy
	Meter       metric.Meter
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// InitializeOptions tunes Initialize.
type InitializeOptions struct {
	// StatusUpdate rebinds the form from memory when the product is already loaded.
	StatusUpdate bool
}

// DraftDates seeds the validity window of a new version.
type DraftDates struct {
	EffectiveDate time.Time
	ExpiryDate    time.Time
}

// FormValues are operator edits merged over the bound product header. Nil fields keep the
// header value.
type FormValues struct {
	Name          *string
	Description   *string
	Currency      *string
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
	Country       []string
}

// LifecycleView is a read-only snapshot of the session's version state.
type LifecycleView struct {
	ProductID      string                  `json:"productId"`
	CurrentVersion string                  `json:"currentVersion"`
	Versions       []domain.ProductVersion `json:"versions"`
	Snapshot       domain.PolicySnapshot   `json:"snapshot"`
	Versioning     bool                    `json:"versioning"`
	ShowDiscard    bool                    `json:"showDiscard"`
	Status         domain.Status           `json:"status,omitempty"`
	Bound          bool                    `json:"bound"`
}

// VersionLifecycle drives version creation, switching, discarding and promotion for one
// editing session. State is guarded by mu; remote calls run without holding it.
type VersionLifecycle struct {
	sessionID string
	catalog   CatalogClient
	policies  PolicyCountClient
	mappings  RatingMappingClient
	regions   RegionResolver
	context   *ProductContextAccessor
	registry  *VersionRegistry
	forms     FormBinder
	notifier  Notifier
	events    LifecycleEventPublisher
	sanitizer *bluemonday.Policy
	metrics   lifecycleMetrics
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)

	mu           sync.Mutex
	productID    string
	product      *domain.ProductDetail
	statuses     []domain.StatusReference
	countries    []domain.Country
	current      string
	snapshot     domain.PolicySnapshot
	showDiscard  bool
	draftBase    string
	draftDates   DraftDates
	regionCache  map[string]string
	switchToken  uint64
	switchCancel context.CancelFunc

	background sync.WaitGroup
}

// NewVersionLifecycle validates deps and returns an idle lifecycle.
func NewVersionLifecycle(deps VersionLifecycleDeps) (*VersionLifecycle, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("version lifecycle: catalog client is required")
	case deps.Policies == nil:
		return nil, errors.New("version lifecycle: policy count client is required")
	case deps.Mappings == nil:
		return nil, errors.New("version lifecycle: rating mapping client is required")
	case deps.Regions == nil:
		return nil, errors.New("version lifecycle: region resolver is required")
	case deps.Context == nil:
		return nil, errors.New("version lifecycle: product context accessor is required")
	}

	metrics, err := newLifecycleMetrics(deps.Meter)
	if err != nil {
		return nil, fmt.Errorf("version lifecycle: register metrics: %w", err)
	}

	registry := deps.Registry
	if registry == nil {
		registry = NewVersionRegistry()
	}
	var forms FormBinder = noopFormBinder{}
	if deps.Forms != nil {
		forms = deps.Forms
	}
	var notifier Notifier = noopNotifier{}
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = bluemonday.StrictPolicy()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &VersionLifecycle{
		sessionID:   strings.TrimSpace(deps.SessionID),
		catalog:     deps.Catalog,
		policies:    deps.Policies,
		mappings:    deps.Mappings,
		regions:     deps.Regions,
		context:     deps.Context,
		registry:    registry,
		forms:       forms,
		notifier:    notifier,
		events:      deps.Events,
		sanitizer:   sanitizer,
		metrics:     metrics,
		clock:       func() time.Time { return clock().UTC() },
		newID:       newID,
		logger:      logger,
		regionCache: make(map[string]string),
	}, nil
}

// Initialize loads a product into the session. See InitializeOptions for the rebind shortcut.
func (l *VersionLifecycle) Initialize(ctx context.Context, productID string, opts InitializeOptions) (err error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrProductNotBound
	}
	ctx, span := tracer.Start(ctx, "VersionLifecycle.Initialize", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Bool("status_update", opts.StatusUpdate),
	))
	defer func() {
		l.metrics.operation(ctx, "initialize", err)
		endSpan(span, err)
	}()

	if opts.StatusUpdate {
		l.mu.Lock()
		if l.product != nil && l.productID == productID {
			state := l.formStateLocked()
			l.mu.Unlock()
			l.forms.Bind(ctx, state)
			return nil
		}
		l.mu.Unlock()
	}

	pctx, err := l.context.Get(ctx)
	if err != nil {
		return l.fetchFailure(ctx, "initialize", err)
	}
	versionID := ""
	if pctx.ProductID == productID {
		versionID = pctx.ProductVersionID
	}
	if versionID == "" {
		if active, ok, activeErr := l.context.ActiveVersion(ctx); activeErr == nil && ok && active.ProductID == productID {
			versionID = active.VersionID
		}
	}

	listRegion, err := l.resolveRegion(ctx, pctx.PrimaryCountry())
	if err != nil {
		return l.fetchFailure(ctx, "initialize", err)
	}

	var (
		statuses  []domain.StatusReference
		countries []domain.Country
		product   domain.ProductDetail
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		statuses, err = l.catalog.StatusList(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		countries, err = l.catalog.CountryList(groupCtx, listRegion)
		return err
	})
	group.Go(func() error {
		var err error
		product, err = l.catalog.Product(groupCtx, productID, versionID, versionID != "")
		return err
	})
	if err := group.Wait(); err != nil {
		return l.fetchFailure(ctx, "initialize", err)
	}
	region, err := l.regionFor(ctx, productID, productCountry(product.Header, pctx.PrimaryCountry()))
	if err != nil {
		return l.fetchFailure(ctx, "initialize", err)
	}

	current := strings.TrimSpace(product.Header.VersionID)
	if current == "" {
		current = versionID
	}
	product.Header.ProductID = productID
	product.Header.VersionID = current
	ids := make([]string, 0, len(product.VersionHistory))
	for _, entry := range product.VersionHistory {
		ids = append(ids, entry.VersionID)
	}
	if len(ids) == 0 {
		ids = []string{current}
	}

	l.mu.Lock()
	l.cancelSwitchLocked()
	l.productID = productID
	l.product = &product
	l.statuses = statuses
	l.countries = countries
	l.current = current
	l.snapshot = domain.PolicySnapshot{Version: current}
	l.showDiscard = false
	l.draftBase = ""
	l.draftDates = DraftDates{}
	l.registry.Reset(ids)
	state := l.formStateLocked()
	l.mu.Unlock()

	if err := l.context.SetVersions(ctx, productID, versionStatuses(product)); err != nil {
		l.logger(ctx, "version_lifecycle.persist_versions_failed", map[string]any{"productId": productID, "error": err.Error()})
	}
	if err := l.context.Set(ctx, productID, current, pctx.RequestID, pctx.Country, pctx.Language, product.Header.Status); err != nil {
		l.logger(ctx, "version_lifecycle.persist_context_failed", map[string]any{"productId": productID, "error": err.Error()})
	}
	l.forms.Bind(ctx, state)

	count, err := l.policies.PolicyCount(ctx, productID, current, region)
	if err != nil {
		l.notify(ctx, NoticeError, fmt.Sprintf("Policy count for version %s could not be loaded.", current), "")
		l.logger(ctx, "version_lifecycle.policy_count_failed", map[string]any{"productId": productID, "versionId": current, "error": err.Error()})
		return nil
	}

	l.mu.Lock()
	if l.productID != productID || l.current != current {
		l.mu.Unlock()
		return nil
	}
	l.snapshot = domain.PolicySnapshot{NumberOfPolicies: count, Version: current}
	state = l.formStateLocked()
	l.mu.Unlock()
	l.forms.Bind(ctx, state)
	return nil
}

// SwitchVersion makes target the current version. Switching to the current version is a no-op.
// A newer switch supersedes this one: its in-flight calls are cancelled and its results dropped
// with ErrSwitchSuperseded. The current version is updated before the fetch, so a failed fetch
// leaves the session pointing at target with the previous product still bound.
func (l *VersionLifecycle) SwitchVersion(ctx context.Context, target string) (err error) {
	target = strings.TrimSpace(target)

	l.mu.Lock()
	if l.product == nil {
		l.mu.Unlock()
		return ErrProductNotBound
	}
	if target == l.current {
		l.mu.Unlock()
		return nil
	}
	version, ok := l.registry.Has(target)
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownVersion, target)
	}
	if version.IsNew {
		l.current = target
		state := l.formStateLocked()
		l.mu.Unlock()
		l.forms.Bind(ctx, state)
		return nil
	}

	l.cancelSwitchLocked()
	token := l.switchToken
	switchCtx, cancel := context.WithCancel(ctx)
	l.switchCancel = cancel
	productID := l.productID
	region := l.regionCache[productID]
	l.current = target
	l.mu.Unlock()
	defer cancel()

	switchCtx, span := tracer.Start(switchCtx, "VersionLifecycle.SwitchVersion", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.String("version.id", target),
	))
	defer func() {
		l.metrics.operation(ctx, "switch_version", err)
		endSpan(span, err)
	}()

	var (
		product domain.ProductDetail
		count   int
	)
	group, groupCtx := errgroup.WithContext(switchCtx)
	group.Go(func() error {
		var err error
		product, err = l.catalog.Product(groupCtx, productID, target, true)
		return err
	})
	group.Go(func() error {
		var err error
		count, err = l.policies.PolicyCount(groupCtx, productID, target, region)
		return err
	})
	fetchErr := group.Wait()

	l.mu.Lock()
	if token != l.switchToken || l.productID != productID {
		l.mu.Unlock()
		l.logger(ctx, "version_lifecycle.switch_discarded", map[string]any{"productId": productID, "versionId": target})
		return ErrSwitchSuperseded
	}
	l.switchCancel = nil
	if fetchErr != nil {
		l.mu.Unlock()
		return l.fetchFailure(ctx, "switch_version", fetchErr)
	}
	product.Header.ProductID = productID
	if product.Header.VersionID == "" {
		product.Header.VersionID = target
	}
	l.product = &product
	l.snapshot = domain.PolicySnapshot{NumberOfPolicies: count, Version: target}
	state := l.formStateLocked()
	l.mu.Unlock()

	l.forms.Bind(ctx, state)
	if err := l.context.SetActiveVersion(ctx, productID, target); err != nil {
		l.logger(ctx, "version_lifecycle.persist_active_version_failed", map[string]any{"productId": productID, "error": err.Error()})
	}
	if pctx, err := l.context.Get(ctx); err == nil {
		if err := l.context.Set(ctx, productID, target, pctx.RequestID, pctx.Country, pctx.Language, product.Header.Status); err != nil {
			l.logger(ctx, "version_lifecycle.persist_context_failed", map[string]any{"productId": productID, "error": err.Error()})
		}
	}
	return nil
}

// CreateNewVersion adds a pending version numbered after the most recently created one and
// seeds the form with the committed header and dates.
func (l *VersionLifecycle) CreateNewVersion(ctx context.Context, dates DraftDates) (newID string, err error) {
	defer func() { l.metrics.operation(ctx, "create_version", err) }()

	if !dates.EffectiveDate.IsZero() && !dates.ExpiryDate.IsZero() && dates.ExpiryDate.Before(dates.EffectiveDate) {
		return "", ErrInvalidDraftDates
	}

	l.mu.Lock()
	if l.product == nil {
		l.mu.Unlock()
		return "", ErrProductNotBound
	}
	newID, err = domain.NextVersionID(l.product.VersionHistory)
	if err != nil {
		l.mu.Unlock()
		return "", fmt.Errorf("version lifecycle: next version id: %w", err)
	}
	if err := l.registry.Add(newID); err != nil {
		l.mu.Unlock()
		return "", err
	}
	l.draftBase = l.current
	l.current = newID
	l.showDiscard = true
	l.draftDates = dates
	header := l.product.Header
	state := l.formStateLocked()
	l.mu.Unlock()

	l.forms.Bind(ctx, state)
	l.forms.SetFieldValue(ctx, FieldProductName, header.Name)
	l.forms.SetFieldValue(ctx, FieldProductDescription, header.Description)
	l.forms.SetFieldValue(ctx, FieldCurrency, header.Currency)
	if !dates.EffectiveDate.IsZero() {
		l.forms.SetFieldValue(ctx, FieldEffectiveDate, dates.EffectiveDate.Format(formDateLayout))
	}
	if !dates.ExpiryDate.IsZero() {
		l.forms.SetFieldValue(ctx, FieldExpiryDate, dates.ExpiryDate.Format(formDateLayout))
	}
	l.forms.SetFieldValue(ctx, FieldProductVersion, newID)
	l.forms.SetFieldEnabled(ctx, FieldStatus, true)
	l.forms.SetFieldEnabled(ctx, FieldProductDescription, true)

	l.logger(ctx, "version_lifecycle.version_created", map[string]any{"productId": header.ProductID, "versionId": newID, "base": state.Snapshot.Version})
	return newID, nil
}

// DiscardNewVersion drops the pending version and returns to the version of the last policy
// snapshot. No remote calls are made.
func (l *VersionLifecycle) DiscardNewVersion(ctx context.Context) (err error) {
	defer func() { l.metrics.operation(ctx, "discard_version", err) }()

	l.mu.Lock()
	pending, ok := l.registry.Pending()
	if !ok {
		l.mu.Unlock()
		return ErrNoPendingVersion
	}
	target := l.current
	if !l.registry.IsNew(target) {
		target = pending.VersionID
	}
	l.registry.Remove(target)
	restore := l.snapshot.Version
	if restore == "" {
		restore = l.draftBase
	}
	l.current = restore
	l.showDiscard = false
	l.draftBase = ""
	l.draftDates = DraftDates{}
	state := l.formStateLocked()
	l.mu.Unlock()

	l.forms.Bind(ctx, state)
	return nil
}

// PromoteNewVersion persists the pending version through the catalog. On success the session is
// reloaded on the new version and rating mappings are copied in the background.
func (l *VersionLifecycle) PromoteNewVersion(ctx context.Context, values FormValues) (newID string, err error) {
	l.mu.Lock()
	if l.product == nil {
		l.mu.Unlock()
		return "", ErrProductNotBound
	}
	pending, ok := l.registry.Pending()
	if !ok {
		l.mu.Unlock()
		return "", ErrNoPendingVersion
	}
	payload := domain.CloneProduct(*l.product)
	dates := l.draftDates
	previous := l.draftBase
	if previous == "" {
		previous = l.snapshot.Version
	}
	productID := l.productID
	fromStatus := l.product.Header.Status
	l.mu.Unlock()

	newID = pending.VersionID
	ctx, span := tracer.Start(ctx, "VersionLifecycle.PromoteNewVersion", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.String("version.id", newID),
	))
	defer func() {
		l.metrics.operation(ctx, "promote_version", err)
		endSpan(span, err)
	}()

	if !dates.EffectiveDate.IsZero() {
		payload.Header.EffectiveDate = dates.EffectiveDate
	}
	if !dates.ExpiryDate.IsZero() {
		payload.Header.ExpiryDate = dates.ExpiryDate
	}
	l.mergeFormValues(&payload.Header, values)
	detached := domain.DetachVersion(&payload)
	payload.Header.ProductID = productID
	payload.Header.VersionID = newID
	payload.Header.Status = domain.StatusDesign
	payload.Header.IsCurrentVersion = false
	payload.VersionHistory = nil

	pctx, err := l.context.Get(ctx)
	if err != nil {
		return "", l.submitFailure(ctx, "promote_new_version", err)
	}

	if _, err := l.catalog.CreateVersion(ctx, payload); err != nil {
		if l.downgradeNotAllowed(ctx, err) {
			return "", nil
		}
		return "", l.submitFailure(ctx, "promote_new_version", err)
	}

	if err := l.context.SetActiveVersion(ctx, productID, newID); err != nil {
		l.logger(ctx, "version_lifecycle.persist_active_version_failed", map[string]any{"productId": productID, "error": err.Error()})
	}
	l.publish(ctx, LifecycleEvent{
		Type:              EventVersionPromoted,
		ProductID:         productID,
		VersionID:         newID,
		PreviousVersionID: previous,
		FromStatus:        fromStatus,
		ToStatus:          domain.StatusDesign,
		RequestID:         pctx.RequestID,
	})
	if err := l.context.Set(ctx, productID, newID, pctx.RequestID, pctx.Country, pctx.Language, domain.StatusDesign); err != nil {
		l.logger(ctx, "version_lifecycle.persist_context_failed", map[string]any{"productId": productID, "error": err.Error()})
	}
	l.notify(ctx, NoticeSuccess, fmt.Sprintf("Version %s of product %s was created.", newID, productID), "")
	l.logger(ctx, "version_lifecycle.version_promoted", map[string]any{
		"productId":     productID,
		"versionId":     newID,
		"previous":      previous,
		"detachedNodes": detached,
	})

	l.mu.Lock()
	l.showDiscard = false
	l.draftBase = ""
	l.draftDates = DraftDates{}
	l.mu.Unlock()

	initErr := l.Initialize(ctx, productID, InitializeOptions{})
	l.copyMappingsAsync(ctx, productID, previous, newID)
	return newID, initErr
}

// UpdateProduct saves header edits of the current persisted version.
func (l *VersionLifecycle) UpdateProduct(ctx context.Context, values FormValues) (err error) {
	l.mu.Lock()
	if l.product == nil {
		l.mu.Unlock()
		return ErrProductNotBound
	}
	if l.registry.IsNew(l.current) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrVersionNotPersisted, l.current)
	}
	payload := domain.CloneProduct(*l.product)
	productID := l.productID
	versionID := l.current
	l.mu.Unlock()

	ctx, span := tracer.Start(ctx, "VersionLifecycle.UpdateProduct", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.String("version.id", versionID),
	))
	defer func() {
		l.metrics.operation(ctx, "update_product", err)
		endSpan(span, err)
	}()

	l.mergeFormValues(&payload.Header, values)
	saved, err := l.catalog.UpdateProduct(ctx, payload, versionID)
	if err == nil && !saved {
		err = errors.New("catalog did not accept the update")
	}
	if err != nil {
		if l.downgradeNotAllowed(ctx, err) {
			return nil
		}
		return l.submitFailure(ctx, "update_product", err)
	}

	l.mu.Lock()
	if l.productID == productID && l.current == versionID {
		l.product = &payload
	}
	state := l.formStateLocked()
	l.mu.Unlock()

	l.forms.Bind(ctx, state)
	l.notify(ctx, NoticeSuccess, "Product saved.", "")
	return nil
}

// View returns the current version state.
func (l *VersionLifecycle) View() LifecycleView {
	l.mu.Lock()
	defer l.mu.Unlock()
	versions := l.registry.List()
	view := LifecycleView{
		ProductID:      l.productID,
		CurrentVersion: l.current,
		Versions:       versions,
		Snapshot:       l.snapshot,
		Versioning:     versioningActive(l.snapshot, l.current, versions),
		ShowDiscard:    l.showDiscard,
		Bound:          l.product != nil,
	}
	if l.product != nil {
		view.Status = l.product.Header.Status
	}
	return view
}

// Product returns a copy of the bound product.
func (l *VersionLifecycle) Product() (domain.ProductDetail, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.product == nil {
		return domain.ProductDetail{}, false
	}
	return domain.CloneProduct(*l.product), true
}

// Context exposes the session's context accessor.
func (l *VersionLifecycle) Context() *ProductContextAccessor {
	return l.context
}

// Wait blocks until background mapping copies finish.
func (l *VersionLifecycle) Wait() {
	l.background.Wait()
}

// Close cancels an in-flight switch and waits for background work.
func (l *VersionLifecycle) Close() {
	l.mu.Lock()
	l.cancelSwitchLocked()
	l.mu.Unlock()
	l.background.Wait()
}

func (l *VersionLifecycle) cancelSwitchLocked() {
	l.switchToken++
	if l.switchCancel != nil {
		l.switchCancel()
		l.switchCancel = nil
	}
}

func (l *VersionLifecycle) formStateLocked() FormState {
	state := FormState{
		Statuses:       append([]domain.StatusReference(nil), l.statuses...),
		Countries:      append([]domain.Country(nil), l.countries...),
		Versions:       l.registry.List(),
		CurrentVersion: l.current,
		Snapshot:       l.snapshot,
		ShowDiscard:    l.showDiscard,
	}
	state.Versioning = versioningActive(l.snapshot, l.current, state.Versions)
	if l.product != nil {
		state.Product = domain.CloneProduct(*l.product)
	}
	return state
}

// regionFor returns the product's region, resolving it from country on first use.
func (l *VersionLifecycle) regionFor(ctx context.Context, productID, country string) (string, error) {
	l.mu.Lock()
	if region, ok := l.regionCache[productID]; ok {
		l.mu.Unlock()
		return region, nil
	}
	l.mu.Unlock()

	region, err := l.resolveRegion(ctx, country)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	l.regionCache[productID] = region
	l.mu.Unlock()
	return region, nil
}

func (l *VersionLifecycle) resolveRegion(ctx context.Context, country string) (string, error) {
	region, err := l.regions.Region(ctx, country)
	if err != nil {
		return "", fmt.Errorf("resolve region for %s: %w", country, err)
	}
	return strings.ToLower(strings.TrimSpace(region)), nil
}

// productCountry is the first country of the product, or fallback when the product lists none.
func productCountry(header domain.ProductHeader, fallback string) string {
	for _, code := range header.Country {
		if code = strings.TrimSpace(code); code != "" {
			return code
		}
	}
	return fallback
}

func (l *VersionLifecycle) mergeFormValues(header *domain.ProductHeader, values FormValues) {
	if values.Name != nil {
		header.Name = *values.Name
	}
	if values.Description != nil {
		header.Description = *values.Description
	}
	if values.Currency != nil {
		header.Currency = strings.ToUpper(strings.TrimSpace(*values.Currency))
	}
	if values.EffectiveDate != nil {
		header.EffectiveDate = values.EffectiveDate.UTC()
	}
	if values.ExpiryDate != nil {
		header.ExpiryDate = values.ExpiryDate.UTC()
	}
	if values.Country != nil {
		header.Country = append([]string(nil), values.Country...)
	}
	header.Name = l.cleanText(header.Name)
	header.Description = l.cleanText(header.Description)
}

// cleanText strips markup until unescaping no longer reveals any. Values that keep changing
// after maxSanitizeRounds are returned in their escaped form.
func (l *VersionLifecycle) cleanText(value string) string {
	for i := 0; i < maxSanitizeRounds; i++ {
		plain := html.UnescapeString(l.sanitizer.Sanitize(value))
		if plain == value {
			return strings.TrimSpace(plain)
		}
		value = plain
	}
	return strings.TrimSpace(l.sanitizer.Sanitize(value))
}

func (l *VersionLifecycle) copyMappingsAsync(ctx context.Context, productID, from, to string) {
	if from == "" || from == to {
		return
	}
	bg := context.WithoutCancel(ctx)
	l.background.Add(1)
	go func() {
		defer l.background.Done()
		err := l.copyMappings(bg, productID, from, to)
		l.metrics.operation(bg, "copy_mappings", err)
		if err != nil {
			failure := &LifecycleError{Kind: KindMappingCopyFailure, Op: "copy_mappings", Err: err}
			l.notify(bg, NoticeError, fmt.Sprintf("Rating mappings could not be copied from version %s to %s.", from, to), "")
			l.logger(bg, "version_lifecycle.mapping_copy_failed", map[string]any{"productId": productID, "from": from, "to": to, "error": failure.Error()})
			return
		}
		l.logger(bg, "version_lifecycle.mapping_copied", map[string]any{"productId": productID, "from": from, "to": to})
	}()
}

func (l *VersionLifecycle) copyMappings(ctx context.Context, productID, from, to string) error {
	ctx, span := tracer.Start(ctx, "VersionLifecycle.copyMappings", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.String("version.from", from),
		attribute.String("version.to", to),
	))
	var err error
	defer func() { endSpan(span, err) }()

	var payload domain.MappingPayload
	if payload, err = l.mappings.Mappings(ctx, productID, from); err != nil {
		return err
	}
	err = l.mappings.SaveMappings(ctx, productID, to, payload)
	return err
}

func (l *VersionLifecycle) publish(ctx context.Context, event LifecycleEvent) {
	if l.events == nil {
		return
	}
	event.ID = l.newID()
	event.SessionID = l.sessionID
	event.OccurredAt = l.clock()
	if principal, ok := PrincipalFromContext(ctx); ok {
		event.Actor = principal.Name()
	}
	messageID, err := l.events.PublishLifecycleEvent(ctx, event)
	if err != nil {
		l.logger(ctx, "version_lifecycle.event_publish_failed", map[string]any{"type": event.Type, "eventId": event.ID, "error": err.Error()})
		return
	}
	l.logger(ctx, "version_lifecycle.event_published", map[string]any{"type": event.Type, "eventId": event.ID, "messageId": messageID})
}

func (l *VersionLifecycle) notify(ctx context.Context, level NoticeLevel, message, field string) {
	l.notifier.Notify(ctx, Notice{Level: level, Message: message, Field: field, At: l.clock()})
}

func (l *VersionLifecycle) fetchFailure(ctx context.Context, op string, err error) error {
	l.notify(ctx, NoticeError, msgFetchFailure, "")
	l.logger(ctx, "version_lifecycle.fetch_failed", map[string]any{"op": op, "error": err.Error()})
	return &LifecycleError{Kind: KindFetchFailure, Op: op, Err: err}
}

func (l *VersionLifecycle) submitFailure(ctx context.Context, op string, err error) error {
	l.notify(ctx, NoticeError, msgSubmitFailure, "")
	l.logger(ctx, "version_lifecycle.submit_failed", map[string]any{"op": op, "error": err.Error()})
	return &LifecycleError{Kind: KindSubmitFailure, Op: op, Err: err}
}

// downgradeNotAllowed turns the catalog's "not allowed for update operation" refusal into an
// info notice and reports whether it did.
func (l *VersionLifecycle) downgradeNotAllowed(ctx context.Context, err error) bool {
	if !isNotAllowedForUpdate(err) {
		return false
	}
	message := remoteMessage(err)
	if message == "" {
		message = err.Error()
	}
	l.notify(ctx, NoticeInfo, message, "")
	return true
}

func versionStatuses(product domain.ProductDetail) []domain.VersionStatus {
	if len(product.VersionHistory) == 0 {
		return []domain.VersionStatus{{VersionID: product.Header.VersionID, Status: product.Header.Status}}
	}
	out := make([]domain.VersionStatus, 0, len(product.VersionHistory))
	for _, entry := range product.VersionHistory {
		out = append(out, domain.VersionStatus{VersionID: entry.VersionID, Status: entry.Status})
	}
	return out
}
