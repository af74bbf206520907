package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/repositories"
)

const (
	defaultContextCountry  = "IE"
	defaultContextLanguage = "en"
)

// ProductContextDeps wires the context accessor of one editing session.
type ProductContextDeps struct {
	Store          repositories.ContextStore
	Namespace      string
	DefaultCountry string
	NewRequestID   func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

// ProductContextAccessor loads and saves the editing identity of a session through a ContextStore.
// Records are read fresh on every call; only the lock flag lives in memory.
type ProductContextAccessor struct {
	store          repositories.ContextStore
	namespace      string
	defaultCountry string
	newRequestID   func() string
	logger         func(context.Context, string, map[string]any)
	locked         atomic.Bool
}

// NewProductContextAccessor validates deps and returns an accessor bound to deps.Namespace.
func NewProductContextAccessor(deps ProductContextDeps) (*ProductContextAccessor, error) {
	if deps.Store == nil {
		return nil, errors.New("product context: store is required")
	}
	namespace := strings.TrimSpace(deps.Namespace)
	if namespace == "" {
		return nil, errors.New("product context: namespace is required")
	}
	country := defaultContextCountry
	if raw := strings.TrimSpace(deps.DefaultCountry); raw != "" {
		region, err := language.ParseRegion(raw)
		if err != nil {
			return nil, fmt.Errorf("product context: invalid default country %q: %w", raw, err)
		}
		country = region.String()
	}
	newID := deps.NewRequestID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ProductContextAccessor{
		store:          deps.Store,
		namespace:      namespace,
		defaultCountry: country,
		newRequestID:   newID,
		logger:         logger,
	}, nil
}

// Namespace returns the store namespace, which is the session id.
func (a *ProductContextAccessor) Namespace() string {
	return a.namespace
}

// Get reads the current context with defaults applied. A missing request id is generated and
// written back so later reads return the same id.
func (a *ProductContextAccessor) Get(ctx context.Context) (domain.ProductContext, error) {
	var record domain.ProductContext
	if _, err := a.load(ctx, repositories.ProductContextKey, &record); err != nil {
		return domain.ProductContext{}, err
	}

	record.ProductID = strings.TrimSpace(record.ProductID)
	record.ProductVersionID = strings.TrimSpace(record.ProductVersionID)
	record.Country = a.normalizeCountries(ctx, record.Country)
	if strings.TrimSpace(record.Language) == "" {
		record.Language = defaultContextLanguage
	}
	if strings.TrimSpace(record.RequestID) == "" {
		record.RequestID = a.newRequestID()
		if err := a.save(ctx, repositories.ProductContextKey, record); err != nil {
			return domain.ProductContext{}, err
		}
	}
	return record, nil
}

// Set overwrites the context record. The language is always stored as "en".
func (a *ProductContextAccessor) Set(ctx context.Context, productID, versionID, requestID string, country []string, lang string, status domain.Status) error {
	if lang != "" && lang != defaultContextLanguage {
		a.logger(ctx, "product_context.language_pinned", map[string]any{"requested": lang})
	}
	record := domain.ProductContext{
		ProductID:        strings.TrimSpace(productID),
		ProductVersionID: strings.TrimSpace(versionID),
		RequestID:        strings.TrimSpace(requestID),
		Country:          a.normalizeCountries(ctx, country),
		Language:         defaultContextLanguage,
		Status:           status,
	}
	return a.save(ctx, repositories.ProductContextKey, record)
}

// SetVersions stores the version status record of a product.
func (a *ProductContextAccessor) SetVersions(ctx context.Context, productID string, versions []domain.VersionStatus) error {
	if strings.TrimSpace(productID) == "" {
		return ErrProductNotBound
	}
	if versions == nil {
		versions = []domain.VersionStatus{}
	}
	return a.save(ctx, repositories.ProductVersionsKey(productID), versions)
}

// Versions returns the version status record of a product. Missing records yield nil.
func (a *ProductContextAccessor) Versions(ctx context.Context, productID string) ([]domain.VersionStatus, error) {
	var versions []domain.VersionStatus
	if _, err := a.load(ctx, repositories.ProductVersionsKey(productID), &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// SetActiveVersion records the version the operator last worked on.
func (a *ProductContextAccessor) SetActiveVersion(ctx context.Context, productID, versionID string) error {
	return a.save(ctx, repositories.ActiveVersionKey, domain.ActiveVersion{
		ProductID: strings.TrimSpace(productID),
		VersionID: strings.TrimSpace(versionID),
	})
}

// ActiveVersion returns the idContext record.
func (a *ProductContextAccessor) ActiveVersion(ctx context.Context) (domain.ActiveVersion, bool, error) {
	var active domain.ActiveVersion
	found, err := a.load(ctx, repositories.ActiveVersionKey, &active)
	if err != nil || !found {
		return domain.ActiveVersion{}, false, err
	}
	return active, true, nil
}

// IsLocked reports the in-memory lock flag.
func (a *ProductContextAccessor) IsLocked() bool {
	return a.locked.Load()
}

// SetLocked sets the in-memory lock flag.
func (a *ProductContextAccessor) SetLocked(locked bool) {
	a.locked.Store(locked)
}

// IsReadOnly reports whether the principal on ctx may not edit a locked product. Unlocked
// products are never read-only. Without a principal a locked product is read-only.
func (a *ProductContextAccessor) IsReadOnly(ctx context.Context, owner domain.ProductOwnership) bool {
	if !a.IsLocked() {
		return false
	}
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return true
	}
	if principal.CanOverrideLock() {
		return false
	}
	name := strings.TrimSpace(principal.Name())
	if name == "" {
		return true
	}
	if strings.EqualFold(name, strings.TrimSpace(owner.CreatedBy)) {
		return false
	}
	for _, user := range owner.AllowedUsers {
		if strings.EqualFold(name, strings.TrimSpace(user)) {
			return false
		}
	}
	return true
}

// IsDisabled reports whether the product form must be disabled for the principal on ctx.
func (a *ProductContextAccessor) IsDisabled(ctx context.Context, owner domain.ProductOwnership) (bool, error) {
	record, err := a.Get(ctx)
	if err != nil {
		return false, err
	}
	return disabledFor(record.Status, a.IsReadOnly(ctx, owner)), nil
}

func disabledFor(status domain.Status, readOnly bool) bool {
	return status == domain.StatusFinal || readOnly
}

func (a *ProductContextAccessor) normalizeCountries(ctx context.Context, codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		region, err := language.ParseRegion(code)
		if err != nil {
			a.logger(ctx, "product_context.country_invalid", map[string]any{"country": code})
			continue
		}
		normalized := region.String()
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return []string{a.defaultCountry}
	}
	return out
}

func (a *ProductContextAccessor) load(ctx context.Context, key string, target any) (bool, error) {
	raw, err := a.store.Get(ctx, a.namespace, key)
	if err != nil {
		if repositories.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("product context: load %s: %w", key, err)
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("product context: decode %s: %w", key, err)
	}
	return true, nil
}

func (a *ProductContextAccessor) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("product context: encode %s: %w", key, err)
	}
	if err := a.store.Set(ctx, a.namespace, key, raw); err != nil {
		return fmt.Errorf("product context: save %s: %w", key, err)
	}
	return nil
}
