package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

// CatalogClient is the remote product catalog.
type CatalogClient interface {
	StatusList(ctx context.Context) ([]domain.StatusReference, error)
	CountryList(ctx context.Context, region string) ([]domain.Country, error)
	// Product fetches a product version. When versioned is false the catalog picks the
	// version it considers current and versionID may be empty.
	Product(ctx context.Context, productID, versionID string, versioned bool) (domain.ProductDetail, error)
	UpdateProduct(ctx context.Context, payload domain.ProductDetail, versionID string) (bool, error)
	UpdateStatus(ctx context.Context, productID, versionID, statusDescription string) (string, error)
	CreateVersion(ctx context.Context, payload domain.ProductDetail) (map[string]any, error)
}

// PolicyCountClient reports how many policies were sold against a product version.
type PolicyCountClient interface {
	PolicyCount(ctx context.Context, productID, versionID, region string) (int, error)
	ClearProductCache(ctx context.Context, keys domain.CacheInvalidation, region string) error
}

// RatingMappingClient reads and writes the rating input mappings of a product version.
type RatingMappingClient interface {
	Mappings(ctx context.Context, productID, versionID string) (domain.MappingPayload, error)
	SaveMappings(ctx context.Context, productID, versionID string, payload domain.MappingPayload) error
}

// RegionResolver maps a country code to the region used to scope remote lookups.
type RegionResolver interface {
	Region(ctx context.Context, country string) (string, error)
}

// FormField identifies an operator facing form control.
type FormField string

const (
	FieldProductName        FormField = "productName"
	FieldProductDescription FormField = "productDescription"
	FieldCurrency           FormField = "currency"
	FieldEffectiveDate      FormField = "effectiveDate"
	FieldExpiryDate         FormField = "expiryDate"
	FieldProductVersion     FormField = "productVersionId"
	FieldStatus             FormField = "status"
)

// FormState is the lifecycle view pushed to the form on every bind.
type FormState struct {
	Product        domain.ProductDetail
	Statuses       []domain.StatusReference
	Countries      []domain.Country
	Versions       []domain.ProductVersion
	CurrentVersion string
	Snapshot       domain.PolicySnapshot
	Versioning     bool
	ShowDiscard    bool
}

// FormBinder receives product data and individual control updates.
type FormBinder interface {
	Bind(ctx context.Context, state FormState)
	SetFieldValue(ctx context.Context, field FormField, value string)
	SetFieldEnabled(ctx context.Context, field FormField, enabled bool)
}

// NoticeLevel classifies operator notices.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user facing message raised by a lifecycle operation. Field is set when the
// message belongs to a specific form control.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
	At      time.Time   `json:"at"`
}

// Notifier surfaces notices to the operator.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// Lifecycle event types published after successful operations.
const (
	EventVersionPromoted = "version.promoted"
	EventStatusChanged   = "status.changed"
)

// LifecycleEvent announces a completed promotion or status change to downstream systems.
type LifecycleEvent struct {
	ID                string        `json:"id"`
	Type              string        `json:"type"`
	SessionID         string        `json:"sessionId"`
	ProductID         string        `json:"productId"`
	VersionID         string        `json:"versionId"`
	PreviousVersionID string        `json:"previousVersionId,omitempty"`
	FromStatus        domain.Status `json:"fromStatus,omitempty"`
	ToStatus          domain.Status `json:"toStatus,omitempty"`
	Actor             string        `json:"actor,omitempty"`
	RequestID         string        `json:"requestId,omitempty"`
	OccurredAt        time.Time     `json:"occurredAt"`
}

// LifecycleEventPublisher hands lifecycle events to the messaging layer and returns the message id.
type LifecycleEventPublisher interface {
	PublishLifecycleEvent(ctx context.Context, event LifecycleEvent) (string, error)
}

// Principal is the operator driving a session.
type Principal interface {
	Name() string
	CanOverrideLock() bool
}
