package repositories

import (
	"context"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

// Keys of the records an editing session keeps in its context store namespace.
const (
	ProductContextKey     = "productContext"
	ActiveVersionKey      = "idContext"
	productVersionsPrefix = "productVersions:"
)

// ProductVersionsKey returns the key of the version status record for a product.
func ProductVersionsKey(productID string) string {
	return productVersionsPrefix + productID
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsUnavailable() bool
}

// ContextStore persists JSON encoded editing context records scoped by namespace.
// Get must return a RepositoryError reporting IsNotFound when the key is absent.
type ContextStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Remove(ctx context.Context, namespace, key string) error
}

// NamespaceDropper is implemented by stores able to release every record of a namespace at once.
type NamespaceDropper interface {
	DropNamespace(ctx context.Context, namespace string) error
}

// ReadinessRepository reports the state of downstream dependencies for readiness checks.
type ReadinessRepository interface {
	Collect(ctx context.Context) (domain.ReadinessReport, error)
}
