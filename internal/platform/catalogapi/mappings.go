package catalogapi

import (
	"context"
	"net/http"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/services"
)

// MappingClient implements services.RatingMappingClient.
type MappingClient struct {
	t *transport
}

var _ services.RatingMappingClient = (*MappingClient)(nil)

// NewMappingClient constructs a rating mapping client rooted at baseURL.
func NewMappingClient(baseURL string, opts ...Option) (*MappingClient, error) {
	t, err := newTransport("mapping", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &MappingClient{t: t}, nil
}

// Mappings loads the rating input mappings of a product version.
func (c *MappingClient) Mappings(ctx context.Context, productID, versionID string) (domain.MappingPayload, error) {
	var payload domain.MappingPayload
	endpoint := segment("products", productID, "versions", versionID, "mappings")
	if err := c.t.call(ctx, "mappings", http.MethodGet, endpoint, nil, nil, &payload); err != nil {
		return domain.MappingPayload{}, err
	}
	return payload, nil
}

// SaveMappings replaces the rating input mappings of a product version.
func (c *MappingClient) SaveMappings(ctx context.Context, productID, versionID string, payload domain.MappingPayload) error {
	endpoint := segment("products", productID, "versions", versionID, "mappings")
	return c.t.call(ctx, "save_mappings", http.MethodPut, endpoint, nil, payload, nil)
}
