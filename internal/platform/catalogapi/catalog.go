package catalogapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/services"
)

// CatalogClient implements services.CatalogClient over the catalog REST API.
type CatalogClient struct {
	t *transport
}

var _ services.CatalogClient = (*CatalogClient)(nil)

// NewCatalogClient constructs a catalog client rooted at baseURL.
func NewCatalogClient(baseURL string, opts ...Option) (*CatalogClient, error) {
	t, err := newTransport("catalog", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &CatalogClient{t: t}, nil
}

// StatusList returns the status reference table.
func (c *CatalogClient) StatusList(ctx context.Context) ([]domain.StatusReference, error) {
	var payload struct {
		Items []domain.StatusReference `json:"items"`
	}
	if err := c.t.call(ctx, "status_list", http.MethodGet, "/reference/statuses", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// CountryList returns the countries of region.
func (c *CatalogClient) CountryList(ctx context.Context, region string) ([]domain.Country, error) {
	query := url.Values{}
	if region = strings.TrimSpace(region); region != "" {
		query.Set("region", region)
	}
	var payload struct {
		Items []domain.Country `json:"items"`
	}
	if err := c.t.call(ctx, "country_list", http.MethodGet, "/reference/countries", query, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// Product loads a product. With versioned set the given version is returned, otherwise the
// catalog picks the current one.
func (c *CatalogClient) Product(ctx context.Context, productID, versionID string, versioned bool) (domain.ProductDetail, error) {
	if strings.TrimSpace(productID) == "" {
		return domain.ProductDetail{}, errors.New("catalog: product id is required")
	}
	query := url.Values{}
	if versioned && strings.TrimSpace(versionID) != "" {
		query.Set("versionId", strings.TrimSpace(versionID))
		query.Set("versioned", strconv.FormatBool(true))
	}
	var product domain.ProductDetail
	if err := c.t.call(ctx, "product", http.MethodGet, segment("products", productID), query, nil, &product); err != nil {
		return domain.ProductDetail{}, err
	}
	return product, nil
}

// UpdateProduct saves payload as versionID and reports whether the catalog accepted it.
func (c *CatalogClient) UpdateProduct(ctx context.Context, payload domain.ProductDetail, versionID string) (bool, error) {
	var result struct {
		Saved bool `json:"saved"`
	}
	endpoint := segment("products", payload.Header.ProductID, "versions", versionID)
	if err := c.t.call(ctx, "update_product", http.MethodPut, endpoint, nil, payload, &result); err != nil {
		return false, err
	}
	return result.Saved, nil
}

// UpdateStatus moves a version to the status identified by its description.
func (c *CatalogClient) UpdateStatus(ctx context.Context, productID, versionID, description string) (string, error) {
	body := map[string]string{"description": strings.TrimSpace(description)}
	var result struct {
		Message string `json:"message"`
	}
	endpoint := segment("products", productID, "versions", versionID) + ":status"
	if err := c.t.call(ctx, "update_status", http.MethodPost, endpoint, nil, body, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

// CreateVersion persists payload as a new version of its product.
func (c *CatalogClient) CreateVersion(ctx context.Context, payload domain.ProductDetail) (map[string]any, error) {
	result := map[string]any{}
	endpoint := segment("products", payload.Header.ProductID, "versions")
	if err := c.t.call(ctx, "create_version", http.MethodPost, endpoint, nil, payload, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Ping checks the catalog health endpoint.
func (c *CatalogClient) Ping(ctx context.Context) error {
	return c.t.ping(ctx)
}
