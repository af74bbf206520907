package catalogapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/services"
)

// PolicyClient implements services.PolicyCountClient.
type PolicyClient struct {
	t *transport
}

var _ services.PolicyCountClient = (*PolicyClient)(nil)

// NewPolicyClient constructs a policy service client rooted at baseURL.
func NewPolicyClient(baseURL string, opts ...Option) (*PolicyClient, error) {
	t, err := newTransport("policy", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &PolicyClient{t: t}, nil
}

// PolicyCount returns the number of policies written against a product version in region.
func (c *PolicyClient) PolicyCount(ctx context.Context, productID, versionID, region string) (int, error) {
	query := regionQuery(region)
	var result struct {
		NumberOfPolicies int `json:"numberOfPolicies"`
	}
	endpoint := segment("products", productID, "versions", versionID, "policies") + ":count"
	if err := c.t.call(ctx, "policy_count", http.MethodGet, endpoint, query, nil, &result); err != nil {
		return 0, err
	}
	return result.NumberOfPolicies, nil
}

// ClearProductCache invalidates cached policy lookups in region.
func (c *PolicyClient) ClearProductCache(ctx context.Context, keys domain.CacheInvalidation, region string) error {
	return c.t.call(ctx, "clear_cache", http.MethodPost, "/cache:clear", regionQuery(region), keys, nil)
}

// Ping checks the policy service health endpoint.
func (c *PolicyClient) Ping(ctx context.Context) error {
	return c.t.ping(ctx)
}

func regionQuery(region string) url.Values {
	query := url.Values{}
	if region = strings.TrimSpace(region); region != "" {
		query.Set("region", region)
	}
	return query
}
