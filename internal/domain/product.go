package domain

import (
	"strings"
	"time"
)

// Status describes the lifecycle stage of a product version.
type Status string

const (
	// StatusDesign marks a version that is still being authored.
	StatusDesign Status = "DESIGN"
	// StatusFinal marks a version that is published and sellable.
	StatusFinal Status = "FINAL"
	// StatusWithdraw marks a published version taken off sale.
	StatusWithdraw Status = "WITHDRAW"
	// StatusDelete marks a published version scheduled for removal.
	StatusDelete Status = "DELETE"
)

var allowedStatusTransitions = map[Status]map[Status]struct{}{
	StatusDesign: {
		StatusFinal: {},
	},
	StatusFinal: {
		StatusWithdraw: {},
		StatusDelete:   {},
	},
	StatusWithdraw: {},
	StatusDelete:   {},
}

// ParseStatus normalises a raw status code. Unknown codes return false.
func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := allowedStatusTransitions[status]; !ok {
		return "", false
	}
	return status, true
}

// CanTransition reports whether a product version may move from one status to another.
func CanTransition(from, to Status) bool {
	next, ok := allowedStatusTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// InvalidatesPolicyCache reports whether the transition publishes or retires a version,
// which makes cached policy lookups for that version stale.
func InvalidatesPolicyCache(from, to Status) bool {
	switch {
	case from == StatusDesign && to == StatusFinal:
		return true
	case from == StatusFinal && (to == StatusWithdraw || to == StatusDelete):
		return true
	default:
		return false
	}
}

// StatusReference pairs a status code with its operator facing description.
type StatusReference struct {
	Code        Status `json:"code"`
	Description string `json:"description"`
}

// StatusDescription resolves the description for code in refs. Blank descriptions count as missing.
func StatusDescription(refs []StatusReference, code Status) (string, bool) {
	for _, ref := range refs {
		if ref.Code != code {
			continue
		}
		desc := strings.TrimSpace(ref.Description)
		if desc == "" {
			return "", false
		}
		return desc, true
	}
	return "", false
}

// Country is an entry of the region scoped country reference list.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ProductVersion is a version known to the editing session. IsNew marks a version created
// locally that the catalog has not persisted yet.
type ProductVersion struct {
	VersionID string `json:"versionId"`
	IsNew     bool   `json:"isNew"`
}

// VersionStatus is the persisted status record kept per version of a product.
type VersionStatus struct {
	VersionID string `json:"versionId"`
	Status    Status `json:"status"`
}

// PolicySnapshot is the result of a policy count lookup for one product version.
type PolicySnapshot struct {
	NumberOfPolicies int    `json:"numberOfPolicies"`
	Version          string `json:"version"`
}

// ProductContext identifies the product, version and request chain being edited.
type ProductContext struct {
	ProductID        string   `json:"productId"`
	ProductVersionID string   `json:"productVersionId"`
	RequestID        string   `json:"requestId"`
	Country          []string `json:"country"`
	Language         string   `json:"language"`
	Status           Status   `json:"status"`
}

// PrimaryCountry returns the first country of the context or an empty string.
func (c ProductContext) PrimaryCountry() string {
	if len(c.Country) == 0 {
		return ""
	}
	return c.Country[0]
}

// ActiveVersion is the last version id the operator worked on for a product.
type ActiveVersion struct {
	ProductID string `json:"productId"`
	VersionID string `json:"versionId"`
}

// ProductOwnership carries the fields used to decide whether a locked product stays editable.
type ProductOwnership struct {
	CreatedBy    string
	AllowedUsers []string
}

// VersionHistoryEntry is one version listed in a product's history.
type VersionHistoryEntry struct {
	VersionID string    `json:"versionId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProductHeader holds the top level attributes of a product version.
type ProductHeader struct {
	ProductID        string    `json:"productId"`
	VersionID        string    `json:"productVersionId"`
	Name             string    `json:"productName"`
	Description      string    `json:"productDescription"`
	Currency         string    `json:"currency"`
	Status           Status    `json:"status"`
	EffectiveDate    time.Time `json:"effectiveDate"`
	ExpiryDate       time.Time `json:"expiryDate"`
	Country          []string  `json:"country,omitempty"`
	CreatedBy        string    `json:"createdBy,omitempty"`
	AllowedUsers     []string  `json:"allowedUsers,omitempty"`
	IsCurrentVersion bool      `json:"isCurrentVersion"`
}

// ProductDetail is the full product version as served by the catalog.
type ProductDetail struct {
	Header             ProductHeader          `json:"header"`
	VersionHistory     []VersionHistoryEntry  `json:"versionHistory,omitempty"`
	Availability       []AvailabilityStandard `json:"availability,omitempty"`
	CoverageVariants   []CoverageVariant      `json:"coverageVariants,omitempty"`
	CustomAttributes   []CustomAttribute      `json:"customAttributes,omitempty"`
	InsuredObjects     []InsuredObject        `json:"insuredObjects,omitempty"`
	InsuredIndividuals []InsuredIndividual    `json:"insuredIndividuals,omitempty"`
}

// Ownership extracts the lock override inputs from the header.
func (p ProductDetail) Ownership() ProductOwnership {
	return ProductOwnership{
		CreatedBy:    p.Header.CreatedBy,
		AllowedUsers: append([]string(nil), p.Header.AllowedUsers...),
	}
}

// AvailabilityStandard describes where and when a product may be sold.
type AvailabilityStandard struct {
	ID               string   `json:"id"`
	Channel          string   `json:"channel,omitempty"`
	Countries        []string `json:"countries,omitempty"`
	IsCurrentVersion bool     `json:"isCurrentVersion"`
}

// CoverageVariant is a sellable coverage package inside a product.
type CoverageVariant struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	SubCoverages       []SubCoverage       `json:"subCoverages,omitempty"`
	Exclusions         []Exclusion         `json:"exclusions,omitempty"`
	InsuredObjects     []InsuredObject     `json:"insuredObjects,omitempty"`
	InsuredIndividuals []InsuredIndividual `json:"insuredIndividuals,omitempty"`
	IsCurrentVersion   bool                `json:"isCurrentVersion"`
}

// SubCoverage is a coverage line inside a variant.
type SubCoverage struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Exclusions       []Exclusion       `json:"exclusions,omitempty"`
	CustomAttributes []CustomAttribute `json:"customAttributes,omitempty"`
	IsCurrentVersion bool              `json:"isCurrentVersion"`
}

// Exclusion lists a risk the coverage does not pay for.
type Exclusion struct {
	ID               string `json:"id"`
	Description      string `json:"description"`
	IsCurrentVersion bool   `json:"isCurrentVersion"`
}

// CustomAttribute is an operator defined attribute attached to a product node.
type CustomAttribute struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Value            string `json:"value,omitempty"`
	IsCurrentVersion bool   `json:"isCurrentVersion"`
}

// InsuredObject is a thing the product insures.
type InsuredObject struct {
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	CustomAttributes []CustomAttribute `json:"customAttributes,omitempty"`
	IsCurrentVersion bool              `json:"isCurrentVersion"`
}

// InsuredIndividual is a person category the product insures.
type InsuredIndividual struct {
	ID               string            `json:"id"`
	Role             string            `json:"role"`
	CustomAttributes []CustomAttribute `json:"customAttributes,omitempty"`
	IsCurrentVersion bool              `json:"isCurrentVersion"`
}

// MappingPayload carries the rating input mappings of a product version.
type MappingPayload struct {
	Rows []map[string]any `json:"rows"`
}

// CacheInvalidation lists cache keys to purge in the policy count service.
type CacheInvalidation struct {
	Keys []string `json:"keys"`
}

// ProductCacheKey formats the cache key for a product version.
func ProductCacheKey(productID, versionID string) string {
	return "Product:" + productID + "-" + versionID
}
