// Package regions maps ISO-3166 country codes to the catalog regions that scope reference data
// and policy lookups.
package regions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/hanko-field/product-studio/internal/services"
)

// ErrUnknownCountry is returned when a country maps to no region and no default is configured.
var ErrUnknownCountry = errors.New("regions: country has no region")

// DefaultTable is used when no regions file is configured.
const DefaultTable = `
default: EMEA
regions:
  EMEA: [IE, GB, DE, FR, ES, IT, NL, BE, PT, AT, CH, SE, NO, DK, FI, PL]
  AMER: [US, CA, MX, BR, AR, CL]
  APAC: [JP, AU, NZ, SG, HK, IN]
`

type tableFile struct {
	Default string              `yaml:"default"`
	Regions map[string][]string `yaml:"regions"`
}

// Resolver implements services.RegionResolver from a static table.
type Resolver struct {
	byCountry map[string]string
	fallback  string
}

var _ services.RegionResolver = (*Resolver)(nil)

// Parse builds a resolver from a YAML table. A country listed under two regions is rejected.
func Parse(data []byte) (*Resolver, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("regions: parse table: %w", err)
	}
	if len(file.Regions) == 0 {
		return nil, errors.New("regions: table lists no regions")
	}

	names := make([]string, 0, len(file.Regions))
	for name := range file.Regions {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &Resolver{byCountry: make(map[string]string), fallback: strings.TrimSpace(file.Default)}
	for _, name := range names {
		region := strings.TrimSpace(name)
		for _, raw := range file.Regions[name] {
			code, err := canonicalCountry(raw)
			if err != nil {
				return nil, fmt.Errorf("regions: region %s: %w", region, err)
			}
			if existing, ok := r.byCountry[code]; ok && existing != region {
				return nil, fmt.Errorf("regions: country %s listed under %s and %s", code, existing, region)
			}
			r.byCountry[code] = region
		}
	}
	return r, nil
}

// Load reads a YAML table from path, or the built in table when path is empty.
func Load(path string) (*Resolver, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Parse([]byte(DefaultTable))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("regions: read %s: %w", path, err)
	}
	return Parse(data)
}

// Region returns the region of country, falling back to the table default.
func (r *Resolver) Region(_ context.Context, country string) (string, error) {
	code, err := canonicalCountry(country)
	if err == nil {
		if region, ok := r.byCountry[code]; ok {
			return region, nil
		}
	}
	if r.fallback != "" {
		return r.fallback, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCountry, country)
}

func canonicalCountry(raw string) (string, error) {
	region, err := language.ParseRegion(strings.TrimSpace(raw))
	if err != nil || !region.IsCountry() {
		return "", fmt.Errorf("invalid country code %q", raw)
	}
	return region.String(), nil
}
