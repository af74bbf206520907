package regions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTableResolvesCountries(t *testing.T) {
	resolver, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := context.Background()

	cases := map[string]string{
		"IE":  "EMEA",
		"ie":  "EMEA",
		"jp":  "APAC",
		"US":  "AMER",
		"ZA":  "EMEA",
		"???": "EMEA",
	}
	for country, want := range cases {
		got, err := resolver.Region(ctx, country)
		if err != nil {
			t.Fatalf("Region(%q): %v", country, err)
		}
		if got != want {
			t.Fatalf("Region(%q) = %q, want %q", country, got, want)
		}
	}
}

func TestParseWithoutDefaultRejectsUnknownCountry(t *testing.T) {
	resolver, err := Parse([]byte("regions:\n  NORDICS: [se, no]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if region, err := resolver.Region(context.Background(), "SE"); err != nil || region != "NORDICS" {
		t.Fatalf("expected NORDICS, got %q (%v)", region, err)
	}
	if _, err := resolver.Region(context.Background(), "FR"); !errors.Is(err, ErrUnknownCountry) {
		t.Fatalf("expected ErrUnknownCountry, got %v", err)
	}
}

func TestParseRejectsInvalidTables(t *testing.T) {
	cases := map[string]string{
		"empty":     "default: EMEA\n",
		"duplicate": "regions:\n  A: [IE]\n  B: [IE]\n",
		"invalid":   "regions:\n  A: [IRELAND]\n",
		"malformed": "regions: [",
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	if err := os.WriteFile(path, []byte("default: LATAM\nregions:\n  LATAM: [BR]\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	resolver, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if region, _ := resolver.Region(context.Background(), "DE"); region != "LATAM" {
		t.Fatalf("expected fallback LATAM, got %q", region)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
