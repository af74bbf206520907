package services

import (
	"errors"
	"testing"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

func TestVersionRegistryAddKeepsSinglePendingVersion(t *testing.T) {
	registry := NewVersionRegistry("1.0", "2.0", "1.0", " ")

	if got := registry.List(); len(got) != 2 {
		t.Fatalf("expected blanks and duplicates dropped, got %v", got)
	}
	if err := registry.Add("3.0"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !registry.IsNew("3.0") {
		t.Fatalf("expected 3.0 to be pending")
	}
	if err := registry.Add("4.0"); !errors.Is(err, ErrDuplicatePendingVersion) {
		t.Fatalf("expected ErrDuplicatePendingVersion, got %v", err)
	}
	pending, ok := registry.Pending()
	if !ok || pending.VersionID != "3.0" {
		t.Fatalf("expected pending 3.0, got %+v (%v)", pending, ok)
	}

	if !registry.Remove("3.0") {
		t.Fatalf("expected 3.0 removed")
	}
	if registry.Remove("3.0") {
		t.Fatalf("expected second remove to report false")
	}
	if err := registry.Add("2.0"); !errors.Is(err, ErrVersionExists) {
		t.Fatalf("expected ErrVersionExists, got %v", err)
	}
	if err := registry.Add(""); !errors.Is(err, ErrInvalidVersionID) {
		t.Fatalf("expected ErrInvalidVersionID, got %v", err)
	}
}

func TestVersionRegistryListReturnsCopy(t *testing.T) {
	registry := NewVersionRegistry("1.0")
	list := registry.List()
	list[0].VersionID = "mutated"
	if _, ok := registry.Has("1.0"); !ok {
		t.Fatalf("expected registry to be unaffected by caller mutation")
	}
}

func TestVersioningActive(t *testing.T) {
	persisted := []domain.ProductVersion{{VersionID: "1.0"}, {VersionID: "2.0"}}
	withNew := append(append([]domain.ProductVersion(nil), persisted...), domain.ProductVersion{VersionID: "3.0", IsNew: true})

	cases := []struct {
		name     string
		snapshot domain.PolicySnapshot
		current  string
		versions []domain.ProductVersion
		want     bool
	}{
		{"policies on current version", domain.PolicySnapshot{NumberOfPolicies: 5, Version: "2.0"}, "2.0", persisted, true},
		{"no policies", domain.PolicySnapshot{NumberOfPolicies: 0, Version: "2.0"}, "2.0", persisted, false},
		{"pending version", domain.PolicySnapshot{NumberOfPolicies: 5, Version: "2.0"}, "2.0", withNew, false},
		{"snapshot of other version", domain.PolicySnapshot{NumberOfPolicies: 5, Version: "1.0"}, "2.0", persisted, false},
	}
	for _, tc := range cases {
		if got := versioningActive(tc.snapshot, tc.current, tc.versions); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
