package services

import (
	"fmt"
	"strings"
	"sync"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

// VersionRegistry is the ordered list of versions known to an editing session. It holds every
// persisted version plus at most one pending new version.
type VersionRegistry struct {
	mu       sync.RWMutex
	versions []domain.ProductVersion
}

// NewVersionRegistry seeds a registry with persisted version ids.
func NewVersionRegistry(ids ...string) *VersionRegistry {
	r := &VersionRegistry{}
	r.Reset(ids)
	return r
}

// List returns the versions in storage order.
func (r *VersionRegistry) List() []domain.ProductVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ProductVersion(nil), r.versions...)
}

// Has looks up a version by id.
func (r *VersionRegistry) Has(id string) (domain.ProductVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions {
		if v.VersionID == id {
			return v, true
		}
	}
	return domain.ProductVersion{}, false
}

// IsNew reports whether id is the pending version.
func (r *VersionRegistry) IsNew(id string) bool {
	v, ok := r.Has(id)
	return ok && v.IsNew
}

// Pending returns the pending version, if any.
func (r *VersionRegistry) Pending() (domain.ProductVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pendingOf(r.versions)
}

// Add appends id as the pending version.
func (r *VersionRegistry) Add(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("version registry: %w", ErrInvalidVersionID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if pending, ok := pendingOf(r.versions); ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePendingVersion, pending.VersionID)
	}
	for _, v := range r.versions {
		if v.VersionID == id {
			return fmt.Errorf("%w: %s", ErrVersionExists, id)
		}
	}
	r.versions = append(r.versions, domain.ProductVersion{VersionID: id, IsNew: true})
	return nil
}

// Remove deletes id and reports whether it was present.
func (r *VersionRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.versions {
		if v.VersionID == id {
			r.versions = append(r.versions[:i:i], r.versions[i+1:]...)
			return true
		}
	}
	return false
}

// Reset replaces the registry with persisted ids, skipping blanks and duplicates.
func (r *VersionRegistry) Reset(ids []string) {
	versions := make([]domain.ProductVersion, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		versions = append(versions, domain.ProductVersion{VersionID: id})
	}
	r.mu.Lock()
	r.versions = versions
	r.mu.Unlock()
}

func pendingOf(versions []domain.ProductVersion) (domain.ProductVersion, bool) {
	for _, v := range versions {
		if v.IsNew {
			return v, true
		}
	}
	return domain.ProductVersion{}, false
}

// versioningActive reports whether the current version already carries policies and no draft is
// pending, which freezes structural edits.
func versioningActive(snapshot domain.PolicySnapshot, current string, versions []domain.ProductVersion) bool {
	if snapshot.NumberOfPolicies <= 0 || snapshot.Version != current {
		return false
	}
	_, pending := pendingOf(versions)
	return !pending
}
