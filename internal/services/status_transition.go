package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

// ChangeStatus moves the current version to newStatus through the catalog. A status without a
// description in the reference list is skipped silently, mirroring how the catalog only accepts
// described statuses.
func (l *VersionLifecycle) ChangeStatus(ctx context.Context, newStatus domain.Status) (err error) {
	l.mu.Lock()
	if l.product == nil {
		l.mu.Unlock()
		return ErrProductNotBound
	}
	description, described := domain.StatusDescription(l.statuses, newStatus)
	productID := l.productID
	versionID := l.current
	pending := l.registry.IsNew(versionID)
	boundStatus := l.product.Header.Status
	header := l.product.Header
	l.mu.Unlock()

	if !described {
		l.logger(ctx, "status_transition.description_missing", map[string]any{"productId": productID, "status": string(newStatus)})
		return nil
	}
	if pending {
		return fmt.Errorf("%w: %s", ErrVersionNotPersisted, versionID)
	}

	ctx, span := tracer.Start(ctx, "VersionLifecycle.ChangeStatus", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.String("version.id", versionID),
		attribute.String("status.to", string(newStatus)),
	))
	defer func() {
		l.metrics.operation(ctx, "change_status", err)
		endSpan(span, err)
	}()

	pctx, err := l.context.Get(ctx)
	if err != nil {
		l.notify(ctx, NoticeError, msgStatusChangeFailure, "")
		l.logger(ctx, "status_transition.context_unavailable", map[string]any{"productId": productID, "error": err.Error()})
		return &LifecycleError{Kind: KindStatusChangeFailure, Op: "change_status", Err: err}
	}
	from := boundStatus
	if pctx.ProductID == productID && pctx.ProductVersionID == versionID && pctx.Status != "" {
		from = pctx.Status
	}
	if !domain.CanTransition(from, newStatus) {
		return fmt.Errorf("%w: %s to %s", ErrStatusTransitionNotAllowed, from, newStatus)
	}

	if _, err := l.catalog.UpdateStatus(ctx, productID, versionID, description); err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && len(remote.FieldErrors) > 0 {
			for _, field := range remote.SortedFields() {
				l.notify(ctx, NoticeError, remote.FieldErrors[field], field)
			}
			l.forms.SetFieldValue(ctx, FieldStatus, string(from))
		}
		// TODO: plain string failures neither notify nor revert the status control; unify with the
		// field error path once the catalog documents its error bodies.
		l.logger(ctx, "status_transition.failed", map[string]any{"productId": productID, "versionId": versionID, "error": err.Error()})
		return &LifecycleError{Kind: KindStatusChangeFailure, Op: "change_status", Err: err}
	}
	l.metrics.transition(ctx, string(from), string(newStatus))

	if domain.InvalidatesPolicyCache(from, newStatus) {
		l.clearPolicyCache(ctx, productID, versionID, productCountry(header, pctx.PrimaryCountry()))
	}

	if err := l.context.Set(ctx, productID, versionID, pctx.RequestID, pctx.Country, pctx.Language, newStatus); err != nil {
		l.logger(ctx, "status_transition.persist_context_failed", map[string]any{"productId": productID, "error": err.Error()})
	}
	if err := l.recordVersionStatus(ctx, productID, versionID, newStatus); err != nil {
		l.logger(ctx, "status_transition.persist_versions_failed", map[string]any{"productId": productID, "error": err.Error()})
	}

	l.mu.Lock()
	if l.product != nil && l.productID == productID && l.current == versionID {
		l.product.Header.Status = newStatus
		for i := range l.product.VersionHistory {
			if l.product.VersionHistory[i].VersionID == versionID {
				l.product.VersionHistory[i].Status = newStatus
			}
		}
	}
	l.mu.Unlock()

	l.notify(ctx, NoticeSuccess, fmt.Sprintf("Status changed to %s.", description), "")
	l.publish(ctx, LifecycleEvent{
		Type:       EventStatusChanged,
		ProductID:  productID,
		VersionID:  versionID,
		FromStatus: from,
		ToStatus:   newStatus,
		RequestID:  pctx.RequestID,
	})
	return l.Initialize(ctx, productID, InitializeOptions{StatusUpdate: true})
}

func (l *VersionLifecycle) clearPolicyCache(ctx context.Context, productID, versionID, country string) {
	region, err := l.regionFor(ctx, productID, country)
	if err == nil {
		err = l.policies.ClearProductCache(ctx, domain.CacheInvalidation{
			Keys: []string{domain.ProductCacheKey(productID, versionID)},
		}, region)
	}
	if err != nil {
		l.logger(ctx, "status_transition.cache_clear_failed", map[string]any{"productId": productID, "versionId": versionID, "error": err.Error()})
	}
}

func (l *VersionLifecycle) recordVersionStatus(ctx context.Context, productID, versionID string, status domain.Status) error {
	versions, err := l.context.Versions(ctx, productID)
	if err != nil {
		return err
	}
	found := false
	for i := range versions {
		if versions[i].VersionID == versionID {
			versions[i].Status = status
			found = true
		}
	}
	if !found {
		versions = append(versions, domain.VersionStatus{VersionID: versionID, Status: status})
	}
	return l.context.SetVersions(ctx, productID, versions)
}
