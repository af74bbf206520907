package services

import (
	"context"
	"sync"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

const formDateLayout = "2006-01-02"

// FormSnapshot is the serialisable state of a FormStateRecorder.
type FormSnapshot struct {
	Values  map[FormField]string `json:"values"`
	Enabled map[FormField]bool   `json:"enabled"`
	Binds   int                  `json:"binds"`
}

// FormStateRecorder is a FormBinder that keeps the bound state in memory so HTTP responses can
// echo what a browser form would display.
type FormStateRecorder struct {
	mu      sync.Mutex
	state   FormState
	bound   bool
	values  map[FormField]string
	enabled map[FormField]bool
	binds   int
}

var _ FormBinder = (*FormStateRecorder)(nil)

// NewFormStateRecorder returns an empty recorder.
func NewFormStateRecorder() *FormStateRecorder {
	return &FormStateRecorder{
		values:  make(map[FormField]string),
		enabled: make(map[FormField]bool),
	}
}

// Bind replaces the bound state and resets every control to the committed product values.
func (r *FormStateRecorder) Bind(_ context.Context, state FormState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.bound = true
	r.binds++

	header := state.Product.Header
	r.values[FieldProductName] = header.Name
	r.values[FieldProductDescription] = header.Description
	r.values[FieldCurrency] = header.Currency
	r.values[FieldEffectiveDate] = formatFormDate(header)
	r.values[FieldExpiryDate] = formatFormExpiry(header)
	r.values[FieldProductVersion] = state.CurrentVersion
	r.values[FieldStatus] = string(header.Status)

	r.enabled[FieldStatus] = state.ShowDiscard
	r.enabled[FieldProductDescription] = state.ShowDiscard
}

// SetFieldValue overrides a single control value.
func (r *FormStateRecorder) SetFieldValue(_ context.Context, field FormField, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[field] = value
}

// SetFieldEnabled toggles a single control.
func (r *FormStateRecorder) SetFieldEnabled(_ context.Context, field FormField, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[field] = enabled
}

// Value returns the current value of field.
func (r *FormStateRecorder) Value(field FormField) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[field]
}

// Enabled reports whether field is enabled.
func (r *FormStateRecorder) Enabled(field FormField) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled[field]
}

// State returns the last bound state and whether Bind was called.
func (r *FormStateRecorder) State() (FormState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.bound
}

// Snapshot copies the control values.
func (r *FormStateRecorder) Snapshot() FormSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := FormSnapshot{
		Values:  make(map[FormField]string, len(r.values)),
		Enabled: make(map[FormField]bool, len(r.enabled)),
		Binds:   r.binds,
	}
	for k, v := range r.values {
		snap.Values[k] = v
	}
	for k, v := range r.enabled {
		snap.Enabled[k] = v
	}
	return snap
}

func formatFormDate(header domain.ProductHeader) string {
	if header.EffectiveDate.IsZero() {
		return ""
	}
	return header.EffectiveDate.Format(formDateLayout)
}

func formatFormExpiry(header domain.ProductHeader) string {
	if header.ExpiryDate.IsZero() {
		return ""
	}
	return header.ExpiryDate.Format(formDateLayout)
}

type noopFormBinder struct{}

func (noopFormBinder) Bind(context.Context, FormState)                 {}
func (noopFormBinder) SetFieldValue(context.Context, FormField, string) {}
func (noopFormBinder) SetFieldEnabled(context.Context, FormField, bool) {}
