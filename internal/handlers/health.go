package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/hanko-field/product-studio/internal/domain"
	"github.com/hanko-field/product-studio/internal/platform/httpx"
	"github.com/hanko-field/product-studio/internal/repositories"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves liveness and readiness checks.
type HealthHandlers struct {
	build     BuildInfo
	readiness repositories.ReadinessRepository
	now       func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata echoed by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock injects a custom clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// WithHealthReadiness wires the dependency checks behind /readyz.
func WithHealthReadiness(repo repositories.ReadinessRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = repo
	}
}

// NewHealthHandlers constructs the check handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type healthzResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	writeJSONResponse(w, http.StatusOK, healthzResponse{
		Status:      "ok",
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

type readyzResponse struct {
	Status      string                                  `json:"status"`
	Checks      map[string]domain.DependencyCheckResult `json:"checks"`
	Details     []string                                `json:"details,omitempty"`
	Version     string                                  `json:"version,omitempty"`
	Environment string                                  `json:"environment,omitempty"`
	GeneratedAt time.Time                               `json:"generatedAt"`
}

// Readyz checks downstream dependencies and answers 503 unless every check is ready.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.readiness == nil {
		writeJSONResponse(w, http.StatusOK, readyzResponse{
			Status:      string(domain.ReadinessReady),
			Checks:      map[string]domain.DependencyCheckResult{},
			GeneratedAt: h.now().UTC(),
		})
		return
	}

	report, err := h.readiness.Collect(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("readiness_unavailable", err.Error(), http.StatusServiceUnavailable))
		return
	}

	resp := readyzResponse{
		Status:      string(report.State),
		Checks:      report.Checks,
		Version:     report.Version,
		Environment: report.Environment,
		GeneratedAt: report.GeneratedAt,
	}
	if resp.Checks == nil {
		resp.Checks = map[string]domain.DependencyCheckResult{}
	}
	for _, name := range sortedCheckNames(report.Checks) {
		check := report.Checks[name]
		if check.State == domain.ReadinessReady {
			continue
		}
		detail := strings.TrimSpace(check.Error)
		if detail == "" {
			detail = string(check.State)
		}
		resp.Details = append(resp.Details, name+": "+detail)
	}

	status := http.StatusOK
	if report.State != domain.ReadinessReady {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}

func sortedCheckNames(checks map[string]domain.DependencyCheckResult) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
