package domain

import "time"

// ReadinessState is the outcome of a dependency check.
type ReadinessState string

const (
	ReadinessReady    ReadinessState = "ready"
	ReadinessDegraded ReadinessState = "degraded"
	ReadinessDown     ReadinessState = "down"
)

// DependencyCheckResult describes one checked dependency.
type DependencyCheckResult struct {
	State     ReadinessState `json:"state"`
	Detail    string         `json:"detail,omitempty"`
	Error     string         `json:"error,omitempty"`
	Latency   time.Duration  `json:"latency"`
	CheckedAt time.Time      `json:"checkedAt"`
}

// ReadinessReport aggregates dependency checks for the readiness endpoint.
type ReadinessReport struct {
	State       ReadinessState                   `json:"state"`
	Checks      map[string]DependencyCheckResult `json:"checks"`
	Version     string                           `json:"version,omitempty"`
	Environment string                           `json:"environment,omitempty"`
	GeneratedAt time.Time                        `json:"generatedAt"`
}
