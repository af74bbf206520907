package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/product-studio/internal/domain"
)

const defaultCheckTimeout = 1500 * time.Millisecond

// DependencyCheck names a dependency and the function used to reach it.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// ReadinessOption customises the check-backed readiness repository.
type ReadinessOption func(*checkReadinessRepository)

// WithCheckTimeout overrides the timeout applied when a check omits its own.
func WithCheckTimeout(timeout time.Duration) ReadinessOption {
	return func(repo *checkReadinessRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

// WithReadinessClock injects a custom clock.
func WithReadinessClock(clock func() time.Time) ReadinessOption {
	return func(repo *checkReadinessRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

// WithBuildInfo stamps the version and environment onto every report.
func WithBuildInfo(version, environment string) ReadinessOption {
	return func(repo *checkReadinessRepository) {
		repo.version = strings.TrimSpace(version)
		repo.environment = strings.TrimSpace(environment)
	}
}

type checkReadinessRepository struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
	now            func() time.Time
	version        string
	environment    string
}

var _ ReadinessRepository = (*checkReadinessRepository)(nil)

// NewReadinessRepository validates checks and returns a repository that runs them concurrently.
func NewReadinessRepository(checks []DependencyCheck, opts ...ReadinessOption) (ReadinessRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("readiness repository: at least one check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("readiness repository: check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("readiness repository: check %s missing function", check.Name)
		}
	}

	repo := &checkReadinessRepository{
		checks:         append([]DependencyCheck(nil), checks...),
		defaultTimeout: defaultCheckTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *checkReadinessRepository) Collect(ctx context.Context) (domain.ReadinessReport, error) {
	if ctx == nil {
		return domain.ReadinessReport{}, errors.New("readiness repository: context is required")
	}

	results := make(map[string]domain.DependencyCheckResult, len(r.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range r.checks {
		wg.Add(1)
		go func(check DependencyCheck) {
			defer wg.Done()
			result := r.run(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	state := domain.ReadinessReady
	for _, result := range results {
		switch result.State {
		case domain.ReadinessDown:
			state = domain.ReadinessDown
		case domain.ReadinessDegraded:
			if state == domain.ReadinessReady {
				state = domain.ReadinessDegraded
			}
		}
	}

	return domain.ReadinessReport{
		State:       state,
		Checks:      results,
		Version:     r.version,
		Environment: r.environment,
		GeneratedAt: r.now(),
	}, nil
}

func (r *checkReadinessRepository) run(ctx context.Context, check DependencyCheck) domain.DependencyCheckResult {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(checkCtx)
	end := r.now()

	result := domain.DependencyCheckResult{
		State:     domain.ReadinessReady,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	if err == nil && checkCtx.Err() != nil {
		err = checkCtx.Err()
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.State, result.Detail, result.Error = domain.ReadinessDown, "timeout", err.Error()
	case errors.Is(err, context.Canceled):
		result.State, result.Detail, result.Error = domain.ReadinessDown, "cancelled", err.Error()
	case IsUnavailable(err):
		result.State, result.Detail, result.Error = domain.ReadinessDown, "unavailable", err.Error()
	default:
		result.State, result.Detail, result.Error = domain.ReadinessDegraded, err.Error(), err.Error()
	}
	return result
}
