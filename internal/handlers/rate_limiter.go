package handlers

import (
	"strings"
	"sync"
	"time"
)

// sessionOpenLimiter caps how many editing sessions an operator may open in a fixed window.
// Requests carrying a live session id never reach it.
type sessionOpenLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]openWindow
}

type openWindow struct {
	opened  int
	resetAt time.Time
}

// newSessionOpenLimiter returns nil when limiting is disabled.
func newSessionOpenLimiter(limit int, window time.Duration, clock func() time.Time) *sessionOpenLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &sessionOpenLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]openWindow),
	}
}

// reserve records a session open for operator. When the quota is spent it reports how long
// the operator has to wait for the window to reset.
func (l *sessionOpenLimiter) reserve(operator string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		operator = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[operator]
	if !ok || !now.Before(current.resetAt) {
		l.dropExpiredLocked(now)
		l.windows[operator] = openWindow{opened: 1, resetAt: now.Add(l.window)}
		return true, 0
	}
	if current.opened >= l.limit {
		return false, current.resetAt.Sub(now)
	}
	current.opened++
	l.windows[operator] = current
	return true, 0
}

func (l *sessionOpenLimiter) dropExpiredLocked(now time.Time) {
	for operator, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, operator)
		}
	}
}
