package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"

	"github.com/hanko-field/product-studio/internal/repositories"
)

const defaultSessionIdleTTL = 30 * time.Minute

// SessionManagerDeps lists the shared collaborators handed to every session.
type SessionManagerDeps struct {
	Store          repositories.ContextStore
	Catalog        CatalogClient
	Policies       PolicyCountClient
	Mappings       RatingMappingClient
	Regions        RegionResolver
	Events         LifecycleEventPublisher
	DefaultCountry string
	IdleTTL        time.Duration
	Meter          metric.Meter
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

// Session bundles the per-session lifecycle with its form recorder and notice log.
type Session struct {
	ID        string
	Lifecycle *VersionLifecycle
	Forms     *FormStateRecorder
	Notices   *NoticeLog

	lastUsed time.Time
}

// SessionManager owns the editing sessions of the process and evicts idle ones.
type SessionManager struct {
	deps      SessionManagerDeps
	idleTTL   time.Duration
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager validates the shared collaborators.
func NewSessionManager(deps SessionManagerDeps) (*SessionManager, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("session manager: context store is required")
	case deps.Catalog == nil:
		return nil, errors.New("session manager: catalog client is required")
	case deps.Policies == nil:
		return nil, errors.New("session manager: policy count client is required")
	case deps.Mappings == nil:
		return nil, errors.New("session manager: rating mapping client is required")
	case deps.Regions == nil:
		return nil, errors.New("session manager: region resolver is required")
	}
	idle := deps.IdleTTL
	if idle <= 0 {
		idle = defaultSessionIdleTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SessionManager{
		deps:      deps,
		idleTTL:   idle,
		clock:     clock,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
		sessions:  make(map[string]*Session),
	}, nil
}

// Open returns the session for id, creating it when unknown. Ids that are not valid ULIDs are
// replaced by a fresh one; a known-format id is reused so a client can resume records kept in a
// durable store after a restart.
func (m *SessionManager) Open(ctx context.Context, id string) (*Session, bool, error) {
	id = strings.TrimSpace(id)
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		session.lastUsed = m.clock()
		return session, false, nil
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		id = ulid.Make().String()
	}

	session, err := m.newSession(id)
	if err != nil {
		return nil, false, err
	}
	m.sessions[id] = session
	m.logger(ctx, "session.opened", map[string]any{"sessionId": id})
	return session, true, nil
}

// Get returns a known session without creating one.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[strings.TrimSpace(id)]
	if ok {
		session.lastUsed = m.clock()
	}
	return session, ok
}

// Len reports the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends a session and releases its stored records.
func (m *SessionManager) Close(ctx context.Context, id string) bool {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.release(ctx, session)
	return true
}

// Sweep evicts sessions idle for longer than the configured TTL and returns how many it removed.
func (m *SessionManager) Sweep(ctx context.Context) int {
	cutoff := m.clock().Add(-m.idleTTL)
	var expired []*Session
	m.mu.Lock()
	for id, session := range m.sessions {
		if session.lastUsed.Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		m.release(ctx, session)
	}
	if len(expired) > 0 {
		m.logger(ctx, "session.swept", map[string]any{"evicted": len(expired)})
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is done.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Shutdown waits for background work of every session without dropping stored records.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()
	for _, session := range sessions {
		session.Lifecycle.Close()
	}
}

func (m *SessionManager) newSession(id string) (*Session, error) {
	accessor, err := NewProductContextAccessor(ProductContextDeps{
		Store:          m.deps.Store,
		Namespace:      id,
		DefaultCountry: m.deps.DefaultCountry,
		Logger:         m.deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	forms := NewFormStateRecorder()
	notices := NewNoticeLog(0, m.clock)
	lifecycle, err := NewVersionLifecycle(VersionLifecycleDeps{
		SessionID: id,
		Catalog:   m.deps.Catalog,
		Policies:  m.deps.Policies,
		Mappings:  m.deps.Mappings,
		Regions:   m.deps.Regions,
		Context:   accessor,
		Registry:  NewVersionRegistry(),
		Forms:     forms,
		Notifier:  notices,
		Events:    m.deps.Events,
		Sanitizer: m.sanitizer,
		Meter:     m.deps.Meter,
		Clock:     m.clock,
		Logger:    m.deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		Lifecycle: lifecycle,
		Forms:     forms,
		Notices:   notices,
		lastUsed:  m.clock(),
	}, nil
}

func (m *SessionManager) release(ctx context.Context, session *Session) {
	session.Lifecycle.Close()
	dropper, ok := m.deps.Store.(repositories.NamespaceDropper)
	if !ok {
		return
	}
	if err := dropper.DropNamespace(ctx, session.ID); err != nil {
		m.logger(ctx, "session.release_failed", map[string]any{"sessionId": session.ID, "error": err.Error()})
	}
}
