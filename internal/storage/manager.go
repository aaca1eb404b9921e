package storage

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/cwatch/internal/domain"
)

// SaveResult is the outcome of a write. Saved=false means neither
// backend accepted the data; the caller reports it and continues.
type SaveResult struct {
	Saved     bool
	Backend   string
	SessionID string
}

// ManagerConfig wires a Manager. Secondary is required; Primary may be
// nil for local-only operation.
type ManagerConfig struct {
	Primary       Backend
	Secondary     Backend
	Timeout       time.Duration
	ProbePath     string
	ProbeInterval time.Duration
	Clock         clock.Clock
	Logger        *zap.Logger
}

// Manager is the preference-ordered failover layer over the two
// backends. Every public operation returns a result value; nothing
// panics or throws across this boundary. There is no reconciliation
// between backends: the primary is preferred per call and the
// secondary catches whatever the primary cannot take.
type Manager struct {
	primary   Backend
	secondary Backend
	timeout   time.Duration
	probe     *healthProbe
	clock     clock.Clock
	logger    *zap.Logger
}

// NewManager builds the failover manager.
func NewManager(cfg ManagerConfig) *Manager {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Manager{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		timeout:   timeout,
		probe:     newHealthProbe(cfg.ProbePath, interval, timeout, clk, logger),
		clock:     clk,
		logger:    logger,
	}
}

// Close releases both backends.
func (m *Manager) Close() {
	if m.primary != nil {
		if err := m.primary.Close(); err != nil {
			m.logger.Warn("closing primary backend", zap.Error(err))
		}
	}
	if m.secondary != nil {
		if err := m.secondary.Close(); err != nil {
			m.logger.Warn("closing secondary backend", zap.Error(err))
		}
	}
}

// backends returns the backends to try, in preference order, for this
// call. The primary is skipped while the cached probe marks it
// unhealthy.
func (m *Manager) backends(ctx context.Context) []Backend {
	if m.primary == nil {
		return []Backend{m.secondary}
	}
	if !m.probe.Check(ctx, m.primary) {
		return []Backend{m.secondary}
	}
	return []Backend{m.primary, m.secondary}
}

// callCtx bounds one backend call. A timeout is treated identically to
// a hard failure and triggers failover.
func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.timeout)
}

// failed logs a backend failure and, when the failing backend is the
// primary, marks it unhealthy for subsequent invocations.
func (m *Manager) failed(backend Backend, op string, err error) {
	m.logger.Warn("backend call failed",
		zap.String("backend", backend.Name()),
		zap.String("op", op),
		zap.Error(err),
	)
	if backend == m.primary {
		m.probe.MarkUnhealthy()
	}
}

// SaveSession upserts a session, trying the primary first. The second
// return carries the resolved session id from whichever backend
// accepted it.
func (m *Manager) SaveSession(ctx context.Context, session *domain.Session) SaveResult {
	for _, backend := range m.backends(ctx) {
		callCtx, cancel := m.callCtx(ctx)
		id, err := backend.SaveSession(callCtx, session)
		cancel()
		if err != nil {
			m.failed(backend, "save_session", err)
			continue
		}
		return SaveResult{Saved: true, Backend: backend.Name(), SessionID: id}
	}
	return SaveResult{}
}

// SaveEvent persists one event. The backend creates the session inline
// when the external session id is unseen, so an event is never dropped
// for lack of an explicit session start.
func (m *Manager) SaveEvent(ctx context.Context, event *domain.Event) SaveResult {
	for _, backend := range m.backends(ctx) {
		callCtx, cancel := m.callCtx(ctx)
		err := backend.SaveEvent(callCtx, event)
		cancel()
		if err != nil {
			m.failed(backend, "save_event", err)
			continue
		}
		return SaveResult{Saved: true, Backend: backend.Name(), SessionID: event.SessionID}
	}
	return SaveResult{}
}

// EndSession performs the guarded end-time write. The conditional
// update inside each backend makes the first writer win. A backend
// that answers without matching a row does not stop the loop: the
// session may live only on the secondary after a primary outage.
func (m *Manager) EndSession(ctx context.Context, externalID string, endTime time.Time) SaveResult {
	var result SaveResult
	for _, backend := range m.backends(ctx) {
		callCtx, cancel := m.callCtx(ctx)
		wrote, err := backend.EndSession(callCtx, externalID, endTime)
		cancel()
		if err != nil {
			m.failed(backend, "end_session", err)
			continue
		}
		if wrote {
			return SaveResult{Saved: true, Backend: backend.Name()}
		}
		if !result.Saved {
			result = SaveResult{Saved: true, Backend: backend.Name()}
		}
	}
	return result
}

// GetSession looks up a session by external id, preferring the
// primary. ErrNotFound from the primary falls through to the secondary
// so data saved during an outage stays reachable.
func (m *Manager) GetSession(ctx context.Context, externalID string) (*domain.Session, error) {
	var lastErr error = ErrNotFound
	for _, backend := range m.backends(ctx) {
		callCtx, cancel := m.callCtx(ctx)
		session, err := backend.GetSession(callCtx, externalID)
		cancel()
		if err == nil {
			return session, nil
		}
		if err != ErrNotFound {
			m.failed(backend, "get_session", err)
		}
		lastErr = err
	}
	return nil, lastErr
}

// ListSessions returns recent sessions from the first backend that
// answers.
func (m *Manager) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	var lastErr error
	for _, backend := range m.backends(ctx) {
		callCtx, cancel := m.callCtx(ctx)
		sessions, err := backend.ListSessions(callCtx, limit)
		cancel()
		if err == nil {
			return sessions, nil
		}
		m.failed(backend, "list_sessions", err)
		lastErr = err
	}
	return nil, lastErr
}

// SessionStats recomputes aggregates for an internal session id.
func (m *Manager) SessionStats(ctx context.Context, sessionID string) (*domain.SessionStats, error) {
	var lastErr error
	for _, backend := range m.backends(ctx) {
		callCtx, cancel := m.callCtx(ctx)
		stats, err := backend.SessionStats(callCtx, sessionID)
		cancel()
		if err == nil {
			return stats, nil
		}
		m.failed(backend, "session_stats", err)
		lastErr = err
	}
	return nil, lastErr
}
