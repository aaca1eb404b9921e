// Package tracker derives session lifecycle semantics on top of the
// storage manager: session rows appear on the first event that
// references them, the end time is written exactly once, and aggregate
// counts are recomputed from the event log instead of being cached.
package tracker

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/cwatch/internal/domain"
	"github.com/emiliopalmerini/cwatch/internal/storage"
)

// Tracker applies lifecycle semantics before handing writes to the
// manager.
type Tracker struct {
	store  *storage.Manager
	clock  clock.Clock
	logger *zap.Logger
}

// New builds a tracker over a storage manager.
func New(store *storage.Manager, clk clock.Clock, logger *zap.Logger) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, clock: clk, logger: logger}
}

// Observe records one hook event. SessionStart upserts the full
// session row; Stop/SessionEnd additionally perform the guarded
// end-time write; everything else relies on the inline session
// creation inside SaveEvent. The returned result reports whether the
// event reached a backend.
func (t *Tracker) Observe(ctx context.Context, hook domain.HookEvent, event *domain.Event) storage.SaveResult {
	base := hook.Base()

	if e, ok := hook.(*domain.SessionStartEvent); ok {
		session := &domain.Session{
			ExternalID:  base.SessionID,
			StartTime:   event.Timestamp,
			ProjectPath: base.Cwd,
			Source:      e.Source,
		}
		session.GitBranch, session.GitCommit = gitInfo(base.Cwd)

		if result := t.store.SaveSession(ctx, session); !result.Saved {
			t.logger.Warn("session upsert failed on both backends",
				zap.String("external_session_id", base.SessionID),
			)
		}
	}

	// The event goes in first so a stop arriving for an unseen session
	// creates the row before the end-time write looks for it.
	result := t.store.SaveEvent(ctx, event)

	switch hook.(type) {
	case *domain.StopEvent, *domain.SessionEndEvent:
		// First write wins; a second end event is a no-op inside the
		// backend's conditional update.
		t.store.EndSession(ctx, base.SessionID, t.clock.Now())
	}

	return result
}

// Summary is the read-side view of one session: the stored row plus
// aggregates recomputed from its events.
type Summary struct {
	Session  *domain.Session
	Stats    *domain.SessionStats
	Duration time.Duration
}

// Summarize fetches a session by external id and recomputes its
// aggregates. Duration is zero while the session is still open.
func (t *Tracker) Summarize(ctx context.Context, externalID string) (*Summary, error) {
	session, err := t.store.GetSession(ctx, externalID)
	if err != nil {
		return nil, err
	}

	stats, err := t.store.SessionStats(ctx, session.ID)
	if err != nil {
		// The session row is still useful without aggregates.
		t.logger.Warn("session stats unavailable",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		stats = &domain.SessionStats{}
	}

	summary := &Summary{Session: session, Stats: stats}
	if session.EndTime != nil {
		summary.Duration = session.EndTime.Sub(session.StartTime)
	}
	return summary, nil
}
