// Package storage owns durable persistence of sessions and events
// across two preference-ordered backends: a remote Turso primary and a
// local embedded SQLite secondary. The Manager fails over per call and
// never lets a backend fault escape as a panic or an error the hook
// pipeline would have to crash on.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/emiliopalmerini/cwatch/internal/domain"
)

// ErrNotFound is returned by lookups when no session matches.
var ErrNotFound = errors.New("session not found")

// Backend is one storage implementation. Both backends speak the same
// schema (see migrations.go). Concurrent upserts for the same external
// session id are resolved by the backend's UNIQUE constraint, not by
// client-side locking: separate hook processes race freely.
type Backend interface {
	Name() string

	// Ping is the cheap existence check used by the health probe.
	Ping(ctx context.Context) error

	// SaveSession upserts keyed on the external session id and
	// returns the resolved internal id. Fields already set on an
	// existing row are not blanked by an upsert carrying empty ones.
	SaveSession(ctx context.Context, session *domain.Session) (string, error)

	// EndSession sets end_time only if it is currently null. Returns
	// whether this call performed the write (first write wins).
	EndSession(ctx context.Context, externalID string, endTime time.Time) (bool, error)

	// SaveEvent inserts one event, creating a minimal session row
	// first when the referenced external session id is unseen. Both
	// writes happen in one short transaction.
	SaveEvent(ctx context.Context, event *domain.Event) error

	GetSession(ctx context.Context, externalID string) (*domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*domain.Session, error)

	// SessionStats recomputes aggregates from the event log.
	SessionStats(ctx context.Context, sessionID string) (*domain.SessionStats, error)

	Close() error
}
