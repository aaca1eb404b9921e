package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/emiliopalmerini/cwatch/internal/domain"
)

// SQLiteBackend is the local embedded secondary. It must be available
// whenever the disk is, so the Manager can always fall back to it.
// Writes use short IMMEDIATE transactions; busy_timeout retries lock
// contention from concurrent hook processes hitting the same file.
type SQLiteBackend struct {
	pool *sqlitex.Pool
	path string
}

// OpenSQLite opens (and creates if needed) the local database and
// applies pending migrations. A pool of two connections is plenty for
// one short-lived invocation.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating local store directory: %w", err)
		}
	}

	poolSize := 2
	if path == ":memory:" {
		// Each in-memory connection is an independent database.
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
				"PRAGMA foreign_keys=ON",
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("%s: %w", pragma, err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening local store %s: %w", path, err)
	}

	backend := &SQLiteBackend{pool: pool, path: path}
	if err := backend.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	return backend, nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Close() error { return b.pool.Close() }

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("local migrate: %w", err)
	}
	defer b.pool.Put(conn)

	if err := sqlitex.ExecuteTransient(conn, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)`, nil); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var current int64
	if err := sqlitex.ExecuteTransient(conn, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			current = stmt.ColumnInt64(0)
			return nil
		},
	}); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range Migrations {
		if int64(m.Version) <= current {
			continue
		}
		if err := sqlitex.ExecuteScript(conn, m.SQL, nil); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if err := sqlitex.ExecuteTransient(conn,
			"INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)",
			&sqlitex.ExecOptions{Args: []any{m.Version}},
		); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite ping: %w", err)
	}
	defer b.pool.Put(conn)
	return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
}

func (b *SQLiteBackend) SaveSession(ctx context.Context, session *domain.Session) (string, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("saving session: %w", err)
	}
	defer b.pool.Put(conn)

	return b.upsertSession(conn, session)
}

func (b *SQLiteBackend) upsertSession(conn *sqlite.Conn, session *domain.Session) (string, error) {
	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}

	start := session.StartTime
	if start.IsZero() {
		start = time.Now().UTC()
	}

	var resolved string
	err := sqlitex.Execute(conn, upsertSessionSQL, &sqlitex.ExecOptions{
		Args: []any{
			id,
			session.ExternalID,
			start.UTC().Format(time.RFC3339),
			session.ProjectPath,
			session.GitBranch,
			session.GitCommit,
			session.Source,
			time.Now().UTC().Format(time.RFC3339),
		},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			resolved = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("upserting session: %w", err)
	}

	return resolved, nil
}

func (b *SQLiteBackend) EndSession(ctx context.Context, externalID string, endTime time.Time) (bool, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("ending session: %w", err)
	}
	defer b.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE sessions SET end_time = ? WHERE external_session_id = ? AND end_time IS NULL",
		&sqlitex.ExecOptions{
			Args: []any{endTime.UTC().Format(time.RFC3339), externalID},
		},
	)
	if err != nil {
		return false, fmt.Errorf("ending session: %w", err)
	}

	return conn.Changes() > 0, nil
}

func (b *SQLiteBackend) SaveEvent(ctx context.Context, event *domain.Event) (err error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}

	conn, err := b.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("saving event: %w", err)
	}
	defer b.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("starting event transaction: %w", err)
	}
	defer endTransaction(&err)

	sessionID, err := b.upsertSession(conn, &domain.Session{
		ExternalID: event.ExternalSessionID,
		StartTime:  event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("ensuring session for event: %w", err)
	}

	var durationMs any
	if event.DurationMs != nil {
		durationMs = *event.DurationMs
	}
	var toolName any
	if event.ToolName != "" {
		toolName = event.ToolName
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO events (session_id, event_type, hook_event_name, timestamp, data, tool_name, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				sessionID,
				string(event.Type),
				event.HookEventName,
				event.Timestamp.UTC().Format(time.RFC3339),
				string(data),
				toolName,
				durationMs,
				time.Now().UTC().Format(time.RFC3339),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	event.SessionID = sessionID
	event.ID = conn.LastInsertRowID()
	return nil
}

func (b *SQLiteBackend) GetSession(ctx context.Context, externalID string) (*domain.Session, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	defer b.pool.Put(conn)

	var session *domain.Session
	err = sqlitex.Execute(conn, selectSessionSQL+" WHERE external_session_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{externalID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				session = sessionFromStmt(stmt)
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

func (b *SQLiteBackend) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	conn, err := b.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer b.pool.Put(conn)

	var sessions []*domain.Session
	err = sqlitex.Execute(conn, selectSessionSQL+" ORDER BY created_at DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sessions = append(sessions, sessionFromStmt(stmt))
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

func (b *SQLiteBackend) SessionStats(ctx context.Context, sessionID string) (*domain.SessionStats, error) {
	conn, err := b.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing session stats: %w", err)
	}
	defer b.pool.Put(conn)

	var stats domain.SessionStats
	err = sqlitex.Execute(conn, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN event_type = 'tool_use' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN event_type = 'prompt' THEN 1 ELSE 0 END), 0)
		FROM events WHERE session_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sessionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.TotalEvents = stmt.ColumnInt64(0)
				stats.ToolUses = stmt.ColumnInt64(1)
				stats.Prompts = stmt.ColumnInt64(2)
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("computing session stats: %w", err)
	}
	return &stats, nil
}

// sessionFromStmt reads one row of selectSessionSQL column order.
func sessionFromStmt(stmt *sqlite.Stmt) *domain.Session {
	session := &domain.Session{
		ID:          stmt.ColumnText(0),
		ExternalID:  stmt.ColumnText(1),
		ProjectPath: stmt.ColumnText(4),
		GitBranch:   stmt.ColumnText(5),
		GitCommit:   stmt.ColumnText(6),
		Source:      stmt.ColumnText(7),
	}

	if t, err := time.Parse(time.RFC3339, stmt.ColumnText(2)); err == nil {
		session.StartTime = t
	}
	if !stmt.ColumnIsNull(3) {
		if t, err := time.Parse(time.RFC3339, stmt.ColumnText(3)); err == nil {
			session.EndTime = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, stmt.ColumnText(8)); err == nil {
		session.CreatedAt = t
	}

	return session
}
