package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/cwatch/internal/domain"
)

// TursoBackend is the remote primary, reached through the libsql
// driver. The hook path skips the initial ping: latency matters and a
// dead primary is discovered on the first query, at which point the
// Manager fails over.
type TursoBackend struct {
	db *sql.DB
}

// OpenTurso connects to a Turso database. The pool is tuned for the
// Hrana protocol: Turso aggressively closes idle streams, so idle
// connections are disabled to force fresh ones.
func OpenTurso(databaseURL, authToken string) (*TursoBackend, error) {
	connStr := databaseURL
	if authToken != "" {
		connStr += "?authToken=" + authToken
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening turso database: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(0)

	return &TursoBackend{db: db}, nil
}

// NewTursoBackend wraps an existing handle. Used by tests and the
// migrate command.
func NewTursoBackend(db *sql.DB) *TursoBackend {
	return &TursoBackend{db: db}
}

func (b *TursoBackend) Name() string { return "turso" }

func (b *TursoBackend) Ping(ctx context.Context) error {
	var one int
	if err := b.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("turso ping: %w", err)
	}
	return nil
}

func (b *TursoBackend) Close() error { return b.db.Close() }

// DB exposes the underlying handle for migrations.
func (b *TursoBackend) DB() *sql.DB { return b.db }

// upsertSessionSQL resolves concurrent creates for the same external
// session id through the UNIQUE constraint; whichever insert lands
// second turns into an update and both callers read back the same id.
// Empty fields on the incoming row never blank fields already stored.
const upsertSessionSQL = `
INSERT INTO sessions (id, external_session_id, start_time, end_time, project_path, git_branch, git_commit, source, created_at)
VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?)
ON CONFLICT(external_session_id) DO UPDATE SET
    project_path = CASE WHEN excluded.project_path <> '' THEN excluded.project_path ELSE sessions.project_path END,
    git_branch   = CASE WHEN excluded.git_branch <> '' THEN excluded.git_branch ELSE sessions.git_branch END,
    git_commit   = CASE WHEN excluded.git_commit <> '' THEN excluded.git_commit ELSE sessions.git_commit END,
    source       = CASE WHEN excluded.source <> '' THEN excluded.source ELSE sessions.source END
RETURNING id`

func (b *TursoBackend) SaveSession(ctx context.Context, session *domain.Session) (string, error) {
	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}

	start := session.StartTime
	if start.IsZero() {
		start = time.Now().UTC()
	}

	var resolved string
	err := b.db.QueryRowContext(ctx, upsertSessionSQL,
		id,
		session.ExternalID,
		start.UTC().Format(time.RFC3339),
		session.ProjectPath,
		session.GitBranch,
		session.GitCommit,
		session.Source,
		time.Now().UTC().Format(time.RFC3339),
	).Scan(&resolved)
	if err != nil {
		return "", fmt.Errorf("upserting session: %w", err)
	}

	return resolved, nil
}

func (b *TursoBackend) EndSession(ctx context.Context, externalID string, endTime time.Time) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		"UPDATE sessions SET end_time = ? WHERE external_session_id = ? AND end_time IS NULL",
		endTime.UTC().Format(time.RFC3339), externalID,
	)
	if err != nil {
		return false, fmt.Errorf("ending session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ending session: %w", err)
	}
	return affected > 0, nil
}

func (b *TursoBackend) SaveEvent(ctx context.Context, event *domain.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting event transaction: %w", err)
	}
	defer tx.Rollback()

	// Ensure the owning session exists; an event must never be lost
	// merely because no explicit SessionStart preceded it.
	var sessionID string
	err = tx.QueryRowContext(ctx, upsertSessionSQL,
		uuid.NewString(),
		event.ExternalSessionID,
		event.Timestamp.UTC().Format(time.RFC3339),
		"", "", "", "",
		time.Now().UTC().Format(time.RFC3339),
	).Scan(&sessionID)
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (session_id, event_type, hook_event_name, timestamp, data, tool_name, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		string(event.Type),
		event.HookEventName,
		event.Timestamp.UTC().Format(time.RFC3339),
		string(data),
		toolName,
		durationMs,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	event.SessionID = sessionID
	return tx.Commit()
}

const selectSessionSQL = `
SELECT id, external_session_id, start_time, end_time, project_path, git_branch, git_commit, source, created_at
FROM sessions`

func (b *TursoBackend) GetSession(ctx context.Context, externalID string) (*domain.Session, error) {
	row := b.db.QueryRowContext(ctx, selectSessionSQL+" WHERE external_session_id = ?", externalID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return session, nil
}

func (b *TursoBackend) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := b.db.QueryContext(ctx, selectSessionSQL+" ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (b *TursoBackend) SessionStats(ctx context.Context, sessionID string) (*domain.SessionStats, error) {
	var stats domain.SessionStats
	err := b.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN event_type = 'tool_use' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN event_type = 'prompt' THEN 1 ELSE 0 END), 0)
		FROM events WHERE session_id = ?`, sessionID,
	).Scan(&stats.TotalEvents, &stats.ToolUses, &stats.Prompts)
	if err != nil {
		return nil, fmt.Errorf("computing session stats: %w", err)
	}
	return &stats, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session   domain.Session
		startTime string
		endTime   sql.NullString
		createdAt string
	)
	if err := row.Scan(
		&session.ID,
		&session.ExternalID,
		&startTime,
		&endTime,
		&session.ProjectPath,
		&session.GitBranch,
		&session.GitCommit,
		&session.Source,
		&createdAt,
	); err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, startTime); err == nil {
		session.StartTime = t
	}
	if endTime.Valid {
		if t, err := time.Parse(time.RFC3339, endTime.String); err == nil {
			session.EndTime = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		session.CreatedAt = t
	}

	return &session, nil
}
