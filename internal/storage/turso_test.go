package storage

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/cwatch/internal/domain"
)

// testTurso exercises the primary backend against an in-memory libsql
// database. The shared cache keeps one database per process, so tests
// use unique external ids.
func testTurso(t *testing.T) *TursoBackend {
	t.Helper()

	db, err := sql.Open("libsql", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := MigrateDB(context.Background(), db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return NewTursoBackend(db)
}

func uniqueID(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func TestTurso_SessionRoundTrip(t *testing.T) {
	backend := testTurso(t)
	ctx := context.Background()
	externalID := uniqueID(t)

	id, err := backend.SaveSession(ctx, &domain.Session{
		ExternalID:  externalID,
		StartTime:   time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		ProjectPath: "/demo",
		GitBranch:   "main",
	})
	require.NoError(t, err)

	session, err := backend.GetSession(ctx, externalID)
	require.NoError(t, err)
	require.Equal(t, id, session.ID)
	require.Equal(t, "/demo", session.ProjectPath)
	require.Equal(t, "main", session.GitBranch)
}

func TestTurso_ConcurrentUpsertsResolveToOneSession(t *testing.T) {
	backend := testTurso(t)
	ctx := context.Background()
	externalID := uniqueID(t)

	first, err := backend.SaveSession(ctx, &domain.Session{ExternalID: externalID})
	require.NoError(t, err)
	second, err := backend.SaveSession(ctx, &domain.Session{ExternalID: externalID})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestTurso_SaveEventCreatesUnseenSession(t *testing.T) {
	backend := testTurso(t)
	ctx := context.Background()
	externalID := uniqueID(t)

	event := &domain.Event{
		ExternalSessionID: externalID,
		Type:              domain.EventToolUse,
		HookEventName:     "PostToolUse",
		Timestamp:         time.Now().UTC(),
		ToolName:          "Bash",
		Data:              map[string]any{"tool_response": "ok"},
	}
	require.NoError(t, backend.SaveEvent(ctx, event))

	session, err := backend.GetSession(ctx, externalID)
	require.NoError(t, err)
	require.Equal(t, event.SessionID, session.ID)

	stats, err := backend.SessionStats(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalEvents)
	require.Equal(t, int64(1), stats.ToolUses)
}

func TestTurso_EndSessionFirstWriteWins(t *testing.T) {
	backend := testTurso(t)
	ctx := context.Background()
	externalID := uniqueID(t)

	_, err := backend.SaveSession(ctx, &domain.Session{ExternalID: externalID})
	require.NoError(t, err)

	firstEnd := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	wrote, err := backend.EndSession(ctx, externalID, firstEnd)
	require.NoError(t, err)
	require.True(t, wrote)

	wrote, err = backend.EndSession(ctx, externalID, firstEnd.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, wrote)

	session, err := backend.GetSession(ctx, externalID)
	require.NoError(t, err)
	require.True(t, session.EndTime.Equal(firstEnd))
}
