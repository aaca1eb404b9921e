package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/cwatch/internal/domain"
	"github.com/emiliopalmerini/cwatch/internal/storage"
)

func testTracker(t *testing.T) (*Tracker, *clock.Mock) {
	t.Helper()

	dir := t.TempDir()
	secondary, err := storage.OpenSQLite(filepath.Join(dir, "cwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { secondary.Close() })

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))

	manager := storage.NewManager(storage.ManagerConfig{
		Secondary:     secondary,
		Timeout:       time.Second,
		ProbePath:     filepath.Join(dir, "probe_state.json"),
		ProbeInterval: 30 * time.Second,
		Clock:         clk,
		Logger:        zap.NewNop(),
	})

	return New(manager, clk, zap.NewNop()), clk
}

func observe(t *testing.T, tr *Tracker, raw string) storage.SaveResult {
	t.Helper()
	event, rej := domain.ParseHookEvent([]byte(raw), 0)
	require.Nil(t, rej)
	return tr.Observe(context.Background(), event, domain.EventRecord(event, time.Now().UTC()))
}

func TestTracker_SessionStartCreatesSession(t *testing.T) {
	tr, _ := testTracker(t)

	result := observe(t, tr, `{"session_id":"sess-1","cwd":"/demo","hook_event_name":"SessionStart","source":"startup"}`)
	require.True(t, result.Saved)

	summary, err := tr.Summarize(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "/demo", summary.Session.ProjectPath)
	require.Equal(t, "startup", summary.Session.Source)
	require.Nil(t, summary.Session.EndTime)
	require.Equal(t, int64(1), summary.Stats.TotalEvents)
}

func TestTracker_EndTimeSetOnce(t *testing.T) {
	tr, clk := testTracker(t)

	observe(t, tr, `{"session_id":"sess-1","hook_event_name":"SessionStart"}`)
	observe(t, tr, `{"session_id":"sess-1","hook_event_name":"Stop"}`)

	summary, err := tr.Summarize(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, summary.Session.EndTime)
	firstEnd := *summary.Session.EndTime

	// A second stop an hour later must not move the end time.
	clk.Add(time.Hour)
	observe(t, tr, `{"session_id":"sess-1","hook_event_name":"SessionEnd","reason":"exit"}`)

	summary, err = tr.Summarize(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, summary.Session.EndTime.Equal(firstEnd))
}

func TestTracker_StopForUnseenSessionStillEnds(t *testing.T) {
	tr, _ := testTracker(t)

	// A stop may be the first event ever seen for its session, e.g.
	// when capture was enabled mid-session. The lazily created row
	// must still get its end time.
	result := observe(t, tr, `{"session_id":"sess-stop-first","hook_event_name":"Stop"}`)
	require.True(t, result.Saved)

	summary, err := tr.Summarize(context.Background(), "sess-stop-first")
	require.NoError(t, err)
	require.NotNil(t, summary.Session.EndTime)
	require.Equal(t, int64(1), summary.Stats.TotalEvents)
}

func TestTracker_LazySessionFromUnseenEvent(t *testing.T) {
	tr, _ := testTracker(t)

	result := observe(t, tr, `{"session_id":"sess-lazy","hook_event_name":"UserPromptSubmit","prompt":"hi"}`)
	require.True(t, result.Saved)

	summary, err := tr.Summarize(context.Background(), "sess-lazy")
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.Stats.TotalEvents)
	require.Equal(t, int64(1), summary.Stats.Prompts)
}

func TestTracker_AggregatesRecomputedFromLog(t *testing.T) {
	tr, _ := testTracker(t)

	observe(t, tr, `{"session_id":"sess-1","hook_event_name":"SessionStart"}`)
	observe(t, tr, `{"session_id":"sess-1","hook_event_name":"UserPromptSubmit","prompt":"a"}`)
	observe(t, tr, `{"session_id":"sess-1","hook_event_name":"PostToolUse","tool_name":"Bash","tool_response":"ok"}`)
	observe(t, tr, `{"session_id":"sess-1","hook_event_name":"PostToolUse","tool_name":"Edit","tool_response":"ok"}`)
	observe(t, tr, `{"session_id":"sess-1","hook_event_name":"Stop"}`)

	summary, err := tr.Summarize(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), summary.Stats.TotalEvents)
	require.Equal(t, int64(2), summary.Stats.ToolUses)
	require.Equal(t, int64(1), summary.Stats.Prompts)
}
