package domain

import (
	"strings"
	"testing"
	"time"
)

func TestParseHookEvent_SessionStart(t *testing.T) {
	input := []byte(`{
		"session_id": "abc123",
		"transcript_path": "/tmp/transcript.jsonl",
		"cwd": "/home/user/project",
		"permission_mode": "default",
		"hook_event_name": "SessionStart",
		"source": "startup",
		"model": "claude-sonnet-4-5"
	}`)

	event, rej := ParseHookEvent(input, 0)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}

	ss, ok := event.(*SessionStartEvent)
	if !ok {
		t.Fatalf("expected *SessionStartEvent, got %T", event)
	}

	assertEqual(t, "SessionID", "abc123", ss.SessionID)
	assertEqual(t, "Cwd", "/home/user/project", ss.Cwd)
	assertEqual(t, "HookEventName", "SessionStart", ss.HookEventName)
	assertEqual(t, "Source", "startup", ss.Source)
	assertEqual(t, "Type", EventSessionStart, ss.Type())
}

func TestParseHookEvent_PreToolUse(t *testing.T) {
	input := []byte(`{
		"session_id": "abc123",
		"hook_event_name": "PreToolUse",
		"tool_name": "Bash",
		"tool_input": {"command": "ls -la"}
	}`)

	event, rej := ParseHookEvent(input, 0)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}

	pre, ok := event.(*PreToolUseEvent)
	if !ok {
		t.Fatalf("expected *PreToolUseEvent, got %T", event)
	}

	assertEqual(t, "ToolName", "Bash", pre.ToolName)
	assertEqual(t, "ToolInput", `{"command": "ls -la"}`, string(pre.ToolInput))
	assertEqual(t, "Type", EventPreToolUse, pre.Type())
}

func TestParseHookEvent_StopMapsToSessionEnd(t *testing.T) {
	input := []byte(`{"session_id":"abc","hook_event_name":"Stop","stop_hook_active":true}`)

	event, rej := ParseHookEvent(input, 0)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}

	stop, ok := event.(*StopEvent)
	if !ok {
		t.Fatalf("expected *StopEvent, got %T", event)
	}
	assertEqual(t, "StopHookActive", true, stop.StopHookActive)
	assertEqual(t, "Type", EventSessionEnd, stop.Type())
}

func TestParseHookEvent_InvalidJSON(t *testing.T) {
	_, rej := ParseHookEvent([]byte(`not valid json`), 0)
	if rej == nil {
		t.Fatal("expected rejection for invalid JSON")
	}
	assertEqual(t, "Tag", RejectInvalidInput, rej.Tag)
}

func TestParseHookEvent_MissingEventName(t *testing.T) {
	_, rej := ParseHookEvent([]byte(`{"session_id":"abc"}`), 0)
	if rej == nil {
		t.Fatal("expected rejection for missing event name")
	}
	assertEqual(t, "Tag", RejectInvalidInput, rej.Tag)
}

func TestParseHookEvent_UnknownEvent(t *testing.T) {
	_, rej := ParseHookEvent([]byte(`{"session_id":"abc","hook_event_name":"FutureEvent"}`), 0)
	if rej == nil {
		t.Fatal("expected rejection for unknown event")
	}
	assertEqual(t, "Tag", RejectUnknownEvent, rej.Tag)
}

func TestParseHookEvent_TooLarge(t *testing.T) {
	input := []byte(`{"hook_event_name":"SessionStart","session_id":"abc"}`)
	_, rej := ParseHookEvent(input, 10)
	if rej == nil {
		t.Fatal("expected rejection for oversized payload")
	}
	assertEqual(t, "Tag", RejectTooLarge, rej.Tag)
}

func TestEventRecord_StripsBaseFields(t *testing.T) {
	input := []byte(`{
		"session_id": "abc123",
		"cwd": "/home/user/project",
		"hook_event_name": "UserPromptSubmit",
		"prompt": "write a test"
	}`)

	event, rej := ParseHookEvent(input, 0)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := EventRecord(event, now)

	assertEqual(t, "ExternalSessionID", "abc123", record.ExternalSessionID)
	assertEqual(t, "Type", EventPrompt, record.Type)
	assertEqual(t, "Timestamp", now, record.Timestamp)
	if _, ok := record.Data["session_id"]; ok {
		t.Error("expected session_id to be stripped from data")
	}
	assertEqual(t, "prompt", "write a test", record.Data["prompt"].(string))
}

func TestEventRecord_CallerTimestampWins(t *testing.T) {
	input := []byte(`{
		"session_id": "abc",
		"hook_event_name": "Notification",
		"timestamp": "2026-01-15T08:30:00Z"
	}`)

	event, rej := ParseHookEvent(input, 0)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}

	record := EventRecord(event, time.Now().UTC())
	want := time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)
	if !record.Timestamp.Equal(want) {
		t.Errorf("expected caller timestamp %v, got %v", want, record.Timestamp)
	}
}

func TestEventRecord_TruncatesToolResponse(t *testing.T) {
	big := strings.Repeat("x", 20*1024)
	input := []byte(`{
		"session_id": "abc",
		"hook_event_name": "PostToolUse",
		"tool_name": "Bash",
		"tool_response": "` + big + `"
	}`)

	event, rej := ParseHookEvent(input, 0)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}

	record := EventRecord(event, time.Now().UTC())
	resp, ok := record.Data["tool_response"].(string)
	if !ok {
		t.Fatalf("expected string tool_response, got %T", record.Data["tool_response"])
	}
	if len(resp) > maxStoredResponse+len("...[truncated]") {
		t.Errorf("tool_response not truncated: %d bytes", len(resp))
	}
	if !strings.HasSuffix(resp, "...[truncated]") {
		t.Error("expected truncation marker on tool_response")
	}
	assertEqual(t, "ToolName", "Bash", record.ToolName)
}

func TestEventRecord_DurationValidation(t *testing.T) {
	parse := func(durationMs string) *Event {
		t.Helper()
		input := []byte(`{
			"session_id": "abc",
			"hook_event_name": "PostToolUse",
			"tool_name": "Bash",
			"duration_ms": ` + durationMs + `
		}`)
		event, rej := ParseHookEvent(input, 0)
		if rej != nil {
			t.Fatalf("unexpected rejection: %v", rej)
		}
		return EventRecord(event, time.Now().UTC())
	}

	record := parse("1250")
	if record.DurationMs == nil || *record.DurationMs != 1250 {
		t.Errorf("expected duration 1250, got %v", record.DurationMs)
	}

	record = parse("-40")
	if record.DurationMs != nil {
		t.Errorf("expected negative duration to be dropped, got %d", *record.DurationMs)
	}
}

func assertEqual[T comparable](t *testing.T, name string, expected, actual T) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", name, expected, actual)
	}
}
