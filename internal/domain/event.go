package domain

import "time"

// EventType is the canonical classification of a captured event.
// This is a closed enumeration; the hook-facing names in hook_event.go
// map onto it.
type EventType string

const (
	EventSessionStart        EventType = "session_start"
	EventPrompt              EventType = "prompt"
	EventPreToolUse          EventType = "pre_tool_use"
	EventToolUse             EventType = "tool_use"
	EventSessionEnd          EventType = "session_end"
	EventSubagentTermination EventType = "subagent_termination"
	EventNotification        EventType = "notification"
	EventPreCompaction       EventType = "pre_compaction"
)

// Event is one observability record within a session. SessionID is the
// backend-resolved internal id and is filled in by the storage layer;
// ExternalSessionID is what the caller supplied and is always set.
type Event struct {
	ID                int64
	SessionID         string
	ExternalSessionID string
	Type              EventType
	HookEventName     string
	Timestamp         time.Time
	Data              map[string]any
	ToolName          string
	DurationMs        *int64
	CreatedAt         time.Time
}
