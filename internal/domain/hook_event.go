package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RejectionTag classifies why a raw payload was refused by the
// normalizer. Rejections never abort the invocation; they flow into a
// continue=true response envelope.
type RejectionTag string

const (
	RejectInvalidInput RejectionTag = "invalid_input"
	RejectTooLarge     RejectionTag = "too_large"
	RejectUnknownEvent RejectionTag = "unknown_event"
)

// Rejection is the structured outcome for input the normalizer refuses
// to turn into a canonical event.
type Rejection struct {
	Tag    RejectionTag
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Tag, r.Detail)
}

// EventBase contains fields common to all hook events from Claude Code.
type EventBase struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	PermissionMode string `json:"permission_mode"`
	HookEventName  string `json:"hook_event_name"`

	// raw retains the full payload so event-specific extras survive
	// into the persisted data map.
	raw json.RawMessage
}

// HookEvent is one parsed lifecycle event. Each variant carries the
// fixed fields its hook name defines; anything else in the payload is
// reachable through Payload().
type HookEvent interface {
	Base() EventBase
	Type() EventType
}

func (b EventBase) Base() EventBase { return b }

// Payload returns the full raw input document.
func (b EventBase) Payload() json.RawMessage { return b.raw }

// SessionStartEvent is sent when a Claude Code session starts.
type SessionStartEvent struct {
	EventBase
	Source string `json:"source"`
	Model  string `json:"model"`
}

func (SessionStartEvent) Type() EventType { return EventSessionStart }

// UserPromptEvent is sent when the user submits a prompt.
type UserPromptEvent struct {
	EventBase
	Prompt string `json:"prompt"`
}

func (UserPromptEvent) Type() EventType { return EventPrompt }

// PreToolUseEvent is sent before a tool runs. It is the only event the
// permission engine consumes.
type PreToolUseEvent struct {
	EventBase
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
}

func (PreToolUseEvent) Type() EventType { return EventPreToolUse }

// PostToolUseEvent is sent after a tool finished.
type PostToolUseEvent struct {
	EventBase
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input"`
	ToolResponse json.RawMessage `json:"tool_response"`
	ToolUseID    string          `json:"tool_use_id"`
	DurationMs   *int64          `json:"duration_ms"`
}

func (PostToolUseEvent) Type() EventType { return EventToolUse }

// StopEvent is sent when the main agent loop stops.
type StopEvent struct {
	EventBase
	StopHookActive bool `json:"stop_hook_active"`
}

func (StopEvent) Type() EventType { return EventSessionEnd }

// SessionEndEvent is sent when the session terminates.
type SessionEndEvent struct {
	EventBase
	Reason string `json:"reason"`
}

func (SessionEndEvent) Type() EventType { return EventSessionEnd }

// SubagentStopEvent is sent when a sub-agent terminates.
type SubagentStopEvent struct {
	EventBase
	StopHookActive bool   `json:"stop_hook_active"`
	AgentID        string `json:"agent_id"`
	AgentType      string `json:"agent_type"`
}

func (SubagentStopEvent) Type() EventType { return EventSubagentTermination }

// NotificationEvent is sent when Claude Code notifies the user.
type NotificationEvent struct {
	EventBase
	Message string `json:"message"`
}

func (NotificationEvent) Type() EventType { return EventNotification }

// PreCompactEvent is sent before the transcript is compacted.
type PreCompactEvent struct {
	EventBase
	Trigger            string `json:"trigger"`
	CustomInstructions string `json:"custom_instructions"`
}

func (PreCompactEvent) Type() EventType { return EventPreCompaction }

// baseFieldNames are stripped from the persisted data map; they live in
// dedicated session/event columns instead.
var baseFieldNames = []string{
	"session_id", "transcript_path", "cwd", "permission_mode", "hook_event_name",
}

// ParseHookEvent parses raw JSON into the typed event for its
// hook_event_name. It is a pure function: malformed, oversized, or
// unknown input yields a Rejection, never an error that escapes to the
// caller. maxSize <= 0 disables the size check.
func ParseHookEvent(data []byte, maxSize int64) (HookEvent, *Rejection) {
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, &Rejection{
			Tag:    RejectTooLarge,
			Detail: fmt.Sprintf("payload is %d bytes, limit is %d", len(data), maxSize),
		}
	}

	var base EventBase
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, &Rejection{Tag: RejectInvalidInput, Detail: err.Error()}
	}
	if base.HookEventName == "" {
		return nil, &Rejection{Tag: RejectInvalidInput, Detail: "missing hook_event_name"}
	}
	base.raw = json.RawMessage(data)

	parse := func(event HookEvent) (HookEvent, *Rejection) {
		if err := json.Unmarshal(data, event); err != nil {
			return nil, &Rejection{
				Tag:    RejectInvalidInput,
				Detail: fmt.Sprintf("parsing %s event: %v", base.HookEventName, err),
			}
		}
		return event, nil
	}

	switch base.HookEventName {
	case "SessionStart":
		return parse(&SessionStartEvent{EventBase: base})
	case "UserPromptSubmit":
		return parse(&UserPromptEvent{EventBase: base})
	case "PreToolUse":
		return parse(&PreToolUseEvent{EventBase: base})
	case "PostToolUse":
		return parse(&PostToolUseEvent{EventBase: base})
	case "Stop":
		return parse(&StopEvent{EventBase: base})
	case "SessionEnd":
		return parse(&SessionEndEvent{EventBase: base})
	case "SubagentStop":
		return parse(&SubagentStopEvent{EventBase: base})
	case "Notification":
		return parse(&NotificationEvent{EventBase: base})
	case "PreCompact":
		return parse(&PreCompactEvent{EventBase: base})
	default:
		return nil, &Rejection{
			Tag:    RejectUnknownEvent,
			Detail: fmt.Sprintf("unknown hook event: %s", base.HookEventName),
		}
	}
}

// maxStoredResponse caps tool output retained in the event data map.
const maxStoredResponse = 10 * 1024 // 10KB

// EventRecord converts a parsed hook event into the persistable Event.
// The data map carries every payload field that does not have a
// dedicated column, with oversized tool output truncated. now supplies
// the timestamp when the caller did not include one.
func EventRecord(hook HookEvent, now time.Time) *Event {
	base := hook.Base()

	data := map[string]any{}
	// Base parse already succeeded, so the payload is valid JSON.
	_ = json.Unmarshal(base.raw, &data)
	for _, name := range baseFieldNames {
		delete(data, name)
	}

	if resp, ok := data["tool_response"]; ok {
		data["tool_response"] = truncateValue(resp, maxStoredResponse)
	}

	event := &Event{
		ExternalSessionID: base.SessionID,
		Type:              hook.Type(),
		HookEventName:     base.HookEventName,
		Timestamp:         now,
		Data:              data,
	}

	if ts, ok := data["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			event.Timestamp = parsed
		}
	}

	switch e := hook.(type) {
	case *PreToolUseEvent:
		event.ToolName = e.ToolName
	case *PostToolUseEvent:
		event.ToolName = e.ToolName
		// Durations are non-negative; a negative caller value is
		// treated as absent.
		if e.DurationMs != nil && *e.DurationMs >= 0 {
			event.DurationMs = e.DurationMs
		}
	}

	return event
}

// truncateValue bounds a tool_response value. Non-string values are
// re-marshalled so the size check sees their serialized form.
func truncateValue(v any, maxLen int) any {
	s, ok := v.(string)
	if !ok {
		encoded, err := json.Marshal(v)
		if err != nil || len(encoded) <= maxLen {
			return v
		}
		s = string(encoded)
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...[truncated]"
}
