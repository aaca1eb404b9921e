package domain

// Response is the output envelope written to stdout for every
// invocation. Claude Code reads it to decide whether to proceed.
// Continue is true on every path this system defines; nothing that
// happens while capturing an event may stop the agent.
type Response struct {
	Continue           bool        `json:"continue"`
	SuppressOutput     bool        `json:"suppressOutput"`
	StopReason         string      `json:"stopReason,omitempty"`
	HookSpecificOutput *HookOutput `json:"hookSpecificOutput,omitempty"`
	Error              string      `json:"error,omitempty"`
}

// HookOutput carries the event-specific result fields. For PreToolUse
// it includes the permission decision; for persisted events it reports
// whether the write reached a backend.
type HookOutput struct {
	HookEventName            string `json:"hookEventName"`
	SessionID                string `json:"sessionId,omitempty"`
	EventSaved               *bool  `json:"eventSaved,omitempty"`
	PermissionDecision       string `json:"permissionDecision,omitempty"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// ContinueResponse is the safe default envelope.
func ContinueResponse(hookEventName, sessionID string) *Response {
	return &Response{
		Continue:       true,
		SuppressOutput: true,
		HookSpecificOutput: &HookOutput{
			HookEventName: hookEventName,
			SessionID:     sessionID,
		},
	}
}

// RejectionResponse converts a normalizer rejection into the fail-open
// envelope: the agent continues, the problem is reported in error.
func RejectionResponse(rej *Rejection) *Response {
	return &Response{
		Continue:       true,
		SuppressOutput: true,
		Error:          rej.Error(),
	}
}
