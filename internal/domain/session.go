package domain

import "time"

// Session is one continuous run of the monitored agent, identified by
// the caller-supplied external id. The backend generates the internal
// id; ExternalID is unique across all sessions regardless of how many
// hook processes race to create it.
type Session struct {
	ID          string
	ExternalID  string
	StartTime   time.Time
	EndTime     *time.Time
	ProjectPath string
	GitBranch   string
	GitCommit   string
	Source      string
	CreatedAt   time.Time
}

// Ended reports whether the session has a recorded end time.
func (s *Session) Ended() bool {
	return s.EndTime != nil
}

// SessionStats holds aggregates recomputed from the event log at read
// time. They are never maintained incrementally, so they cannot drift
// from the underlying events.
type SessionStats struct {
	TotalEvents int64
	ToolUses    int64
	Prompts     int64
}
