package hook

import (
	"context"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/cwatch/internal/domain"
	"github.com/emiliopalmerini/cwatch/internal/permission"
)

// Result pairs the response envelope with the exit-code decision.
// Blocking is set only for an explicit permission deny; it maps to the
// one reserved non-zero exit code surfaced on the agent's error
// channel. Every other outcome, including total persistence failure,
// exits zero.
type Result struct {
	Response *domain.Response
	Blocking bool
}

// Handle runs the full pipeline for one raw input document. It never
// panics across this boundary: an internal defect is caught and
// converted into the safe default envelope.
func (a *App) Handle(ctx context.Context, raw []byte) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("internal fault in hook pipeline", zap.Any("panic", r))
			result = &Result{Response: &domain.Response{Continue: true, SuppressOutput: true}}
		}
	}()

	event, rejection := domain.ParseHookEvent(raw, a.Config.MaxPayloadBytes)
	if rejection != nil {
		a.Logger.Warn("input rejected",
			zap.String("tag", string(rejection.Tag)),
			zap.String("detail", rejection.Detail),
		)
		return &Result{Response: domain.RejectionResponse(rejection)}
	}

	base := event.Base()
	response := domain.ContinueResponse(base.HookEventName, base.SessionID)
	result = &Result{Response: response}

	// Stop hooks can trigger further stop hooks; bail before writing
	// anything to avoid recording the loop.
	if stop, ok := event.(*domain.StopEvent); ok && stop.StopHookActive {
		return result
	}

	if pre, ok := event.(*domain.PreToolUseEvent); ok {
		invocation := permission.FromToolInput(pre.ToolName, pre.ToolInput, base.Cwd)
		decision := permission.Evaluate(invocation)

		response.HookSpecificOutput.PermissionDecision = string(decision.Verdict)
		response.HookSpecificOutput.PermissionDecisionReason = decision.Reason
		result.Blocking = decision.Verdict == permission.VerdictDeny

		a.Logger.Debug("permission decision",
			zap.String("tool", pre.ToolName),
			zap.String("verdict", string(decision.Verdict)),
			zap.String("reason", decision.Reason),
		)
	}

	record := domain.EventRecord(event, a.Clock.Now().UTC())
	saveResult := a.Tracker.Observe(ctx, event, record)

	saved := saveResult.Saved
	response.HookSpecificOutput.EventSaved = &saved
	if !saved {
		a.Logger.Warn("event not durably saved",
			zap.String("hook_event", base.HookEventName),
			zap.String("external_session_id", base.SessionID),
		)
	}

	return result
}
